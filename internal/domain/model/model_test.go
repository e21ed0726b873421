package model_test

import (
	"encoding/json"
	"testing"
	"time"

	model "github.com/okian/arena/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestOutcome(t *testing.T) {
	convey.Convey("Given the three recognized outcomes", t, func() {
		convey.Convey("Then each parses from and prints to its wire form", func() {
			for _, c := range []struct {
				wire string
				want model.Outcome
			}{
				{"a", model.WinA},
				{"b", model.WinB},
				{"draw", model.Draw},
			} {
				got, err := model.ParseOutcome(c.wire)
				convey.So(err, convey.ShouldBeNil)
				convey.So(got, convey.ShouldEqual, c.want)
				convey.So(got.String(), convey.ShouldEqual, c.wire)
				convey.So(got.Valid(), convey.ShouldBeTrue)
			}
		})

		convey.Convey("When parsing an unrecognized value", func() {
			_, err := model.ParseOutcome("tie")

			convey.Convey("Then it should fail", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When round-tripping through JSON", func() {
			b, err := json.Marshal(model.WinB)
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(b), convey.ShouldEqual, `"b"`)

			var o model.Outcome
			convey.So(json.Unmarshal(b, &o), convey.ShouldBeNil)
			convey.So(o, convey.ShouldEqual, model.WinB)
		})

		convey.Convey("When marshaling the zero outcome", func() {
			var o model.Outcome
			_, err := json.Marshal(o)

			convey.Convey("Then it should be rejected", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(o.Valid(), convey.ShouldBeFalse)
			})
		})
	})
}

func TestPeriodStatus(t *testing.T) {
	convey.Convey("Given the period lifecycle", t, func() {
		convey.Convey("Then only forward transitions are legal", func() {
			convey.So(model.PeriodOpen.CanTransition(model.PeriodProcessing), convey.ShouldBeTrue)
			convey.So(model.PeriodProcessing.CanTransition(model.PeriodClosed), convey.ShouldBeTrue)

			convey.So(model.PeriodOpen.CanTransition(model.PeriodClosed), convey.ShouldBeFalse)
			convey.So(model.PeriodProcessing.CanTransition(model.PeriodOpen), convey.ShouldBeFalse)
			convey.So(model.PeriodClosed.CanTransition(model.PeriodOpen), convey.ShouldBeFalse)
			convey.So(model.PeriodClosed.CanTransition(model.PeriodProcessing), convey.ShouldBeFalse)
		})

		convey.Convey("Then statuses survive a JSON round trip", func() {
			for _, s := range []model.PeriodStatus{model.PeriodOpen, model.PeriodProcessing, model.PeriodClosed} {
				b, err := json.Marshal(s)
				convey.So(err, convey.ShouldBeNil)

				var got model.PeriodStatus
				convey.So(json.Unmarshal(b, &got), convey.ShouldBeNil)
				convey.So(got, convey.ShouldEqual, s)
			}
		})

		convey.Convey("Then an unknown status fails to unmarshal", func() {
			var got model.PeriodStatus
			convey.So(json.Unmarshal([]byte(`"pending"`), &got), convey.ShouldNotBeNil)
		})
	})
}

func TestComparisonShape(t *testing.T) {
	convey.Convey("Given an accepted comparison", t, func() {
		now := time.Now().UTC()
		cmp := model.Comparison{
			ID:        "0c9a6cbe-77d4-4e1f-bb8e-0c2f6d1a9f00",
			A:         "alpha",
			B:         "beta",
			Outcome:   model.Draw,
			Source:    "panel-3",
			PeriodID:  12,
			CreatedAt: now,
		}

		convey.Convey("When persisted as JSON", func() {
			b, err := json.Marshal(cmp)
			convey.So(err, convey.ShouldBeNil)

			var got model.Comparison
			convey.So(json.Unmarshal(b, &got), convey.ShouldBeNil)

			convey.Convey("Then every field survives", func() {
				convey.So(got.ID, convey.ShouldEqual, cmp.ID)
				convey.So(got.A, convey.ShouldEqual, cmp.A)
				convey.So(got.B, convey.ShouldEqual, cmp.B)
				convey.So(got.Outcome, convey.ShouldEqual, model.Draw)
				convey.So(got.Source, convey.ShouldEqual, cmp.Source)
				convey.So(got.PeriodID, convey.ShouldEqual, cmp.PeriodID)
				convey.So(got.CreatedAt.Equal(now), convey.ShouldBeTrue)
			})
		})
	})
}
