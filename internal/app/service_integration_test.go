package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/arena/internal/adapters/repository"
	service "github.com/okian/arena/internal/app"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

// waitHistory blocks until the competitor has at least n history records,
// i.e. that many periods were committed for it.
func waitHistory(ctx context.Context, svc *service.Service, id string, n int) bool {
	return eventually(10*time.Second, func() bool {
		records, err := svc.History(ctx, id)
		return err == nil && len(records) >= n
	})
}

// closeAndWait triggers a period close and waits until every listed
// competitor carries at least n history records.
func closeAndWait(ctx context.Context, svc *service.Service, n int, ids ...string) error {
	initiated, err := svc.ClosePeriod(ctx)
	if err != nil {
		return err
	}
	if !initiated {
		return fmt.Errorf("period close was a no-op")
	}
	for _, id := range ids {
		if !waitHistory(ctx, svc, id, n) {
			return fmt.Errorf("competitor %s never reached %d history records", id, n)
		}
	}
	return nil
}

func TestServiceIntegration_WorkedExample(t *testing.T) {
	Convey("Given the reference scenario from the Glicko-2 paper", t, func() {
		svc := newTestService()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		seeds := []model.Competitor{
			{ID: "hero", Mu: 1500, Phi: 200, Sigma: 0.06},
			{ID: "opp-1", Mu: 1400, Phi: 30, Sigma: 0.06},
			{ID: "opp-2", Mu: 1550, Phi: 100, Sigma: 0.06},
			{ID: "opp-3", Mu: 1700, Phi: 300, Sigma: 0.06},
		}
		for _, c := range seeds {
			_, err := svc.Register(ctx, c)
			So(err, ShouldBeNil)
		}

		Convey("When the hero wins one and loses two, and the period closes", func() {
			subs := []model.Submission{
				{ID: "cmp-1", A: "hero", B: "opp-1", Outcome: model.WinA},
				{ID: "cmp-2", A: "hero", B: "opp-2", Outcome: model.WinB},
				{ID: "cmp-3", A: "hero", B: "opp-3", Outcome: model.WinB},
			}
			for _, sub := range subs {
				_, dup, err := svc.Submit(ctx, sub)
				So(err, ShouldBeNil)
				So(dup, ShouldBeFalse)
			}
			So(waitComparisons(ctx, svc, 3), ShouldBeTrue)
			So(closeAndWait(ctx, svc, 1, "hero"), ShouldBeNil)

			Convey("Then the hero's rating should match the paper", func() {
				entry, err := svc.Rating(ctx, "hero")
				So(err, ShouldBeNil)
				So(entry.Mu, ShouldAlmostEqual, 1464.06, 0.01)
				So(entry.Phi, ShouldAlmostEqual, 151.52, 0.01)
				So(entry.Sigma, ShouldAlmostEqual, 0.05999, 0.0001)
				So(entry.LastPeriod, ShouldEqual, 1)
			})

			Convey("And the history should document a clean rated update", func() {
				records, err := svc.History(ctx, "hero")
				So(err, ShouldBeNil)
				So(len(records), ShouldEqual, 1)
				So(records[0].PeriodID, ShouldEqual, 1)
				So(records[0].Rated, ShouldBeTrue)
				So(records[0].Degraded, ShouldBeFalse)
				So(records[0].Mu, ShouldAlmostEqual, 1464.06, 0.01)
			})

			Convey("And the next period should be open and empty", func() {
				p, err := svc.CurrentPeriod(ctx)
				So(err, ShouldBeNil)
				So(p.ID, ShouldEqual, 2)
				So(p.Status, ShouldEqual, model.PeriodOpen)
				So(p.Comparisons, ShouldEqual, 0)
			})
		})
	})
}

func TestServiceIntegration_Determinism(t *testing.T) {
	Convey("Given the same comparison set submitted in opposite orders", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		subs := []model.Submission{
			{ID: "d-1", A: "p1", B: "p2", Outcome: model.WinA},
			{ID: "d-2", A: "p3", B: "p4", Outcome: model.WinB},
			{ID: "d-3", A: "p1", B: "p3", Outcome: model.Draw},
			{ID: "d-4", A: "p2", B: "p4", Outcome: model.WinA},
			{ID: "d-5", A: "p1", B: "p4", Outcome: model.WinA},
			{ID: "d-6", A: "p2", B: "p3", Outcome: model.WinB},
			{ID: "d-7", A: "p4", B: "p1", Outcome: model.Draw},
			{ID: "d-8", A: "p3", B: "p2", Outcome: model.WinA},
		}
		ids := []string{"p1", "p2", "p3", "p4"}

		run := func(reversed bool) map[string]repository.Entry {
			svc := newTestService()
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()

			ordered := subs
			if reversed {
				ordered = make([]model.Submission, len(subs))
				for i, sub := range subs {
					ordered[len(subs)-1-i] = sub
				}
			}
			for _, sub := range ordered {
				_, _, err := svc.Submit(ctx, sub)
				So(err, ShouldBeNil)
			}
			So(waitComparisons(ctx, svc, len(subs)), ShouldBeTrue)
			So(closeAndWait(ctx, svc, 1, ids...), ShouldBeNil)

			out := make(map[string]repository.Entry, len(ids))
			for _, id := range ids {
				entry, err := svc.Rating(ctx, id)
				So(err, ShouldBeNil)
				out[id] = entry
			}
			return out
		}

		Convey("When both runs are processed", func() {
			forward := run(false)
			backward := run(true)

			Convey("Then every competitor should land on the same rating", func() {
				for _, id := range ids {
					So(backward[id].Mu, ShouldAlmostEqual, forward[id].Mu, 1e-12)
					So(backward[id].Phi, ShouldAlmostEqual, forward[id].Phi, 1e-12)
					So(backward[id].Sigma, ShouldAlmostEqual, forward[id].Sigma, 1e-12)
					So(backward[id].Rank, ShouldEqual, forward[id].Rank)
				}
			})
		})
	})
}

func TestServiceIntegration_DirectionAndDecay(t *testing.T) {
	Convey("Given one decisive comparison and one idle competitor", t, func() {
		svc := newTestService()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		_, err := svc.Register(ctx, model.Competitor{ID: "idle", Phi: 50})
		So(err, ShouldBeNil)

		_, _, err = svc.Submit(ctx, model.Submission{ID: "cmp-1", A: "alice", B: "bob", Outcome: model.WinA})
		So(err, ShouldBeNil)
		So(waitComparisons(ctx, svc, 1), ShouldBeTrue)
		So(closeAndWait(ctx, svc, 1, "alice", "bob", "idle"), ShouldBeNil)

		Convey("Then the winner should gain rating and the loser lose it", func() {
			alice, err := svc.Rating(ctx, "alice")
			So(err, ShouldBeNil)
			bob, err := svc.Rating(ctx, "bob")
			So(err, ShouldBeNil)

			So(alice.Mu, ShouldBeGreaterThan, 1500)
			So(bob.Mu, ShouldBeLessThan, 1500)
			So(alice.LastPeriod, ShouldEqual, 1)
			So(bob.LastPeriod, ShouldEqual, 1)
		})

		Convey("And the idle competitor should only grow in deviation", func() {
			idle, err := svc.Rating(ctx, "idle")
			So(err, ShouldBeNil)

			So(idle.Mu, ShouldEqual, 1500)
			So(idle.Phi, ShouldBeGreaterThan, 50)
			So(idle.Phi, ShouldBeLessThanOrEqualTo, 350)
			So(idle.Sigma, ShouldEqual, 0.06)
			So(idle.LastPeriod, ShouldEqual, 0)

			records, err := svc.History(ctx, "idle")
			So(err, ShouldBeNil)
			So(len(records), ShouldEqual, 1)
			So(records[0].Rated, ShouldBeFalse)
		})

		Convey("And the leaderboard should order winner, idle, loser", func() {
			entries, err := svc.Leaderboard(ctx, 10)
			So(err, ShouldBeNil)
			So(len(entries), ShouldEqual, 3)
			So(entries[0].CompetitorID, ShouldEqual, "alice")
			So(entries[1].CompetitorID, ShouldEqual, "idle")
			So(entries[2].CompetitorID, ShouldEqual, "bob")
			So(entries[0].Rank, ShouldEqual, 1)
		})
	})
}

func TestServiceIntegration_CountTrigger(t *testing.T) {
	Convey("Given a service that closes periods after three comparisons", t, func() {
		svc := newTestService(service.WithMaxComparisonsPerPeriod(3))
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When the third comparison lands", func() {
			for i := 1; i <= 3; i++ {
				_, _, err := svc.Submit(ctx, model.Submission{
					ID:      fmt.Sprintf("cmp-%d", i),
					A:       "alice",
					B:       "bob",
					Outcome: model.WinA,
				})
				So(err, ShouldBeNil)
			}

			Convey("Then the period should close on its own", func() {
				opened := eventually(10*time.Second, func() bool {
					p, err := svc.CurrentPeriod(ctx)
					return err == nil && p.ID == 2
				})
				So(opened, ShouldBeTrue)
				So(waitHistory(ctx, svc, "alice", 1), ShouldBeTrue)

				records, err := svc.History(ctx, "alice")
				So(err, ShouldBeNil)
				So(records[0].PeriodID, ShouldEqual, 1)
			})
		})
	})
}

func TestServiceIntegration_MultiPeriodHistory(t *testing.T) {
	Convey("Given two periods with opposite outcomes", t, func() {
		svc := newTestService()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		_, _, err := svc.Submit(ctx, model.Submission{ID: "cmp-1", A: "alice", B: "bob", Outcome: model.WinA})
		So(err, ShouldBeNil)
		So(waitComparisons(ctx, svc, 1), ShouldBeTrue)
		So(closeAndWait(ctx, svc, 1, "alice", "bob"), ShouldBeNil)

		_, _, err = svc.Submit(ctx, model.Submission{ID: "cmp-2", A: "alice", B: "bob", Outcome: model.WinB})
		So(err, ShouldBeNil)
		So(waitComparisons(ctx, svc, 1), ShouldBeTrue)
		So(closeAndWait(ctx, svc, 2, "alice", "bob"), ShouldBeNil)

		Convey("Then history should list periods oldest first", func() {
			records, err := svc.History(ctx, "alice")
			So(err, ShouldBeNil)
			So(len(records), ShouldEqual, 2)
			So(records[0].PeriodID, ShouldEqual, 1)
			So(records[1].PeriodID, ShouldEqual, 2)

			Convey("And the loss should pull the rating back down", func() {
				So(records[0].Mu, ShouldBeGreaterThan, 1500)
				So(records[1].Mu, ShouldBeLessThan, records[0].Mu)
			})
		})

		Convey("And the third period should be open", func() {
			p, err := svc.CurrentPeriod(ctx)
			So(err, ShouldBeNil)
			So(p.ID, ShouldEqual, 3)
		})
	})
}

func TestServiceIntegration_Recovery(t *testing.T) {
	Convey("Given a store left with a frozen, uncommitted period", t, func() {
		dir := t.TempDir()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		store, err := repository.NewBadgerStore(ctx,
			repository.WithDataDir(dir),
			repository.WithSyncWrites(true),
		)
		So(err, ShouldBeNil)

		period, err := store.EnsureOpenPeriod(ctx, time.Now().UTC())
		So(err, ShouldBeNil)
		_, err = store.AppendComparison(ctx, model.Comparison{
			ID:        "cmp-1",
			A:         "alice",
			B:         "bob",
			Outcome:   model.WinA,
			PeriodID:  period.ID,
			CreatedAt: time.Now().UTC(),
		})
		So(err, ShouldBeNil)
		_, _, err = store.FreezePeriod(ctx, time.Now().UTC())
		So(err, ShouldBeNil)
		So(store.Close(), ShouldBeNil)

		Convey("When a service starts on that directory", func() {
			svc := service.New(
				service.WithWorkerCount(2),
				service.WithPeriodDuration(time.Hour),
				service.WithStoreOptions(
					repository.WithDataDir(dir),
					repository.WithSyncWrites(true),
				),
			)
			So(svc.Start(ctx), ShouldBeNil)

			Convey("Then the interrupted period should be committed during startup", func() {
				alice, err := svc.Rating(ctx, "alice")
				So(err, ShouldBeNil)
				bob, err := svc.Rating(ctx, "bob")
				So(err, ShouldBeNil)
				So(alice.Mu, ShouldBeGreaterThan, 1500)
				So(bob.Mu, ShouldBeLessThan, 1500)
				So(alice.LastPeriod, ShouldEqual, 1)

				records, err := svc.History(ctx, "alice")
				So(err, ShouldBeNil)
				So(len(records), ShouldEqual, 1)

				p, err := svc.CurrentPeriod(ctx)
				So(err, ShouldBeNil)
				So(p.ID, ShouldEqual, 2)

				svc.Stop()

				Convey("And a second restart should see the same committed state", func() {
					svc2 := service.New(
						service.WithWorkerCount(2),
						service.WithPeriodDuration(time.Hour),
						service.WithStoreOptions(
							repository.WithDataDir(dir),
							repository.WithSyncWrites(true),
						),
					)
					So(svc2.Start(ctx), ShouldBeNil)
					defer svc2.Stop()

					again, err := svc2.Rating(ctx, "alice")
					So(err, ShouldBeNil)
					So(again.Mu, ShouldEqual, alice.Mu)
					So(again.LastPeriod, ShouldEqual, 1)

					records, err := svc2.History(ctx, "alice")
					So(err, ShouldBeNil)
					So(len(records), ShouldEqual, 1)

					p, err := svc2.CurrentPeriod(ctx)
					So(err, ShouldBeNil)
					So(p.ID, ShouldEqual, 2)
				})
			})
		})
	})
}
