package config_test

import (
	"errors"
	"runtime"
	"testing"

	"github.com/okian/arena/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a fresh default config", t, func() {
		cfg := config.New()

		convey.Convey("Then service defaults are sensible", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 8_192)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 50_000)
			convey.So(cfg.MaxLeaderboardLimit, convey.ShouldEqual, 1_000)
			convey.So(cfg.PeriodDurationSeconds, convey.ShouldEqual, 86_400)
			convey.So(cfg.MaxComparisonsPerPeriod, convey.ShouldEqual, 0)
		})

		convey.Convey("Then the Glicko-2 constants match the published values", func() {
			convey.So(cfg.RatingBase, convey.ShouldEqual, 1500.0)
			convey.So(cfg.RatingScale, convey.ShouldEqual, 173.7178)
			convey.So(cfg.DefaultRating, convey.ShouldEqual, 1500.0)
			convey.So(cfg.DefaultDeviation, convey.ShouldEqual, 350.0)
			convey.So(cfg.DefaultVolatility, convey.ShouldEqual, 0.06)
			convey.So(cfg.MinDeviation, convey.ShouldEqual, 30.0)
			convey.So(cfg.MaxDeviation, convey.ShouldEqual, 350.0)
			convey.So(cfg.Tau, convey.ShouldEqual, 0.5)
			convey.So(cfg.ConvergenceTolerance, convey.ShouldEqual, 0.000001)
			convey.So(cfg.MaxSolverIterations, convey.ShouldEqual, 100)
		})

		convey.Convey("Then the defaults validate", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs broken one field at a time", t, func() {
		cases := []struct {
			name  string
			mutate func(*config.Config)
		}{
			{"empty addr", func(c *config.Config) { c.Addr = "" }},
			{"no data dir on disk mode", func(c *config.Config) { c.DataDir = "" }},
			{"zero queue", func(c *config.Config) { c.QueueSize = 0 }},
			{"zero workers", func(c *config.Config) { c.WorkerCount = 0 }},
			{"zero leaderboard limit", func(c *config.Config) { c.MaxLeaderboardLimit = 0 }},
			{"zero period duration", func(c *config.Config) { c.PeriodDurationSeconds = 0 }},
			{"negative count trigger", func(c *config.Config) { c.MaxComparisonsPerPeriod = -1 }},
			{"zero scale", func(c *config.Config) { c.RatingScale = 0 }},
			{"zero default volatility", func(c *config.Config) { c.DefaultVolatility = 0 }},
			{"inverted deviation bounds", func(c *config.Config) { c.MinDeviation = 400 }},
			{"default deviation out of bounds", func(c *config.Config) { c.DefaultDeviation = 10 }},
			{"zero tau", func(c *config.Config) { c.Tau = 0 }},
			{"zero tolerance", func(c *config.Config) { c.ConvergenceTolerance = 0 }},
			{"zero solver iterations", func(c *config.Config) { c.MaxSolverIterations = 0 }},
		}

		for _, tc := range cases {
			convey.Convey("When the config has "+tc.name, func() {
				cfg := config.New()
				tc.mutate(cfg)
				err := cfg.Validate()

				convey.Convey("Then validation fails with ErrInvalidConfig", func() {
					convey.So(err, convey.ShouldNotBeNil)
					convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				})
			})
		}

		convey.Convey("When in_memory is set without a data dir", func() {
			cfg := config.New()
			cfg.InMemory = true
			cfg.DataDir = ""

			convey.Convey("Then validation passes", func() {
				convey.So(cfg.Validate(), convey.ShouldBeNil)
			})
		})
	})
}
