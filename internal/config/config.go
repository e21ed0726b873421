// Package config defines service configuration and loading.
//
// Conventions:
//   - New() builds a Config holding every default.
//   - Load(ctx) layers an optional YAML file and ARENA_-prefixed env vars
//     on top of the defaults.
//   - External errors are wrapped with this package's sentinels.
package config

import "runtime"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DataDir is the Badger database directory. Ignored when InMemory.
	DataDir string `koanf:"data_dir"`

	// InMemory keeps all state in memory; nothing survives a restart.
	// Meant for tests and throwaway runs.
	InMemory bool `koanf:"in_memory"`

	// SyncWrites makes Badger fsync every write. Slower, crash-safe.
	SyncWrites bool `koanf:"sync_writes"`

	// GCIntervalSeconds is how often Badger value-log garbage collection
	// runs. Zero disables it.
	GCIntervalSeconds int `koanf:"gc_interval_seconds"`

	// QueueSize bounds the in-memory submission queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of rating workers used per period.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize bounds the idempotency cache of seen comparison ids.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// PeriodDurationSeconds closes the open period after this much
	// wall-clock time.
	PeriodDurationSeconds int `koanf:"period_duration_seconds"`

	// MaxComparisonsPerPeriod closes the open period once it holds this
	// many comparisons. Zero disables the count trigger.
	MaxComparisonsPerPeriod int `koanf:"max_comparisons_per_period"`

	// RatingBase and RatingScale convert between the display scale and
	// the internal Glicko-2 scale.
	RatingBase  float64 `koanf:"rating_base"`
	RatingScale float64 `koanf:"rating_scale"`

	// DefaultRating, DefaultDeviation and DefaultVolatility initialize a
	// competitor on first appearance.
	DefaultRating     float64 `koanf:"default_rating"`
	DefaultDeviation  float64 `koanf:"default_deviation"`
	DefaultVolatility float64 `koanf:"default_volatility"`

	// MinDeviation and MaxDeviation clamp every computed deviation.
	MinDeviation float64 `koanf:"min_deviation"`
	MaxDeviation float64 `koanf:"max_deviation"`

	// Tau constrains how fast volatility may change per period.
	Tau float64 `koanf:"tau"`

	// ConvergenceTolerance and MaxSolverIterations bound the volatility
	// root finder.
	ConvergenceTolerance float64 `koanf:"convergence_tolerance"`
	MaxSolverIterations  int     `koanf:"max_solver_iterations"`
}

// New creates a Config populated with defaults. The Glicko-2 constants are
// the published reference values.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		Addr:                    ":8080",
		DataDir:                 "./data",
		InMemory:                false,
		SyncWrites:              true,
		GCIntervalSeconds:       300,
		QueueSize:               8_192,
		WorkerCount:             runtime.NumCPU(),
		DedupeSize:              50_000,
		MaxLeaderboardLimit:     1_000,
		PeriodDurationSeconds:   24 * 60 * 60,
		MaxComparisonsPerPeriod: 0,
		RatingBase:              1500,
		RatingScale:             173.7178,
		DefaultRating:           1500,
		DefaultDeviation:        350,
		DefaultVolatility:       0.06,
		MinDeviation:            30,
		MaxDeviation:            350,
		Tau:                     0.5,
		ConvergenceTolerance:    0.000001,
		MaxSolverIterations:     100,
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return wrapInvalid("addr must not be empty")
	case !c.InMemory && c.DataDir == "":
		return wrapInvalid("data_dir must not be empty unless in_memory is set")
	case c.QueueSize < 1:
		return wrapInvalid("queue_size must be positive")
	case c.WorkerCount < 1:
		return wrapInvalid("worker_count must be positive")
	case c.MaxLeaderboardLimit < 1:
		return wrapInvalid("max_leaderboard_limit must be positive")
	case c.PeriodDurationSeconds < 1:
		return wrapInvalid("period_duration_seconds must be positive")
	case c.MaxComparisonsPerPeriod < 0:
		return wrapInvalid("max_comparisons_per_period must not be negative")
	case c.RatingScale <= 0:
		return wrapInvalid("rating_scale must be positive")
	case c.DefaultDeviation <= 0 || c.DefaultVolatility <= 0:
		return wrapInvalid("default_deviation and default_volatility must be positive")
	case c.MinDeviation <= 0 || c.MaxDeviation <= c.MinDeviation:
		return wrapInvalid("deviation bounds must satisfy 0 < min < max")
	case c.DefaultDeviation < c.MinDeviation || c.DefaultDeviation > c.MaxDeviation:
		return wrapInvalid("default_deviation must lie within the deviation bounds")
	case c.Tau <= 0:
		return wrapInvalid("tau must be positive")
	case c.ConvergenceTolerance <= 0:
		return wrapInvalid("convergence_tolerance must be positive")
	case c.MaxSolverIterations < 1:
		return wrapInvalid("max_solver_iterations must be positive")
	}
	return nil
}
