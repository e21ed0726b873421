// Package repository provides the durable rating store and the in-memory
// leaderboard projection built from it.
package repository

import (
	"context"
	"time"

	"github.com/okian/arena/internal/domain/model"
)

// Entry represents a leaderboard row. It doubles as the read shape the
// HTTP layer returns, hence the wire tags.
type Entry struct {
	Rank         int     `json:"rank"`
	CompetitorID string  `json:"competitor_id"`
	Mu           float64 `json:"mu"`
	Phi          float64 `json:"phi"`
	Sigma        float64 `json:"sigma"`
	LastPeriod   uint64  `json:"last_period"`
}

// CompetitorUpdate pairs a competitor's post-period state with the
// history record documenting it. A period commit applies a batch of
// these atomically.
type CompetitorUpdate struct {
	Competitor model.Competitor
	History    model.HistoryRecord
}

// AppendResult reports what a comparison append changed: the open
// period after the append and whether either side was auto-created.
type AppendResult struct {
	Period   model.Period
	CreatedA bool
	CreatedB bool
}

// Store provides durable access to competitors, comparisons, periods and
// rating history. Implementations must make CommitPeriod all-or-nothing.
type Store interface {
	// RegisterCompetitor stores a new competitor.
	// Returns ErrAlreadyExists if the id is taken.
	RegisterCompetitor(ctx context.Context, c model.Competitor) error

	// Competitor returns one competitor's current state.
	// Returns ErrNotFound if the id is unknown.
	Competitor(ctx context.Context, id string) (model.Competitor, error)

	// Competitors returns every stored competitor.
	Competitors(ctx context.Context) ([]model.Competitor, error)

	// AppendComparison attaches a comparison to its open period,
	// auto-creating unseen competitors at the default rating and
	// bumping per-competitor comparison counters, all in one
	// transaction. Returns ErrPeriodNotOpen if the target period
	// stopped accepting comparisons.
	AppendComparison(ctx context.Context, cmp model.Comparison) (AppendResult, error)

	// Comparisons returns a period's comparisons in append order.
	Comparisons(ctx context.Context, periodID uint64) ([]model.Comparison, error)

	// ComparisonCounts returns the lifetime comparison count per
	// competitor, open-period submissions included.
	ComparisonCounts(ctx context.Context) (map[string]int, error)

	// EnsureOpenPeriod returns the current period, opening the first
	// one if the store is empty.
	EnsureOpenPeriod(ctx context.Context, at time.Time) (model.Period, error)

	// CurrentPeriod returns the period submissions currently attach to.
	// Returns ErrNoOpenPeriod before the first EnsureOpenPeriod.
	CurrentPeriod(ctx context.Context) (model.Period, error)

	// PeriodByID returns one period. Returns ErrPeriodNotFound if the
	// id is unknown.
	PeriodByID(ctx context.Context, id uint64) (model.Period, error)

	// ProcessingPeriods returns periods frozen but not yet committed,
	// oldest first. Non-empty only after a crash mid-processing.
	ProcessingPeriods(ctx context.Context) ([]model.Period, error)

	// FreezePeriod marks the open period processing and opens its
	// successor in one transaction, so ingestion never observes a gap.
	// Returns ErrEmptyPeriod when the open period has no comparisons.
	FreezePeriod(ctx context.Context, at time.Time) (frozen, next model.Period, err error)

	// CommitPeriod writes every competitor update and history record of
	// a processed period and closes it, atomically. Returns false with
	// no error when the period is already closed, making recovery
	// replays idempotent. Returns ErrPeriodNotProcessing if the period
	// was never frozen.
	CommitPeriod(ctx context.Context, periodID uint64, updates []CompetitorUpdate) (bool, error)

	// History returns one competitor's per-period records, oldest
	// first.
	History(ctx context.Context, competitorID string) ([]model.HistoryRecord, error)

	// Close releases the store. Further calls fail.
	Close() error
}

// Projection serves rank and leaderboard reads from published snapshots.
type Projection interface {
	// Upsert inserts or replaces one competitor's row.
	Upsert(ctx context.Context, e Entry) error

	// ReplaceAll swaps in a full post-commit view and publishes a
	// fresh snapshot before returning.
	ReplaceAll(ctx context.Context, entries []Entry) error

	// Rank returns the current rank and rating for a competitor.
	// Returns ErrNotFound if the competitor is unknown.
	Rank(ctx context.Context, competitorID string) (Entry, error)

	// TopN returns the top-N entries ordered by rating desc.
	TopN(ctx context.Context, n int) ([]Entry, error)

	// Count returns the number of competitors tracked.
	Count(ctx context.Context) int

	// Close stops the snapshot publisher.
	Close() error
}
