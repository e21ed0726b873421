package model

import "time"

// Competitor is the rated entity. Mu, Phi and Sigma are on the external
// (display) scale; only a period commit mutates them after creation.
type Competitor struct {
	ID         string    `json:"id"`
	Mu         float64   `json:"mu"`
	Phi        float64   `json:"phi"`
	Sigma      float64   `json:"sigma"`
	LastPeriod uint64    `json:"last_period"` // 0 = never rated
	CreatedAt  time.Time `json:"created_at"`
}

// HistoryRecord is the immutable post-period snapshot of one competitor,
// appended exactly once per competitor per processed period.
type HistoryRecord struct {
	CompetitorID string    `json:"competitor_id"`
	PeriodID     uint64    `json:"period_id"`
	Mu           float64   `json:"mu"`
	Phi          float64   `json:"phi"`
	Sigma        float64   `json:"sigma"`
	Rated        bool      `json:"rated"`    // false = pure deviation decay
	Degraded     bool      `json:"degraded"` // volatility solver hit the iteration cap
	RecordedAt   time.Time `json:"recorded_at"`
}
