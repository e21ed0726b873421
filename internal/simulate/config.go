package simulate

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL     string        // Base URL of the service
	Competitors int           // Number of competitors with hidden skills
	Comparisons int           // Number of comparisons to sample and submit
	Workers     int           // Number of concurrent submitters
	PeriodEvery int           // Close the open period after this many submissions
	TopN        int           // Number of leaderboard entries to verify against
	Timeout     time.Duration // HTTP request timeout
	Seed        int64         // RNG seed; reruns with the same seed replay the same ids
	LogFile     string        // Log file for simulation output
	Verbose     bool          // Enable verbose logging
}

// competitor is a simulated player with a hidden skill the service never sees.
type competitor struct {
	ID    string
	Skill float64
}

// comparison is one sampled matchup ready for submission.
type comparison struct {
	ID      string `json:"id"`
	A       string `json:"a"`
	B       string `json:"b"`
	Outcome string `json:"outcome"`
	Source  string `json:"source"`
}

// entry mirrors a leaderboard row as the service returns it.
type entry struct {
	Rank         int     `json:"rank"`
	CompetitorID string  `json:"competitor_id"`
	Mu           float64 `json:"mu"`
	Phi          float64 `json:"phi"`
	Sigma        float64 `json:"sigma"`
	LastPeriod   uint64  `json:"last_period"`
}

// ackResponse mirrors the response from comparison submission.
type ackResponse struct {
	Status    string `json:"status"`
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate"`
}

// closeResponse mirrors the response from POST /periods/close.
type closeResponse struct {
	Initiated bool `json:"initiated"`
}

// Stats holds simulation statistics.
type Stats struct {
	CompetitorsRegistered int
	ComparisonsSubmitted  int
	ComparisonsAccepted   int
	ComparisonsDuplicate  int
	ComparisonsFailed     int
	ClosesInitiated       int
	LeaderboardEntries    int
	SpearmanRho           float64
	StartTime             time.Time
	EndTime               time.Time
	Duration              time.Duration
}
