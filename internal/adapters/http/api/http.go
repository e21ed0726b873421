// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/domain/matchmake"
	"github.com/okian/arena/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	// Submit validates a comparison and queues it for the writer.
	// Returns the comparison id and whether it was a known duplicate.
	Submit(ctx context.Context, sub model.Submission) (string, bool, error)

	// Register creates a competitor, optionally seeded.
	Register(ctx context.Context, c model.Competitor) (model.Competitor, error)

	// Rating returns one competitor's rating and rank.
	Rating(ctx context.Context, id string) (Entry, error)

	// Leaderboard returns the top n competitors by rating.
	Leaderboard(ctx context.Context, n int) ([]Entry, error)

	// History returns a competitor's per-period records, oldest first.
	History(ctx context.Context, id string) ([]model.HistoryRecord, error)

	// ClosePeriod triggers a manual close. False means nothing was
	// eligible.
	ClosePeriod(ctx context.Context) (bool, error)

	// CurrentPeriod reports the open period.
	CurrentPeriod(ctx context.Context) (model.Period, error)

	// NextPair proposes the next comparison to run.
	NextPair(ctx context.Context) (matchmake.Pair, error)
}

// Entry mirrors the read shape returned by rating and leaderboard queries.
type Entry = repository.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	comparisonsHandler *ComparisonsHandler
	competitorsHandler *CompetitorsHandler
	ratingsHandler     *RatingsHandler
	leaderboardHandler *LeaderboardHandler
	periodsHandler     *PeriodsHandler
	pairsHandler       *PairsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLeaderboardLimit int) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		comparisonsHandler: NewComparisonsHandler(deps),
		competitorsHandler: NewCompetitorsHandler(deps),
		ratingsHandler:     NewRatingsHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, maxLeaderboardLimit),
		periodsHandler:     NewPeriodsHandler(deps),
		pairsHandler:       NewPairsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/comparisons", MetricsMiddleware(s.comparisonsHandler.HandlePostComparison, "comparisons"))
	mux.HandleFunc("/competitors", MetricsMiddleware(s.competitorsHandler.HandleRegister, "competitors"))
	mux.HandleFunc("/competitors/", MetricsMiddleware(s.competitorsHandler.HandleHistory, "history"))
	mux.HandleFunc("/ratings/", MetricsMiddleware(s.ratingsHandler.HandleGetRating, "ratings"))
	mux.HandleFunc("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/periods/close", MetricsMiddleware(s.periodsHandler.HandleClosePeriod, "periods_close"))
	mux.HandleFunc("/periods/current", MetricsMiddleware(s.periodsHandler.HandleCurrentPeriod, "periods_current"))
	mux.HandleFunc("/pairs/next", MetricsMiddleware(s.pairsHandler.HandleNextPair, "pairs_next"))
}

// ackResponse acknowledges a submitted comparison.
type ackResponse struct {
	Status    string `json:"status"`
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate"`
}

// errorResponse is the uniform error body: a machine-readable kind plus a
// human-readable message.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Error: code, Message: msg})
}
