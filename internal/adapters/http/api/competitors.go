package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/arena/internal/domain/model"
)

// registerRequest mirrors the JSON schema for POST /competitors. Seed
// fields left at zero fall back to the configured defaults.
type registerRequest struct {
	ID    string  `json:"id"`
	Mu    float64 `json:"mu,omitempty"`
	Phi   float64 `json:"phi,omitempty"`
	Sigma float64 `json:"sigma,omitempty"`
}

// historyResponse wraps a competitor's per-period records.
type historyResponse struct {
	CompetitorID string                `json:"competitor_id"`
	Records      []model.HistoryRecord `json:"records"`
}

// CompetitorDependencies defines the interface for competitor operations.
type CompetitorDependencies interface {
	Register(ctx context.Context, c model.Competitor) (model.Competitor, error)
	History(ctx context.Context, id string) ([]model.HistoryRecord, error)
}

// CompetitorsHandler handles competitor registration and history reads.
type CompetitorsHandler struct {
	deps CompetitorDependencies
}

// NewCompetitorsHandler creates a new competitors handler.
func NewCompetitorsHandler(deps CompetitorDependencies) *CompetitorsHandler {
	return &CompetitorsHandler{deps: deps}
}

// HandleRegister handles POST /competitors requests.
func (h *CompetitorsHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", ErrBadRequest)
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, http.StatusBadRequest, "validation", errors.New("missing id"))
		return
	}

	c, err := h.deps.Register(r.Context(), model.Competitor{
		ID:    strings.TrimSpace(req.ID),
		Mu:    req.Mu,
		Phi:   req.Phi,
		Sigma: req.Sigma,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HandleHistory handles GET /competitors/{id}/history requests.
func (h *CompetitorsHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	// Extract path parameters after /competitors/
	rest := strings.TrimPrefix(r.URL.Path, "/competitors/")
	id, found := strings.CutSuffix(rest, "/history")
	if !found || id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "validation", ErrBadRequest)
		return
	}

	records, err := h.deps.History(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if records == nil {
		records = []model.HistoryRecord{}
	}
	writeJSON(w, http.StatusOK, historyResponse{CompetitorID: id, Records: records})
}
