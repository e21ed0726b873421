package api

import (
	"context"
	"net/http"

	"github.com/okian/arena/internal/domain/model"
)

// closePeriodResponse reports whether a manual close actually started
// period processing.
type closePeriodResponse struct {
	Initiated bool `json:"initiated"`
}

// PeriodDependencies defines the interface for period operations.
type PeriodDependencies interface {
	ClosePeriod(ctx context.Context) (bool, error)
	CurrentPeriod(ctx context.Context) (model.Period, error)
}

// PeriodsHandler handles period lifecycle requests.
type PeriodsHandler struct {
	deps PeriodDependencies
}

// NewPeriodsHandler creates a new periods handler.
func NewPeriodsHandler(deps PeriodDependencies) *PeriodsHandler {
	return &PeriodsHandler{deps: deps}
}

// HandleClosePeriod handles POST /periods/close requests. Closing an
// empty period or one already being processed is acknowledged with
// initiated=false rather than an error.
func (h *PeriodsHandler) HandleClosePeriod(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	initiated, err := h.deps.ClosePeriod(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, closePeriodResponse{Initiated: initiated})
}

// HandleCurrentPeriod handles GET /periods/current requests.
func (h *PeriodsHandler) HandleCurrentPeriod(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	period, err := h.deps.CurrentPeriod(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, period)
}
