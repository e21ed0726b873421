package api

import (
	"context"
	"net/http"
	"strings"
)

// RatingDependencies defines the interface for rating reads.
type RatingDependencies interface {
	Rating(ctx context.Context, id string) (Entry, error)
}

// RatingsHandler handles per-competitor rating requests.
type RatingsHandler struct {
	deps RatingDependencies
}

// NewRatingsHandler creates a new ratings handler.
func NewRatingsHandler(deps RatingDependencies) *RatingsHandler {
	return &RatingsHandler{deps: deps}
}

// HandleGetRating handles GET /ratings/{id} requests.
func (h *RatingsHandler) HandleGetRating(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	// Extract path parameter after /ratings/
	id := strings.TrimPrefix(r.URL.Path, "/ratings/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "validation", ErrBadRequest)
		return
	}

	entry, err := h.deps.Rating(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
