package api

import (
	"context"
	"net/http"

	"github.com/okian/arena/internal/domain/matchmake"
)

// PairDependencies defines the interface for matchmaking proposals.
type PairDependencies interface {
	NextPair(ctx context.Context) (matchmake.Pair, error)
}

// PairsHandler handles matchmaking requests.
type PairsHandler struct {
	deps PairDependencies
}

// NewPairsHandler creates a new pairs handler.
func NewPairsHandler(deps PairDependencies) *PairsHandler {
	return &PairsHandler{deps: deps}
}

// HandleNextPair handles GET /pairs/next requests.
func (h *PairsHandler) HandleNextPair(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	pair, err := h.deps.NextPair(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}
