package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/okian/arena/internal/domain/model"
)

// comparisonRequest mirrors the JSON schema for POST /comparisons.
type comparisonRequest struct {
	ID        string `json:"id,omitempty"`
	A         string `json:"a"`
	B         string `json:"b"`
	Outcome   string `json:"outcome"`
	Source    string `json:"source,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

func (c comparisonRequest) validate() error {
	switch {
	case strings.TrimSpace(c.A) == "":
		return errors.New("missing a")
	case strings.TrimSpace(c.B) == "":
		return errors.New("missing b")
	case strings.TrimSpace(c.Outcome) == "":
		return errors.New("missing outcome")
	}
	if _, err := model.ParseOutcome(c.Outcome); err != nil {
		return errors.New("invalid outcome; must be a, b or draw")
	}
	if c.Timestamp != "" {
		if _, err := time.Parse(time.RFC3339, c.Timestamp); err != nil {
			return errors.New("invalid timestamp; must be RFC3339")
		}
	}
	return nil
}

// submission converts the request into the service's input type.
// validate must have passed.
func (c comparisonRequest) submission() model.Submission {
	outcome, _ := model.ParseOutcome(c.Outcome)
	var at time.Time
	if c.Timestamp != "" {
		at, _ = time.Parse(time.RFC3339, c.Timestamp)
	}
	return model.Submission{
		ID:        strings.TrimSpace(c.ID),
		A:         strings.TrimSpace(c.A),
		B:         strings.TrimSpace(c.B),
		Outcome:   outcome,
		Source:    strings.TrimSpace(c.Source),
		CreatedAt: at,
	}
}

// ComparisonDependencies defines the interface for comparison submission.
type ComparisonDependencies interface {
	Submit(ctx context.Context, sub model.Submission) (string, bool, error)
}

// ComparisonsHandler handles comparison submissions.
type ComparisonsHandler struct {
	deps ComparisonDependencies
}

// NewComparisonsHandler creates a new comparisons handler.
func NewComparisonsHandler(deps ComparisonDependencies) *ComparisonsHandler {
	return &ComparisonsHandler{deps: deps}
}

// HandlePostComparison handles POST /comparisons requests.
func (h *ComparisonsHandler) HandlePostComparison(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_comparison"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req comparisonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", fmt.Errorf("%s: %w", op, ErrBadRequest))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation", err)
		return
	}

	id, duplicate, err := h.deps.Submit(r.Context(), req.submission())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", ID: id, Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", ID: id, Duplicate: false})
}
