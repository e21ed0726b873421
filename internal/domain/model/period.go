package model

import (
	"fmt"
	"time"
)

// PeriodStatus tracks the lifecycle of a rating period. Transitions are
// monotonic: open -> processing -> closed, never backwards.
type PeriodStatus uint8

const (
	// PeriodOpen accepts new comparisons.
	PeriodOpen PeriodStatus = iota + 1
	// PeriodProcessing has a frozen comparison set being rated.
	PeriodProcessing
	// PeriodClosed is fully committed.
	PeriodClosed
)

// String returns the wire form of the status.
func (s PeriodStatus) String() string {
	switch s {
	case PeriodOpen:
		return "open"
	case PeriodProcessing:
		return "processing"
	case PeriodClosed:
		return "closed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// CanTransition reports whether moving from s to next is a legal
// lifecycle step.
func (s PeriodStatus) CanTransition(next PeriodStatus) bool {
	switch s {
	case PeriodOpen:
		return next == PeriodProcessing
	case PeriodProcessing:
		return next == PeriodClosed
	default:
		return false
	}
}

// MarshalJSON encodes the status as its wire string.
func (s PeriodStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON decodes a status from its wire string.
func (s *PeriodStatus) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case `"open"`:
		*s = PeriodOpen
	case `"processing"`:
		*s = PeriodProcessing
	case `"closed"`:
		*s = PeriodClosed
	default:
		return fmt.Errorf("unrecognized period status %s", string(b))
	}
	return nil
}

// Period is one rating window. IDs are a monotonic sequence assigned by
// the store; exactly one period is open at any time after startup.
type Period struct {
	ID          uint64       `json:"id"`
	OpenedAt    time.Time    `json:"opened_at"`
	ClosedAt    time.Time    `json:"closed_at,omitzero"`
	Status      PeriodStatus `json:"status"`
	Comparisons int          `json:"comparisons"`
}
