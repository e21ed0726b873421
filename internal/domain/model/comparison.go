// Package model contains domain types passed between layers.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Outcome is the result of a pairwise comparison, a closed set of three
// values. The numeric 1/0/0.5 scoring is an update-engine detail and is
// deliberately not part of this type.
type Outcome uint8

const (
	// WinA means competitor A won the comparison.
	WinA Outcome = iota + 1
	// WinB means competitor B won the comparison.
	WinB
	// Draw means neither competitor won.
	Draw
)

// String returns the wire form of the outcome.
func (o Outcome) String() string {
	switch o {
	case WinA:
		return "a"
	case WinB:
		return "b"
	case Draw:
		return "draw"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// Valid reports whether o is one of the three recognized outcomes.
func (o Outcome) Valid() bool {
	return o == WinA || o == WinB || o == Draw
}

// ParseOutcome converts a wire string into an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "a":
		return WinA, nil
	case "b":
		return WinB, nil
	case "draw":
		return Draw, nil
	default:
		return 0, fmt.Errorf("unrecognized outcome %q", s)
	}
}

// MarshalJSON encodes the outcome as its wire string.
func (o Outcome) MarshalJSON() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid outcome %d", uint8(o))
	}
	return json.Marshal(o.String())
}

// UnmarshalJSON decodes an outcome from its wire string.
func (o *Outcome) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("outcome must be a string: %w", err)
	}
	parsed, err := ParseOutcome(s)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// Submission is a validated comparison waiting to be accepted by the
// writer. ID is always set by the time it enters the queue.
type Submission struct {
	ID        string
	A         string
	B         string
	Outcome   Outcome
	Source    string
	CreatedAt time.Time
}

// Comparison is an accepted, immutable pairwise comparison attributed to
// a rating period.
type Comparison struct {
	ID        string    `json:"id"`
	A         string    `json:"a"`
	B         string    `json:"b"`
	Outcome   Outcome   `json:"outcome"`
	Source    string    `json:"source,omitempty"`
	PeriodID  uint64    `json:"period_id"`
	CreatedAt time.Time `json:"created_at"`
}
