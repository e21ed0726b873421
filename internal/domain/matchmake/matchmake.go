// Package matchmake proposes which pair of competitors to compare next.
//
// The heuristic favors competitors with the fewest comparisons so coverage
// stays even across the population, and among those prefers opponents with
// the closest current rating, where a comparison carries the most
// information. Proposals are advisory: nothing obliges a caller to submit
// the proposed pair.
package matchmake

import "sort"

// Candidate is one competitor eligible for pairing.
type Candidate struct {
	ID          string
	Mu          float64
	Comparisons int // lifetime comparisons, including the open period
}

// Pair is a proposed comparison.
type Pair struct {
	A string `json:"a"`
	B string `json:"b"`
}

// Propose selects the next pair from the candidate set. The least-compared
// candidate anchors the pair; its opponent is the rating-closest remaining
// candidate, with comparison count and id as deterministic tiebreaks.
func Propose(candidates []Candidate) (Pair, error) {
	if len(candidates) < 2 {
		return Pair{}, ErrNotEnoughCandidates
	}

	ordered := make([]Candidate, len(candidates))
	copy(ordered, candidates)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Comparisons != ordered[j].Comparisons {
			return ordered[i].Comparisons < ordered[j].Comparisons
		}
		return ordered[i].ID < ordered[j].ID
	})

	anchor := ordered[0]
	best := -1
	for i := 1; i < len(ordered); i++ {
		if ordered[i].ID == anchor.ID {
			continue
		}
		if best < 0 || closer(anchor, ordered[i], ordered[best]) {
			best = i
		}
	}
	if best < 0 {
		return Pair{}, ErrNotEnoughCandidates
	}
	return Pair{A: anchor.ID, B: ordered[best].ID}, nil
}

// closer reports whether candidate a is a better opponent for the anchor
// than candidate b.
func closer(anchor, a, b Candidate) bool {
	da, db := abs(a.Mu-anchor.Mu), abs(b.Mu-anchor.Mu)
	if da != db {
		return da < db
	}
	if a.Comparisons != b.Comparisons {
		return a.Comparisons < b.Comparisons
	}
	return a.ID < b.ID
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
