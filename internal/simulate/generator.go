package simulate

import (
	"fmt"
	"math"
	"math/rand"
)

// Hidden skill distribution. Skills live on the same display scale the
// service rates on so the logistic win model below lines up with it.
const (
	skillMean   = 1500.0
	skillSpread = 300.0
)

// logisticBase matches the classical pairwise expectation curve: a 400
// point skill gap gives the stronger side ten-to-one odds.
const (
	logisticBase  = 10.0
	logisticScale = 400.0
)

// newPopulation creates n competitors with hidden skills drawn from a
// normal distribution. Deterministic for a fixed rng.
func newPopulation(n int, rng *rand.Rand) []competitor {
	pop := make([]competitor, n)
	for i := range pop {
		pop[i] = competitor{
			ID:    fmt.Sprintf("sim-%04d", i),
			Skill: skillMean + rng.NormFloat64()*skillSpread,
		}
	}
	return pop
}

// winProbability returns the chance that skill sa beats skill sb.
func winProbability(sa, sb float64) float64 {
	return 1.0 / (1.0 + math.Pow(logisticBase, (sb-sa)/logisticScale))
}

// sampleComparisons draws m matchups between distinct competitors and
// decides each outcome by the hidden skills. Comparison ids embed the
// seed and sequence number, so a rerun with the same seed against the
// same server shows up as duplicates instead of double-counting.
func sampleComparisons(m int, pop []competitor, seed int64, rng *rand.Rand) []comparison {
	comparisons := make([]comparison, m)
	for i := range comparisons {
		ai := rng.Intn(len(pop))
		bi := rng.Intn(len(pop) - 1)
		if bi >= ai {
			bi++
		}

		a, b := pop[ai], pop[bi]
		outcome := "b"
		if rng.Float64() < winProbability(a.Skill, b.Skill) {
			outcome = "a"
		}

		comparisons[i] = comparison{
			ID:      fmt.Sprintf("sim-%d-%06d", seed, i),
			A:       a.ID,
			B:       b.ID,
			Outcome: outcome,
			Source:  "arena-sim",
		}
	}
	return comparisons
}
