package simulate

import (
	"context"
	"fmt"
	"sort"

	"github.com/okian/arena/pkg/logger"
)

// Agreement below this suggests the rating order is not tracking the
// hidden skills; with a few comparisons per competitor it should sit
// well above it.
const minExpectedAgreement = 0.5

// verifyRankAgreement checks the published leaderboard order against the
// hidden skills that generated the outcomes.
func verifyRankAgreement(ctx context.Context, population []competitor, leaderboard []entry, stats *Stats, verbose bool) {
	logger.Get().Info(ctx, "verifying rank agreement")

	skills := make(map[string]float64, len(population))
	for _, c := range population {
		skills[c.ID] = c.Skill
	}

	// The server may hold competitors from other runs; verify only the
	// rows this simulation can score.
	known := make([]entry, 0, len(leaderboard))
	for _, e := range leaderboard {
		if _, ok := skills[e.CompetitorID]; ok {
			known = append(known, e)
		}
	}

	if err := verifyOrdering(known); err != nil {
		logger.Get().Warn(ctx, "leaderboard ordering violation", logger.Error(err))
	}

	rho := spearman(known, skills)
	stats.SpearmanRho = rho

	if rho < minExpectedAgreement {
		logger.Get().Warn(ctx, "weak agreement between hidden skill and rating order",
			logger.Float64("spearmanRho", rho),
			logger.Int("entries", len(known)))
	} else {
		logger.Get().Info(ctx, "rating order tracks hidden skills",
			logger.Float64("spearmanRho", rho),
			logger.Int("entries", len(known)))
	}

	displayTopPerformers(ctx, known, skills, verbose)
}

// verifyOrdering checks that the leaderboard is sorted by rating.
func verifyOrdering(leaderboard []entry) error {
	for i := 1; i < len(leaderboard); i++ {
		if leaderboard[i].Mu > leaderboard[i-1].Mu {
			return fmt.Errorf("leaderboard not sorted by rating at position %d", i)
		}
	}
	return nil
}

// spearman computes the rank correlation between the leaderboard order
// and the hidden-skill order over the same entries. 1 is perfect
// agreement, -1 perfect inversion.
func spearman(entries []entry, skills map[string]float64) float64 {
	n := len(entries)
	if n < 2 {
		return 1
	}

	// Leaderboard rank is the slice position. Skill rank comes from
	// sorting the same entries by hidden skill, best first.
	bySkill := make([]int, n)
	for i := range bySkill {
		bySkill[i] = i
	}
	sort.Slice(bySkill, func(i, j int) bool {
		return skills[entries[bySkill[i]].CompetitorID] > skills[entries[bySkill[j]].CompetitorID]
	})

	skillRank := make([]int, n)
	for rank, idx := range bySkill {
		skillRank[idx] = rank
	}

	var sum float64
	for i := 0; i < n; i++ {
		d := float64(i - skillRank[i])
		sum += d * d
	}

	nf := float64(n)
	return 1 - 6*sum/(nf*(nf*nf-1))
}

// displayTopPerformers shows the top of the leaderboard next to the
// hidden skills behind it.
func displayTopPerformers(ctx context.Context, leaderboard []entry, skills map[string]float64, verbose bool) {
	topN := 10
	if len(leaderboard) < topN {
		topN = len(leaderboard)
	}

	for i := 0; i < topN; i++ {
		e := leaderboard[i]
		logger.Get().Info(ctx, "top performer",
			logger.Int("rank", e.Rank),
			logger.String("competitor", e.CompetitorID),
			logger.Float64("mu", e.Mu),
			logger.Float64("phi", e.Phi),
			logger.Float64("hiddenSkill", skills[e.CompetitorID]))
	}

	if verbose && len(leaderboard) > 0 {
		var sum float64
		for _, e := range leaderboard {
			sum += e.Mu
		}
		logger.Get().Info(ctx, "rating statistics",
			logger.Float64("average", sum/float64(len(leaderboard))),
			logger.Float64("maximum", leaderboard[0].Mu),
			logger.Float64("minimum", leaderboard[len(leaderboard)-1].Mu))
	}
}
