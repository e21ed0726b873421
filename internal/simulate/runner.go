package simulate

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/arena/pkg/logger"
)

// Settle-phase polling.
const (
	settlePollInterval = 200 * time.Millisecond
	settleTimeout      = 2 * time.Minute
	progressEvery      = 1_000
)

// Run executes the complete simulation against a running service:
// register a population, submit sampled comparisons, close periods,
// then check how well the published order recovers the hidden skills.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{StartTime: time.Now()}

	logger.Get().Info(ctx, "starting arena simulation",
		logger.String("baseURL", config.BaseURL),
		logger.Int("competitors", config.Competitors),
		logger.Int("comparisons", config.Comparisons),
		logger.Int("workers", config.Workers),
		logger.Int("periodEvery", config.PeriodEvery),
		logger.Int("topN", config.TopN),
		logger.Any("seed", config.Seed),
		logger.String("timeout", config.Timeout.String()))

	client := newHTTPClient(config.Timeout)

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, client, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Build the hidden-skill population and sample matchups
	rng := rand.New(rand.NewSource(config.Seed))
	population := newPopulation(config.Competitors, rng)
	comparisons := sampleComparisons(config.Comparisons, population, config.Seed, rng)
	logger.Get().Info(ctx, "sampled matchups",
		logger.Int("competitors", len(population)),
		logger.Int("comparisons", len(comparisons)))

	// Step 3: Register the population
	if err := registerCompetitors(ctx, client, config, population, stats); err != nil {
		return fmt.Errorf("competitor registration failed: %w", err)
	}

	// Step 4: Submit comparisons concurrently, closing periods along the way
	if err := submitComparisons(ctx, client, config, comparisons, stats); err != nil {
		return fmt.Errorf("comparison submission failed: %w", err)
	}

	// Step 5: Drain the queue, close the final period and wait for the commit
	if err := settle(ctx, client, config, stats); err != nil {
		return fmt.Errorf("waiting for processing failed: %w", err)
	}

	// Step 6: Fetch the leaderboard
	leaderboard, err := fetchLeaderboard(ctx, client, config, stats)
	if err != nil {
		return fmt.Errorf("leaderboard retrieval failed: %w", err)
	}

	// Step 7: Verify rank agreement between hidden skill and rating order
	verifyRankAgreement(ctx, population, leaderboard, stats, config.Verbose)

	// Final statistics
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(stats)

	logger.Get().Info(ctx, "simulation completed")
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *httpClient, config *Config) error {
	logger.Get().Info(ctx, "checking service health")

	resp, err := client.get(ctx, config.BaseURL+"/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if _, err := readBody(resp); err != nil {
		return fmt.Errorf("failed to read health response: %w", err)
	}

	// Any 200 counts as healthy; the endpoint serves Prometheus metrics.
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// registerCompetitors creates the population up front so every id is
// queryable even before its first comparison. Conflicts from earlier
// runs against the same data directory are tolerated.
func registerCompetitors(ctx context.Context, client *httpClient, config *Config, population []competitor, stats *Stats) error {
	logger.Get().Info(ctx, "registering competitors", logger.Int("count", len(population)))

	var registered int64
	url := config.BaseURL + "/competitors"

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Workers)
	for _, c := range population {
		g.Go(func() error {
			resp, err := client.post(gctx, url, map[string]string{"id": c.ID})
			if err != nil {
				return fmt.Errorf("register %s: %w", c.ID, err)
			}
			if _, err := readBody(resp); err != nil {
				return fmt.Errorf("register %s: %w", c.ID, err)
			}
			switch resp.StatusCode {
			case http.StatusCreated:
				atomic.AddInt64(&registered, 1)
			case http.StatusConflict:
				// Left over from an earlier run, fine.
			default:
				return fmt.Errorf("register %s: HTTP %d", c.ID, resp.StatusCode)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	stats.CompetitorsRegistered = int(registered)
	logger.Get().Info(ctx, "competitors registered",
		logger.Int("created", stats.CompetitorsRegistered),
		logger.Int("existing", len(population)-stats.CompetitorsRegistered))
	return nil
}

// submitComparisons pushes every sampled comparison through POST
// /comparisons with bounded concurrency, requesting a period close each
// time the cumulative count crosses a PeriodEvery boundary.
func submitComparisons(ctx context.Context, client *httpClient, config *Config, comparisons []comparison, stats *Stats) error {
	logger.Get().Info(ctx, "submitting comparisons",
		logger.Int("count", len(comparisons)),
		logger.Int("workers", config.Workers))

	var (
		submitted int64
		accepted  int64
		duplicate int64
		failed    int64
		closes    int64
	)

	url := config.BaseURL + "/comparisons"

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Workers)
	for _, cmp := range comparisons {
		g.Go(func() error {
			switch submitSingleComparison(gctx, client, url, cmp) {
			case outcomeAccepted:
				atomic.AddInt64(&accepted, 1)
			case outcomeDuplicate:
				atomic.AddInt64(&duplicate, 1)
			default:
				atomic.AddInt64(&failed, 1)
			}

			n := atomic.AddInt64(&submitted, 1)
			if config.Verbose && n%progressEvery == 0 {
				logger.Get().Info(gctx, "submission progress",
					logger.Int("submitted", int(n)),
					logger.Int("total", len(comparisons)))
			}
			if config.PeriodEvery > 0 && n%int64(config.PeriodEvery) == 0 {
				if requestPeriodClose(gctx, client, config) {
					atomic.AddInt64(&closes, 1)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	stats.ComparisonsSubmitted = int(atomic.LoadInt64(&submitted))
	stats.ComparisonsAccepted = int(atomic.LoadInt64(&accepted))
	stats.ComparisonsDuplicate = int(atomic.LoadInt64(&duplicate))
	stats.ComparisonsFailed = int(atomic.LoadInt64(&failed))
	stats.ClosesInitiated = int(atomic.LoadInt64(&closes))

	logger.Get().Info(ctx, "comparison submission completed",
		logger.Int("accepted", stats.ComparisonsAccepted),
		logger.Int("duplicate", stats.ComparisonsDuplicate),
		logger.Int("failed", stats.ComparisonsFailed),
		logger.Int("closesInitiated", stats.ClosesInitiated))
	return nil
}

// Submission outcomes.
const (
	outcomeAccepted  = "accepted"
	outcomeDuplicate = "duplicate"
	outcomeFailed    = "failed"
)

// submitSingleComparison submits one comparison and classifies the result.
func submitSingleComparison(ctx context.Context, client *httpClient, url string, cmp comparison) string {
	resp, err := client.post(ctx, url, cmp)
	if err != nil {
		return outcomeFailed
	}

	var ack ackResponse
	if err := decodeBody(resp, &ack); err != nil {
		return outcomeFailed
	}

	switch resp.StatusCode {
	case http.StatusAccepted:
		return outcomeAccepted
	case http.StatusOK:
		if ack.Duplicate {
			return outcomeDuplicate
		}
		return outcomeAccepted
	default:
		return outcomeFailed
	}
}

// requestPeriodClose asks the service to close the open period and
// reports whether a close was actually initiated.
func requestPeriodClose(ctx context.Context, client *httpClient, config *Config) bool {
	resp, err := client.post(ctx, config.BaseURL+"/periods/close", nil)
	if err != nil {
		return false
	}

	var closed closeResponse
	if err := decodeBody(resp, &closed); err != nil {
		return false
	}
	return resp.StatusCode == http.StatusOK && closed.Initiated
}

// settle waits for the ingestion queue to drain, closes the final
// period, and waits for its processing to finish.
func settle(ctx context.Context, client *httpClient, config *Config, stats *Stats) error {
	logger.Get().Info(ctx, "waiting for the ingestion queue to drain")
	if err := pollStats(ctx, client, config, func(m map[string]interface{}) bool {
		v, ok := m["queueLength"].(float64)
		return ok && v == 0
	}); err != nil {
		return fmt.Errorf("queue never drained: %w", err)
	}

	if requestPeriodClose(ctx, client, config) {
		stats.ClosesInitiated++
	}

	logger.Get().Info(ctx, "waiting for period processing to finish")
	if err := pollStats(ctx, client, config, func(m map[string]interface{}) bool {
		processing, ok := m["processing"].(bool)
		return ok && !processing
	}); err != nil {
		return fmt.Errorf("processing never finished: %w", err)
	}
	return nil
}

// pollStats polls GET /stats until cond holds or the settle timeout
// expires.
func pollStats(ctx context.Context, client *httpClient, config *Config, cond func(map[string]interface{}) bool) error {
	deadline := time.Now().Add(settleTimeout)
	ticker := time.NewTicker(settlePollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		resp, err := client.get(ctx, config.BaseURL+"/stats")
		if err == nil {
			var m map[string]interface{}
			if err := decodeBody(resp, &m); err == nil && cond(m) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return fmt.Errorf("condition not met within %s", settleTimeout)
}

// fetchLeaderboard retrieves the top N leaderboard entries.
func fetchLeaderboard(ctx context.Context, client *httpClient, config *Config, stats *Stats) ([]entry, error) {
	logger.Get().Info(ctx, "fetching leaderboard", logger.Int("limit", config.TopN))

	url := fmt.Sprintf("%s/leaderboard?limit=%d", config.BaseURL, config.TopN)
	resp, err := client.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := readBody(resp)
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var leaderboard []entry
	if err := decodeBody(resp, &leaderboard); err != nil {
		return nil, err
	}

	stats.LeaderboardEntries = len(leaderboard)
	logger.Get().Info(ctx, "leaderboard retrieved", logger.Int("entries", len(leaderboard)))
	return leaderboard, nil
}

// displayFinalStats prints the final simulation statistics.
func displayFinalStats(stats *Stats) {
	var comparisonsPerSecond float64
	if stats.Duration > 0 {
		comparisonsPerSecond = float64(stats.ComparisonsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("competitorsRegistered", stats.CompetitorsRegistered),
		logger.Int("comparisonsSubmitted", stats.ComparisonsSubmitted),
		logger.Int("comparisonsAccepted", stats.ComparisonsAccepted),
		logger.Int("comparisonsDuplicate", stats.ComparisonsDuplicate),
		logger.Int("comparisonsFailed", stats.ComparisonsFailed),
		logger.Int("closesInitiated", stats.ClosesInitiated),
		logger.Int("leaderboardEntries", stats.LeaderboardEntries),
		logger.Float64("spearmanRho", stats.SpearmanRho),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("comparisonsPerSecond", comparisonsPerSecond))
}
