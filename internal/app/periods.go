package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	workerpool "github.com/okian/arena/internal/adapters/mq/worker"
	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/rating"
	"github.com/okian/arena/pkg/logger"
	"github.com/okian/arena/pkg/metrics"
)

// writerLoop is the single writer. It drains the ingestion queue and is
// the only goroutine that appends comparisons, which makes "accepted"
// and "durable under a period" the same event.
func (s *Service) writerLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case sub, ok := <-s.queue.Dequeue():
			if !ok {
				return
			}
			s.accept(ctx, sub)
		}
	}
}

// accept persists one submission under the open period. Append and
// freeze share writeMu, so the period the writer sees cannot close
// between the check and the append.
func (s *Service) accept(ctx context.Context, sub model.Submission) {
	s.writeMu.Lock()
	s.mu.RLock()
	periodID := s.current.ID
	s.mu.RUnlock()

	cmp := model.Comparison{
		ID:        sub.ID,
		A:         sub.A,
		B:         sub.B,
		Outcome:   sub.Outcome,
		Source:    sub.Source,
		PeriodID:  periodID,
		CreatedAt: sub.CreatedAt,
	}
	res, err := s.store.AppendComparison(ctx, cmp)
	s.writeMu.Unlock()
	if err != nil {
		// Unrecord so the client's retry is not swallowed as a duplicate.
		s.deduper.Unrecord(ctx, sub.ID)
		metrics.RecordErrorByComponent("writer", "append_failed")
		s.logger.Error(ctx, "comparison dropped",
			logger.String("id", sub.ID),
			logger.String("a", sub.A),
			logger.String("b", sub.B),
			logger.Error(err),
		)
		return
	}

	s.mu.Lock()
	if res.Period.ID == s.current.ID {
		s.current = res.Period
	}
	s.mu.Unlock()

	if res.CreatedA {
		s.seedProjection(ctx, sub.A)
	}
	if res.CreatedB {
		s.seedProjection(ctx, sub.B)
	}

	metrics.RecordComparisonAccepted()
	metrics.UpdateQueueSize(s.queue.Len())
	metrics.UpdateOpenPeriodComparisons(res.Period.Comparisons)

	if s.maxComparisons > 0 && res.Period.Comparisons >= s.maxComparisons {
		if _, err := s.closeCurrentPeriod(ctx, "max_comparisons"); err != nil {
			s.logger.Error(ctx, "count-triggered period close failed", logger.Error(err))
		}
	}
}

// seedProjection makes an auto-created competitor visible on the
// leaderboard at the default rating.
func (s *Service) seedProjection(ctx context.Context, id string) {
	entry := repository.Entry{
		CompetitorID: id,
		Mu:           s.defaults.Mu,
		Phi:          s.defaults.Phi,
		Sigma:        s.defaults.Sigma,
	}
	if err := s.projection.Upsert(ctx, entry); err != nil {
		s.logger.Warn(ctx, "projection seed failed",
			logger.String("competitor", id), logger.Error(err))
	}
}

// schedulerLoop fires the wall-clock close trigger. Every period opening
// resets the timer, so count-triggered and manual closes grant the next
// period its full duration.
func (s *Service) schedulerLoop(ctx context.Context) {
	defer s.wg.Done()

	timer := time.NewTimer(s.periodDuration)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-s.openedCh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.periodDuration)
		case <-timer.C:
			if _, err := s.closeCurrentPeriod(ctx, "duration"); err != nil {
				s.logger.Error(ctx, "scheduled period close failed", logger.Error(err))
			}
			timer.Reset(s.periodDuration)
		}
	}
}

// notifyOpened nudges the scheduler without ever blocking the writer.
func (s *Service) notifyOpened() {
	select {
	case s.openedCh <- struct{}{}:
	default:
	}
}

// closeCurrentPeriod runs one close trigger to completion: freeze the
// open period (or pick up one stuck in processing), open the successor,
// and hand the frozen set to the engine in the background. All three
// triggers converge here; inflight keeps them single-flight.
func (s *Service) closeCurrentPeriod(ctx context.Context, reason string) (bool, error) {
	s.writeMu.Lock()

	if s.inflight.Load() {
		s.writeMu.Unlock()
		s.logger.Info(ctx, "period close skipped, processing in flight",
			logger.String("reason", reason))
		return false, nil
	}

	// A period stuck in processing, left by a crash or a failed commit,
	// takes precedence over freezing the open one.
	pending, err := s.store.ProcessingPeriods(ctx)
	if err != nil {
		s.writeMu.Unlock()
		return false, fmt.Errorf("scan processing periods: %w", err)
	}

	var target model.Period
	if len(pending) > 0 {
		target = pending[0]
		s.logger.Warn(ctx, "retrying interrupted period",
			logger.Uint64("period", target.ID),
			logger.String("reason", reason))
	} else {
		frozen, next, err := s.store.FreezePeriod(ctx, time.Now().UTC())
		if err != nil {
			s.writeMu.Unlock()
			if errors.Is(err, repository.ErrEmptyPeriod) {
				s.logger.Info(ctx, "period close skipped, no comparisons",
					logger.String("reason", reason))
				return false, nil
			}
			return false, fmt.Errorf("freeze period: %w", err)
		}

		s.mu.Lock()
		s.current = next
		s.mu.Unlock()
		metrics.UpdateOpenPeriodID(next.ID)
		metrics.UpdateOpenPeriodComparisons(0)
		s.notifyOpened()

		target = frozen
		s.logger.Info(ctx, "period frozen",
			logger.Uint64("period", frozen.ID),
			logger.Int("comparisons", frozen.Comparisons),
			logger.Uint64("nextPeriod", next.ID),
			logger.String("reason", reason))
	}

	// Claim the single-flight slot before releasing writeMu so a racing
	// trigger cannot freeze a second period while this one processes.
	s.inflight.Store(true)
	s.writeMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inflight.Store(false)
		if err := s.processPeriod(ctx, target); err != nil {
			s.logger.Error(ctx, "period processing failed",
				logger.Uint64("period", target.ID),
				logger.Error(err))
		}
	}()

	return true, nil
}

// processPeriod computes and commits one frozen period. Every input is
// read before any write, every computation sees only pre-commit state,
// and the commit is a single transaction, so a crash or error anywhere
// in here leaves a period that recovery can simply re-run.
func (s *Service) processPeriod(ctx context.Context, period model.Period) error {
	start := time.Now()

	comparisons, err := s.store.Comparisons(ctx, period.ID)
	if err != nil {
		return fmt.Errorf("load comparisons for period %d: %w", period.ID, err)
	}
	competitors, err := s.store.Competitors(ctx)
	if err != nil {
		return fmt.Errorf("load competitors for period %d: %w", period.ID, err)
	}

	// The freeze-time population: competitors created after the freeze
	// belong to later periods and must not decay for this one.
	snapshot := make(map[string]model.Competitor, len(competitors))
	for _, c := range competitors {
		if c.CreatedAt.After(period.ClosedAt) {
			continue
		}
		snapshot[c.ID] = c
	}

	jobs := buildJobs(snapshot, comparisons, s.defaults)
	results, err := s.pool.Process(ctx, jobs)
	if err != nil {
		return fmt.Errorf("rate period %d: %w", period.ID, err)
	}

	updates := buildUpdates(snapshot, results, period.ID, time.Now().UTC())

	s.writeMu.Lock()
	applied, err := s.store.CommitPeriod(ctx, period.ID, updates)
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("commit period %d: %w", period.ID, err)
	}

	if err := s.rebuildProjection(ctx); err != nil {
		return fmt.Errorf("rebuild leaderboard after period %d: %w", period.ID, err)
	}

	rated, degraded := 0, 0
	for _, res := range results {
		if res.Rated {
			rated++
		}
		if !res.Converged {
			degraded++
		}
	}

	elapsed := time.Since(start)
	metrics.RecordPeriodProcessed()
	metrics.RecordPeriodProcessDuration(float64(elapsed.Milliseconds()))

	s.logger.Info(ctx, "period committed",
		logger.Uint64("period", period.ID),
		logger.Int("comparisons", len(comparisons)),
		logger.Int("competitors", len(updates)),
		logger.Int("rated", rated),
		logger.Int("degraded", degraded),
		logger.Bool("applied", applied),
		logger.Duration("took", elapsed),
	)
	return nil
}

// recoverPending re-processes periods left in processing by a previous
// run. Runs synchronously during Start, before the writer exists, so no
// locking is needed beyond what processPeriod takes itself.
func (s *Service) recoverPending(ctx context.Context) error {
	pending, err := s.store.ProcessingPeriods(ctx)
	if err != nil {
		return fmt.Errorf("scan processing periods: %w", err)
	}

	for _, period := range pending {
		s.logger.Warn(ctx, "recovering interrupted period",
			logger.Uint64("period", period.ID),
			logger.Int("comparisons", period.Comparisons))
		if err := s.processPeriod(ctx, period); err != nil {
			return err
		}
	}
	return nil
}

// rebuildProjection republishes the leaderboard from committed state.
func (s *Service) rebuildProjection(ctx context.Context) error {
	competitors, err := s.store.Competitors(ctx)
	if err != nil {
		return fmt.Errorf("load competitors: %w", err)
	}

	entries := make([]repository.Entry, 0, len(competitors))
	for _, c := range competitors {
		entries = append(entries, competitorEntry(c))
	}
	return s.projection.ReplaceAll(ctx, entries)
}

// buildJobs turns a frozen period into one rating job per snapshot
// competitor. Opponent ratings come from the same pre-period snapshot,
// never from another job's output, which is what makes the batch
// order-independent. Competitors without comparisons get an empty
// opponent list and decay.
func buildJobs(snapshot map[string]model.Competitor, comparisons []model.Comparison, defaults rating.Rating) []workerpool.Job {
	// Opponent sums are accumulated in comparison-id order rather than
	// arrival order, so the same comparison set always produces the same
	// floating-point result no matter how submissions interleaved.
	ordered := make([]model.Comparison, len(comparisons))
	copy(ordered, comparisons)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	opponents := make(map[string][]rating.Opponent, len(snapshot))
	for _, cmp := range ordered {
		ra := snapshotRating(snapshot, cmp.A, defaults)
		rb := snapshotRating(snapshot, cmp.B, defaults)
		scoreA, scoreB := outcomeScores(cmp.Outcome)
		opponents[cmp.A] = append(opponents[cmp.A], rating.Opponent{Mu: rb.Mu, Phi: rb.Phi, Score: scoreA})
		opponents[cmp.B] = append(opponents[cmp.B], rating.Opponent{Mu: ra.Mu, Phi: ra.Phi, Score: scoreB})
	}

	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	jobs := make([]workerpool.Job, 0, len(ids))
	for _, id := range ids {
		c := snapshot[id]
		jobs = append(jobs, workerpool.Job{
			CompetitorID: id,
			Current:      rating.Rating{Mu: c.Mu, Phi: c.Phi, Sigma: c.Sigma},
			Opponents:    opponents[id],
		})
	}
	return jobs
}

// snapshotRating looks a competitor up in the freeze-time snapshot,
// falling back to defaults for the clock-skew case where a participant's
// creation timestamp landed after the freeze.
func snapshotRating(snapshot map[string]model.Competitor, id string, defaults rating.Rating) rating.Rating {
	if c, ok := snapshot[id]; ok {
		return rating.Rating{Mu: c.Mu, Phi: c.Phi, Sigma: c.Sigma}
	}
	return defaults
}

// outcomeScores maps an outcome onto the Glicko-2 scores of both sides.
func outcomeScores(o model.Outcome) (scoreA, scoreB float64) {
	switch o {
	case model.WinA:
		return rating.ScoreWin, rating.ScoreLoss
	case model.WinB:
		return rating.ScoreLoss, rating.ScoreWin
	default:
		return rating.ScoreDraw, rating.ScoreDraw
	}
}

// buildUpdates pairs each result with its history record, ordered by
// competitor id so a commit writes a deterministic batch.
func buildUpdates(snapshot map[string]model.Competitor, results []workerpool.Result, periodID uint64, now time.Time) []repository.CompetitorUpdate {
	updates := make([]repository.CompetitorUpdate, 0, len(results))
	for _, res := range results {
		prev := snapshot[res.CompetitorID]
		lastPeriod := prev.LastPeriod
		if res.Rated {
			lastPeriod = periodID
		}
		updates = append(updates, repository.CompetitorUpdate{
			Competitor: model.Competitor{
				ID:         res.CompetitorID,
				Mu:         res.Rating.Mu,
				Phi:        res.Rating.Phi,
				Sigma:      res.Rating.Sigma,
				LastPeriod: lastPeriod,
				CreatedAt:  prev.CreatedAt,
			},
			History: model.HistoryRecord{
				CompetitorID: res.CompetitorID,
				PeriodID:     periodID,
				Mu:           res.Rating.Mu,
				Phi:          res.Rating.Phi,
				Sigma:        res.Rating.Sigma,
				Rated:        res.Rated,
				Degraded:     !res.Converged,
				RecordedAt:   now,
			},
		})
	}

	sort.Slice(updates, func(i, j int) bool {
		return updates[i].Competitor.ID < updates[j].Competitor.ID
	})
	return updates
}
