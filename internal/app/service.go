// Package service wires the rating system together: it owns the single
// writer that drains the ingestion queue, the period scheduler, and the
// read paths the HTTP API depends on.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	submitqueue "github.com/okian/arena/internal/adapters/mq/queue"
	workerpool "github.com/okian/arena/internal/adapters/mq/worker"
	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/domain/dedupe"
	"github.com/okian/arena/internal/domain/matchmake"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/rating"
	"github.com/okian/arena/pkg/logger"
	"github.com/okian/arena/pkg/metrics"
)

const maxIDLength = 256

// Service implements the API dependencies for the rating system.
type Service struct {
	mu sync.RWMutex

	// writeMu serializes every store mutation: comparison appends, period
	// freezes and period commits. The writer goroutine and the processing
	// flow both take it, which is what keeps a freeze from interleaving
	// with an append.
	writeMu sync.Mutex

	// Core components
	store      repository.Store
	projection repository.Projection
	deduper    dedupe.Deduper
	queue      submitqueue.Queue
	engine     *rating.Engine
	pool       *workerpool.Pool

	// Configuration
	workerCount    int
	queueSize      int
	dedupeSize     int
	periodDuration time.Duration
	maxComparisons int
	defaults       rating.Rating
	storeOpts      []repository.StoreOption
	projectionOpts []repository.ProjectionOption
	engineOpts     []rating.Option

	// Period state. current caches the open period so reads and the count
	// trigger never hit the store; the writer and the freeze path keep it
	// in sync under mu. inflight is the single-flight guard: at most one
	// period is processing at any time.
	current  model.Period
	inflight atomic.Bool
	openedCh chan struct{}

	// State
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of rating workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize bounds the ingestion queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize bounds the idempotency cache of seen comparison ids.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithPeriodDuration sets the wall-clock close trigger for rating periods.
func WithPeriodDuration(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.periodDuration = d
		}
	}
}

// WithMaxComparisonsPerPeriod closes a period once it holds this many
// comparisons. Zero disables the count trigger.
func WithMaxComparisonsPerPeriod(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxComparisons = n
		}
	}
}

// WithDefaultRating seeds competitors on first appearance.
func WithDefaultRating(r rating.Rating) Option {
	return func(s *Service) {
		if r.Phi > 0 && r.Sigma > 0 {
			s.defaults = r
		}
	}
}

// WithStoreOptions forwards options to the Badger store built in Start.
func WithStoreOptions(opts ...repository.StoreOption) Option {
	return func(s *Service) {
		s.storeOpts = append(s.storeOpts, opts...)
	}
}

// WithProjectionOptions forwards options to the leaderboard projection.
func WithProjectionOptions(opts ...repository.ProjectionOption) Option {
	return func(s *Service) {
		s.projectionOpts = append(s.projectionOpts, opts...)
	}
}

// WithEngineOptions forwards options to the rating engine.
func WithEngineOptions(opts ...rating.Option) Option {
	return func(s *Service) {
		s.engineOpts = append(s.engineOpts, opts...)
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:    runtime.NumCPU(),
		queueSize:      8_192,
		dedupeSize:     50_000,
		periodDuration: 24 * time.Hour,
		maxComparisons: 0,
		defaults:       rating.DefaultRating(),
		openedCh:       make(chan struct{}, 1),
		stopCh:         make(chan struct{}),
		logger:         nil, // Resolved in Start
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start builds the components, recovers any interrupted period, and
// launches the writer and scheduler goroutines.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting rating service...")

	store, err := repository.NewBadgerStore(ctx,
		append([]repository.StoreOption{repository.WithDefaultRating(s.defaults)}, s.storeOpts...)...)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	s.store = store
	s.projection = repository.NewTreapProjection(ctx, s.projectionOpts...)
	s.deduper = dedupe.New(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = submitqueue.NewInMemoryQueue(submitqueue.WithCapacity(s.queueSize))
	s.engine = rating.New(s.engineOpts...)
	s.pool = workerpool.NewPool(s.workerCount, s.engine)
	s.pool.Start(ctx)

	current, err := s.store.EnsureOpenPeriod(ctx, time.Now().UTC())
	if err != nil {
		s.closeComponents(ctx)
		return fmt.Errorf("open first period: %w", err)
	}
	s.current = current
	metrics.UpdateOpenPeriodID(current.ID)
	metrics.UpdateOpenPeriodComparisons(current.Comparisons)

	if err := s.rebuildProjection(ctx); err != nil {
		s.closeComponents(ctx)
		return fmt.Errorf("rebuild leaderboard: %w", err)
	}
	if err := s.recoverPending(ctx); err != nil {
		s.closeComponents(ctx)
		return fmt.Errorf("recover interrupted periods: %w", err)
	}

	s.wg.Add(2)
	go s.writerLoop(ctx)
	go s.schedulerLoop(ctx)

	s.started = true
	s.logger.Info(ctx, "rating service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Uint64("openPeriod", current.ID),
		logger.Duration("periodDuration", s.periodDuration),
	)

	return nil
}

// Stop drains the queue, waits for any in-flight period, and releases the
// store. Safe to call more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	ctx := context.Background()
	s.logger.Info(ctx, "stopping rating service...")

	select {
	case <-s.stopCh:
		// Channel already closed
	default:
		close(s.stopCh)
	}

	// Closing the queue lets the writer drain what was already accepted
	// before its channel reports closed.
	_ = s.queue.Close()
	s.wg.Wait()

	s.pool.Stop()
	_ = s.projection.Close()
	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "store close failed", logger.Error(err))
	}

	s.logger.Info(ctx, "rating service stopped")
}

// closeComponents tears down whatever Start managed to build before an
// error. Called with s.mu held.
func (s *Service) closeComponents(ctx context.Context) {
	s.pool.Stop()
	_ = s.queue.Close()
	_ = s.projection.Close()
	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "store close failed", logger.Error(err))
	}
}

// Submit validates a comparison and hands it to the ingestion queue.
// Returns the comparison id and whether it was a duplicate of one already
// seen. The append itself happens asynchronously on the writer.
func (s *Service) Submit(ctx context.Context, sub model.Submission) (string, bool, error) {
	if err := validateSubmission(&sub); err != nil {
		metrics.RecordErrorByComponent("service", "validation")
		return "", false, err
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}

	if s.deduper.SeenAndRecord(ctx, sub.ID) {
		metrics.RecordComparisonDuplicate()
		s.logger.Debug(ctx, "duplicate comparison acknowledged", logger.String("id", sub.ID))
		return sub.ID, true, nil
	}

	if !s.queue.Enqueue(ctx, sub) {
		// Unrecord so the client can retry the exact same submission.
		s.deduper.Unrecord(ctx, sub.ID)
		metrics.RecordErrorByComponent("service", "backpressure")
		return "", false, fmt.Errorf("submission %s: %w", sub.ID, ErrBackpressure)
	}

	metrics.UpdateQueueSize(s.queue.Len())
	return sub.ID, false, nil
}

// Register creates a competitor with optional seed values. Zero seed
// fields fall back to the configured defaults.
func (s *Service) Register(ctx context.Context, c model.Competitor) (model.Competitor, error) {
	if err := validateID(c.ID, "competitor id"); err != nil {
		return model.Competitor{}, err
	}
	if c.Mu == 0 {
		c.Mu = s.defaults.Mu
	}
	if c.Phi == 0 {
		c.Phi = s.defaults.Phi
	}
	if c.Sigma == 0 {
		c.Sigma = s.defaults.Sigma
	}
	if c.Phi < 0 || c.Sigma < 0 {
		return model.Competitor{}, fmt.Errorf("deviation and volatility must be positive: %w", ErrValidation)
	}
	c.LastPeriod = 0
	c.CreatedAt = time.Now().UTC()

	if err := s.store.RegisterCompetitor(ctx, c); err != nil {
		return model.Competitor{}, err
	}
	if err := s.projection.Upsert(ctx, competitorEntry(c)); err != nil {
		s.logger.Warn(ctx, "projection upsert failed after register",
			logger.String("competitor", c.ID), logger.Error(err))
	}

	s.logger.Info(ctx, "competitor registered",
		logger.String("competitor", c.ID),
		logger.Float64("mu", c.Mu),
		logger.Float64("phi", c.Phi),
	)
	return c, nil
}

// Rating returns the stored rating of one competitor together with its
// current leaderboard rank. Rank is zero when the projection has not
// absorbed the competitor yet.
func (s *Service) Rating(ctx context.Context, id string) (repository.Entry, error) {
	c, err := s.store.Competitor(ctx, id)
	if err != nil {
		return repository.Entry{}, err
	}

	entry := repository.Entry{
		CompetitorID: c.ID,
		Mu:           c.Mu,
		Phi:          c.Phi,
		Sigma:        c.Sigma,
		LastPeriod:   c.LastPeriod,
	}
	if ranked, err := s.projection.Rank(ctx, id); err == nil {
		entry.Rank = ranked.Rank
	}
	return entry, nil
}

// Leaderboard returns the top n competitors by rating.
func (s *Service) Leaderboard(ctx context.Context, n int) ([]repository.Entry, error) {
	return s.projection.TopN(ctx, n)
}

// History returns every rating snapshot recorded for a competitor,
// oldest period first.
func (s *Service) History(ctx context.Context, id string) ([]model.HistoryRecord, error) {
	if _, err := s.store.Competitor(ctx, id); err != nil {
		return nil, err
	}
	return s.store.History(ctx, id)
}

// CurrentPeriod reports the open period as the writer last saw it.
func (s *Service) CurrentPeriod(ctx context.Context) (model.Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return model.Period{}, ErrNotStarted
	}
	return s.current, nil
}

// ClosePeriod triggers a manual period close. Returns whether processing
// was initiated; false means nothing was eligible (empty open period or a
// close already in flight).
func (s *Service) ClosePeriod(ctx context.Context) (bool, error) {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return false, ErrNotStarted
	}
	return s.closeCurrentPeriod(ctx, "manual")
}

// NextPair proposes the most informative comparison to run next.
func (s *Service) NextPair(ctx context.Context) (matchmake.Pair, error) {
	competitors, err := s.store.Competitors(ctx)
	if err != nil {
		return matchmake.Pair{}, fmt.Errorf("load competitors: %w", err)
	}
	counts, err := s.store.ComparisonCounts(ctx)
	if err != nil {
		return matchmake.Pair{}, fmt.Errorf("load comparison counts: %w", err)
	}

	candidates := make([]matchmake.Candidate, 0, len(competitors))
	for _, c := range competitors {
		candidates = append(candidates, matchmake.Candidate{
			ID:          c.ID,
			Mu:          c.Mu,
			Comparisons: counts[c.ID],
		})
	}
	return matchmake.Propose(candidates)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}

	if s.started {
		queueLen := s.queue.Len()
		totalCompetitors := s.projection.Count(ctx)

		stats["queueLength"] = queueLen
		stats["totalCompetitors"] = totalCompetitors
		stats["dedupeEntries"] = s.deduper.Size()
		stats["openPeriod"] = s.current.ID
		stats["openPeriodComparisons"] = s.current.Comparisons
		stats["processing"] = s.inflight.Load()

		// Update metrics
		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateTotalCompetitors(totalCompetitors)
		metrics.UpdateWorkerCount(s.pool.Size())
	}

	return stats
}

// Size returns the current number of ids tracked by the deduper.
func (s *Service) Size() int {
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}

// validateSubmission rejects submissions the engine must never see.
func validateSubmission(sub *model.Submission) error {
	if err := validateID(sub.A, "competitor a"); err != nil {
		return err
	}
	if err := validateID(sub.B, "competitor b"); err != nil {
		return err
	}
	if sub.A == sub.B {
		return fmt.Errorf("a competitor cannot face itself: %w", ErrValidation)
	}
	if !sub.Outcome.Valid() {
		return fmt.Errorf("outcome %q: %w", sub.Outcome, ErrValidation)
	}
	if sub.ID != "" && len(sub.ID) > maxIDLength {
		return fmt.Errorf("comparison id too long: %w", ErrValidation)
	}
	return nil
}

// validateID enforces the id constraints shared by competitors and
// comparisons. NUL bytes are rejected because ids embed into store keys.
func validateID(id, field string) error {
	if id == "" {
		return fmt.Errorf("%s must not be empty: %w", field, ErrValidation)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%s too long: %w", field, ErrValidation)
	}
	for i := 0; i < len(id); i++ {
		if id[i] == 0 {
			return fmt.Errorf("%s contains a NUL byte: %w", field, ErrValidation)
		}
	}
	return nil
}

// competitorEntry maps a stored competitor onto a projection row.
func competitorEntry(c model.Competitor) repository.Entry {
	return repository.Entry{
		CompetitorID: c.ID,
		Mu:           c.Mu,
		Phi:          c.Phi,
		Sigma:        c.Sigma,
		LastPeriod:   c.LastPeriod,
	}
}
