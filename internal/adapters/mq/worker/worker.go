// Package worker runs the per-competitor rating computations of a period
// in parallel. Every job reads only frozen inputs, so workers never
// contend and the batch result is independent of scheduling order.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/okian/arena/internal/domain/rating"
	"github.com/okian/arena/pkg/logger"
	"github.com/okian/arena/pkg/metrics"
)

const (
	defaultJobBuffer      = 256
	workerShutdownTimeout = 5 * time.Second
)

// Job is one competitor's rating computation: its pre-period rating and
// the opponents faced, all snapshotted at period freeze.
type Job struct {
	CompetitorID string
	Current      rating.Rating
	Opponents    []rating.Opponent
}

// Result is the staged outcome of one job. Rated mirrors whether the
// competitor had comparisons; Converged is false when the volatility
// solver hit its cap and the rating carries the last iterate.
type Result struct {
	CompetitorID string
	Rating       rating.Rating
	Iterations   int
	Converged    bool
	Rated        bool
}

// Rater computes a post-period rating from frozen inputs.
type Rater interface {
	Rate(cur rating.Rating, opponents []rating.Opponent) rating.Result
}

// Worker consumes jobs until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is cancelled or the pool
	// shuts down.
	Run(ctx context.Context)

	// Shutdown stops the worker, waiting for the in-flight job.
	Shutdown(ctx context.Context) error
}

// RatingWorker implements Worker over a shared jobs channel.
type RatingWorker struct {
	rater   Rater
	jobs    <-chan Job
	results chan<- Result
	name    string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewRatingWorker creates a worker bound to the pool's channels.
func NewRatingWorker(rater Rater, jobs <-chan Job, results chan<- Result, opts ...Option) *RatingWorker {
	w := &RatingWorker{
		rater:    rater,
		jobs:     jobs,
		results:  results,
		name:     "rating-worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run consumes jobs until ctx is cancelled, the pool shuts down, or the
// jobs channel closes.
func (w *RatingWorker) Run(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-w.jobs:
			if !ok {
				return
			}
			res := w.process(job)
			select {
			case w.results <- res:
			case <-ctx.Done():
				return
			case <-w.shutdown:
				return
			}
		}
	}
}

// Shutdown stops the worker and waits for it to finish.
func (w *RatingWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "worker shutdown timed out", logger.String("worker", w.name))
		return fmt.Errorf("worker %s shutdown: %w", w.name, ctx.Err())
	}
}

// process runs one rating computation and records its metrics.
func (w *RatingWorker) process(job Job) Result {
	start := time.Now()
	res := w.rater.Rate(job.Current, job.Opponents)
	metrics.RecordRatingLatency(float64(time.Since(start).Milliseconds()))
	metrics.RecordSolverIterations(res.Iterations)
	if !res.Converged {
		metrics.RecordDegradedUpdate()
	}

	return Result{
		CompetitorID: job.CompetitorID,
		Rating:       res.Rating,
		Iterations:   res.Iterations,
		Converged:    res.Converged,
		Rated:        len(job.Opponents) > 0,
	}
}

// Pool fans jobs out to a fixed set of workers and collects the batch.
type Pool struct {
	workers []*RatingWorker
	jobs    chan Job
	results chan Result

	shutdown chan struct{}

	logger logger.Logger
}

// NewPool creates a pool of workerCount workers around the given rater.
func NewPool(workerCount int, rater Rater) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	p := &Pool{
		workers:  make([]*RatingWorker, workerCount),
		jobs:     make(chan Job, defaultJobBuffer),
		results:  make(chan Result, defaultJobBuffer),
		shutdown: make(chan struct{}),
		logger:   logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		p.workers[i] = NewRatingWorker(
			rater,
			p.jobs,
			p.results,
			WithName("rating-worker-"+strconv.Itoa(i)),
		)
	}

	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Start launches all workers.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Process feeds a batch of jobs to the pool and waits for every result.
// Only one batch runs at a time; the single-flight discipline upstream
// guarantees that. Returns an error when ctx is cancelled or the pool
// stops before the batch completes.
func (p *Pool) Process(ctx context.Context, jobs []Job) ([]Result, error) {
	if len(jobs) == 0 {
		return nil, nil
	}

	go func() {
		for _, job := range jobs {
			select {
			case p.jobs <- job:
			case <-ctx.Done():
				return
			case <-p.shutdown:
				return
			}
		}
	}()

	results := make([]Result, 0, len(jobs))
	for len(results) < len(jobs) {
		select {
		case res := <-p.results:
			results = append(results, res)
			metrics.RecordRatingComputed()
		case <-ctx.Done():
			return results, fmt.Errorf("rating batch aborted: %w", ctx.Err())
		case <-p.shutdown:
			return results, ErrPoolStopped
		}
	}
	return results, nil
}

// Size reports the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Stop shuts the pool down, waiting briefly for each worker. Call at
// most once.
func (p *Pool) Stop() {
	close(p.shutdown)
	ctx, cancel := context.WithTimeout(context.Background(), workerShutdownTimeout)
	defer cancel()
	for _, w := range p.workers {
		_ = w.Shutdown(ctx)
	}
}
