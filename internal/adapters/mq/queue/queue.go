// Package queue buffers validated submissions between the API surface and
// the single writer that persists them.
package queue

import (
	"context"
	"sync"

	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/pkg/metrics"
)

const defaultCapacity = 8_192

// Submission is the payload type flowing through the queue.
type Submission = model.Submission

// Queue provides non-blocking enqueue and channel-based dequeue.
type Queue interface {
	// Enqueue adds a submission. Returns false when the queue is full or
	// closed; the caller surfaces that as backpressure.
	Enqueue(ctx context.Context, s Submission) bool

	// Dequeue returns the consumption channel. It is closed when the
	// queue is closed and fully drained.
	Dequeue() <-chan Submission

	// Len returns the current number of buffered submissions.
	Len() int

	// Close stops intake. Buffered submissions remain consumable.
	Close() error

	// IsClosed reports whether the queue stopped accepting submissions.
	IsClosed() bool
}

// InMemoryQueue implements Queue over one buffered channel.
type InMemoryQueue struct {
	subs     chan Submission
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a bounded in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.subs = make(chan Submission, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds a submission without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, s Submission) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueRejected("closed")
		return false
	}

	select {
	case q.subs <- s:
		metrics.RecordQueueEnqueued()
		metrics.UpdateQueueSize(len(q.subs))
		return true
	case <-ctx.Done():
		metrics.RecordQueueRejected("context_cancelled")
		return false
	default:
		metrics.RecordQueueRejected("full")
		return false
	}
}

// Dequeue returns the consumption channel.
func (q *InMemoryQueue) Dequeue() <-chan Submission {
	return q.subs
}

// Len returns the number of buffered submissions.
func (q *InMemoryQueue) Len() int {
	n := len(q.subs)
	metrics.UpdateQueueSize(n)
	return n
}

// Close stops intake. Safe to call more than once.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.subs)
	q.closed = true
	return nil
}

// IsClosed reports whether intake has stopped.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
