// Package dedupe tracks comparison ids so transport retries cannot be
// double-counted.
package dedupe

import (
	"context"
	"sync"
)

// Deduper records seen comparison ids for at-most-once acceptance.
type Deduper interface {
	// SeenAndRecord atomically checks whether id was seen and records it
	// if not. Returns true if id was already seen.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets an id so it can be retried. Used when a submission
	// was recorded but then failed to enter the queue (backpressure).
	Unrecord(ctx context.Context, id string)

	// Size reports the number of ids currently tracked.
	Size() int
}

const defaultMaxSize = 50_000

// seenSet implements Deduper with a map plus a fixed-size ring of slots.
// When the ring is full the oldest slot is evicted, so memory stays
// bounded while recent ids keep protecting against replays. A maxSize
// of zero or less disables eviction entirely.
type seenSet struct {
	mu      sync.Mutex
	seen    map[string]uint64 // id -> ring slot (slot unused in unbounded mode)
	ring    []string
	next    uint64 // total ids ever recorded; next%maxSize is the write slot
	maxSize int
}

// New creates a Deduper, bounded by default.
func New(opts ...Option) Deduper {
	s := &seenSet{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(s)
	}
	s.seen = make(map[string]uint64)
	if s.maxSize > 0 {
		s.ring = make([]string, s.maxSize)
	}
	return s
}

func (s *seenSet) SeenAndRecord(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[id]; ok {
		return true
	}

	if s.maxSize > 0 {
		slot := s.next % uint64(s.maxSize)
		// Evict whatever occupied this slot, unless that id moved on
		// (re-recorded after an Unrecord) and owns a newer slot now.
		if old := s.ring[slot]; old != "" {
			if owned, ok := s.seen[old]; ok && owned == slot {
				delete(s.seen, old)
			}
		}
		s.ring[slot] = id
		s.seen[id] = slot
	} else {
		s.seen[id] = 0
	}
	s.next++
	return false
}

func (s *seenSet) Unrecord(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// The ring slot keeps the stale id; eviction checks ownership, so a
	// stale slot is harmless.
	delete(s.seen, id)
}

func (s *seenSet) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
