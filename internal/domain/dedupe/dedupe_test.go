package dedupe

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestSeenAndRecord(t *testing.T) {
	ctx := context.Background()
	d := New()

	if d.SeenAndRecord(ctx, "cmp-1") {
		t.Error("first record of cmp-1 reported as seen")
	}
	if !d.SeenAndRecord(ctx, "cmp-1") {
		t.Error("second record of cmp-1 not reported as seen")
	}
	if d.SeenAndRecord(ctx, "cmp-2") {
		t.Error("first record of cmp-2 reported as seen")
	}
	if got := d.Size(); got != 2 {
		t.Errorf("size = %d, want 2", got)
	}
}

func TestUnrecord(t *testing.T) {
	ctx := context.Background()
	d := New()

	d.SeenAndRecord(ctx, "cmp-1")
	d.Unrecord(ctx, "cmp-1")

	if d.SeenAndRecord(ctx, "cmp-1") {
		t.Error("unrecorded id still reported as seen")
	}
	if got := d.Size(); got != 1 {
		t.Errorf("size = %d, want 1", got)
	}

	// Unrecording an unknown id is a no-op.
	d.Unrecord(ctx, "never-seen")
	if got := d.Size(); got != 1 {
		t.Errorf("size after no-op unrecord = %d, want 1", got)
	}
}

func TestBoundedEviction(t *testing.T) {
	ctx := context.Background()
	d := New(WithMaxSize(3))

	for i := 0; i < 3; i++ {
		d.SeenAndRecord(ctx, fmt.Sprintf("cmp-%d", i))
	}
	if got := d.Size(); got != 3 {
		t.Fatalf("size = %d, want 3", got)
	}

	// A fourth id evicts the oldest.
	d.SeenAndRecord(ctx, "cmp-3")
	if got := d.Size(); got != 3 {
		t.Errorf("size after eviction = %d, want 3", got)
	}
	if d.SeenAndRecord(ctx, "cmp-0") {
		t.Error("evicted cmp-0 still reported as seen")
	}
	if !d.SeenAndRecord(ctx, "cmp-3") {
		t.Error("recent cmp-3 not reported as seen")
	}
}

func TestEvictionAfterUnrecord(t *testing.T) {
	ctx := context.Background()
	d := New(WithMaxSize(2))

	d.SeenAndRecord(ctx, "a") // slot 0
	d.SeenAndRecord(ctx, "b") // slot 1
	d.Unrecord(ctx, "a")
	d.SeenAndRecord(ctx, "a") // re-recorded, evicts slot 0 (its own stale entry)

	if !d.SeenAndRecord(ctx, "a") {
		t.Error("re-recorded id not reported as seen")
	}
	if !d.SeenAndRecord(ctx, "b") {
		t.Error("id b lost by stale-slot eviction")
	}
}

func TestUnbounded(t *testing.T) {
	ctx := context.Background()
	d := New(WithMaxSize(0))

	const n = 100_000
	for i := 0; i < n; i++ {
		if d.SeenAndRecord(ctx, fmt.Sprintf("cmp-%d", i)) {
			t.Fatalf("fresh id cmp-%d reported as seen", i)
		}
	}
	if got := d.Size(); got != n {
		t.Errorf("size = %d, want %d", got, n)
	}
	if d.SeenAndRecord(ctx, "cmp-0") != true {
		t.Error("cmp-0 evicted in unbounded mode")
	}
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	d := New(WithMaxSize(1_000))

	var wg sync.WaitGroup
	var mu sync.Mutex
	firstSeen := make(map[string]int)

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("cmp-%d", i)
				if !d.SeenAndRecord(ctx, id) {
					mu.Lock()
					firstSeen[id]++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	// Every id must have been newly recorded exactly once across all
	// goroutines.
	for id, n := range firstSeen {
		if n != 1 {
			t.Errorf("id %s newly recorded %d times, want 1", id, n)
		}
	}
	if len(firstSeen) != 200 {
		t.Errorf("recorded %d distinct ids, want 200", len(firstSeen))
	}
}
