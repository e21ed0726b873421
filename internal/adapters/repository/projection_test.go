package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"
)

// floatEqual compares two float64 values with a small tolerance for
// floating-point precision.
func floatEqual(a, b float64) bool {
	const tolerance = 1e-9
	return math.Abs(a-b) < tolerance
}

// newTestProjection pins the snapshot interval far out so reads stay on
// the deterministic live-tree path; periodic publishing has its own test.
func newTestProjection(t *testing.T) *TreapProjection {
	t.Helper()
	p := NewTreapProjection(context.Background(), WithSnapshotInterval(time.Hour))
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestTreapProjection_BasicOperations(t *testing.T) {
	ctx := context.Background()
	p := newTestProjection(t)

	if count := p.Count(ctx); count != 0 {
		t.Errorf("expected count 0, got %d", count)
	}

	if err := p.Upsert(ctx, Entry{CompetitorID: "alpha", Mu: 1500, Phi: 350, Sigma: 0.06}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if count := p.Count(ctx); count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}

	entry, err := p.Rank(ctx, "alpha")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Rank != 1 {
		t.Errorf("expected rank 1, got %d", entry.Rank)
	}
	if !floatEqual(entry.Mu, 1500) {
		t.Errorf("expected mu 1500, got %f", entry.Mu)
	}
	if !floatEqual(entry.Phi, 350) {
		t.Errorf("expected phi 350, got %f", entry.Phi)
	}

	entries, err := p.TopN(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].CompetitorID != "alpha" {
		t.Errorf("expected alpha, got %s", entries[0].CompetitorID)
	}
}

func TestTreapProjection_RatingMovesBothWays(t *testing.T) {
	ctx := context.Background()
	p := newTestProjection(t)

	if err := p.Upsert(ctx, Entry{CompetitorID: "of-two-minds", Mu: 1500, Phi: 200, Sigma: 0.06}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Ratings drop after losses; an upsert replaces, it never keeps a maximum.
	if err := p.Upsert(ctx, Entry{CompetitorID: "of-two-minds", Mu: 1400, Phi: 180, Sigma: 0.06}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry, err := p.Rank(ctx, "of-two-minds")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !floatEqual(entry.Mu, 1400) {
		t.Errorf("expected mu 1400 after downgrade, got %f", entry.Mu)
	}
	if !floatEqual(entry.Phi, 180) {
		t.Errorf("expected phi 180 after downgrade, got %f", entry.Phi)
	}

	if err := p.Upsert(ctx, Entry{CompetitorID: "of-two-minds", Mu: 1600, Phi: 150, Sigma: 0.06}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry, err = p.Rank(ctx, "of-two-minds")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !floatEqual(entry.Mu, 1600) {
		t.Errorf("expected mu 1600 after upgrade, got %f", entry.Mu)
	}

	if count := p.Count(ctx); count != 1 {
		t.Errorf("expected count 1 after repeated upserts, got %d", count)
	}
}

func TestTreapProjection_Ordering(t *testing.T) {
	ctx := context.Background()
	p := newTestProjection(t)

	competitors := []struct {
		id string
		mu float64
	}{
		{"c1", 1485},
		{"c2", 1695},
		{"c3", 1375},
		{"c4", 1800},
		{"c5", 1480},
	}
	for _, c := range competitors {
		if err := p.Upsert(ctx, Entry{CompetitorID: c.id, Mu: c.mu, Phi: 100, Sigma: 0.06}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	entries, err := p.TopN(ctx, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantOrder := []string{"c4", "c2", "c1", "c5", "c3"}
	if len(entries) != len(wantOrder) {
		t.Fatalf("expected %d entries, got %d", len(wantOrder), len(entries))
	}
	for i, want := range wantOrder {
		if entries[i].CompetitorID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, entries[i].CompetitorID)
		}
		if entries[i].Rank != i+1 {
			t.Errorf("position %d: expected rank %d, got %d", i, i+1, entries[i].Rank)
		}
	}
}

func TestTreapProjection_TieBreaking(t *testing.T) {
	ctx := context.Background()
	p := newTestProjection(t)

	for _, id := range []string{"zeta", "alpha", "mid"} {
		if err := p.Upsert(ctx, Entry{CompetitorID: id, Mu: 1500, Phi: 350, Sigma: 0.06}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := p.Upsert(ctx, Entry{CompetitorID: "leader", Mu: 1700, Phi: 100, Sigma: 0.06}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := p.TopN(ctx, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Tied ratings share a rank and order by id ascending.
	wantIDs := []string{"leader", "alpha", "mid", "zeta"}
	wantRanks := []int{1, 2, 2, 2}
	for i := range wantIDs {
		if entries[i].CompetitorID != wantIDs[i] {
			t.Errorf("position %d: expected %s, got %s", i, wantIDs[i], entries[i].CompetitorID)
		}
		if entries[i].Rank != wantRanks[i] {
			t.Errorf("position %d: expected rank %d, got %d", i, wantRanks[i], entries[i].Rank)
		}
	}
}

func TestTreapProjection_ReplaceAll(t *testing.T) {
	ctx := context.Background()
	p := newTestProjection(t)

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("old%d", i)
		if err := p.Upsert(ctx, Entry{CompetitorID: id, Mu: 1500, Phi: 350, Sigma: 0.06}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	replacement := []Entry{
		{CompetitorID: "new1", Mu: 1650, Phi: 120, Sigma: 0.06, LastPeriod: 3},
		{CompetitorID: "new2", Mu: 1450, Phi: 140, Sigma: 0.06, LastPeriod: 3},
	}
	if err := p.ReplaceAll(ctx, replacement); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if count := p.Count(ctx); count != 2 {
		t.Errorf("expected count 2 after replace, got %d", count)
	}

	// ReplaceAll publishes synchronously: the new view must be readable
	// immediately, without waiting for the periodic snapshot.
	entry, err := p.Rank(ctx, "new1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Rank != 1 || entry.LastPeriod != 3 {
		t.Errorf("expected rank 1 last_period 3, got rank %d last_period %d", entry.Rank, entry.LastPeriod)
	}

	if _, err := p.Rank(ctx, "old0"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for replaced competitor, got %v", err)
	}
}

func TestTreapProjection_TopNLimits(t *testing.T) {
	ctx := context.Background()
	p := newTestProjection(t)

	if _, err := p.TopN(ctx, 0); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit for n=0, got %v", err)
	}
	if _, err := p.TopN(ctx, -3); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit for negative n, got %v", err)
	}

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("c%d", i)
		if err := p.Upsert(ctx, Entry{CompetitorID: id, Mu: 1500 + float64(i), Phi: 100, Sigma: 0.06}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	entries, err := p.TopN(ctx, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("expected all 3 entries for oversized n, got %d", len(entries))
	}
}

func TestTreapProjection_RankUnknown(t *testing.T) {
	ctx := context.Background()
	p := newTestProjection(t)

	if _, err := p.Rank(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTreapProjection_FreshUpsertVisibleBeforeSnapshot(t *testing.T) {
	ctx := context.Background()
	// Long interval so the periodic publisher cannot run during the test.
	p := NewTreapProjection(ctx, WithSnapshotInterval(time.Hour))
	t.Cleanup(func() { _ = p.Close() })

	if err := p.Upsert(ctx, Entry{CompetitorID: "fresh", Mu: 1500, Phi: 350, Sigma: 0.06}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The snapshot predates the upsert; Rank must fall back to the live tree.
	entry, err := p.Rank(ctx, "fresh")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Rank != 1 {
		t.Errorf("expected rank 1 from live fallback, got %d", entry.Rank)
	}
}

func TestTreapProjection_PeriodicSnapshots(t *testing.T) {
	ctx := context.Background()
	p := NewTreapProjection(ctx, WithSnapshotInterval(10*time.Millisecond), WithTopCacheSize(10))
	t.Cleanup(func() { _ = p.Close() })

	if err := p.Upsert(ctx, Entry{CompetitorID: "steady", Mu: 1500, Phi: 350, Sigma: 0.06}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		snap := p.snapshot.Load()
		if snap != nil {
			if _, ok := snap.EntryByID["steady"]; ok {
				return
			}
		}
		select {
		case <-deadline:
			t.Fatal("periodic snapshot never published the upsert")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestTreapProjection_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	p := newTestProjection(t)

	const writers = 8
	const perWriter = 100

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				id := fmt.Sprintf("w%d-c%d", w, i)
				_ = p.Upsert(ctx, Entry{CompetitorID: id, Mu: 1000 + float64(i), Phi: 100, Sigma: 0.06})
			}
		}(w)
	}

	var readers sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 4; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_, _ = p.TopN(ctx, 25)
					_ = p.Count(ctx)
				}
			}
		}()
	}

	wg.Wait()
	close(stop)
	readers.Wait()

	if count := p.Count(ctx); count != writers*perWriter {
		t.Errorf("expected %d competitors, got %d", writers*perWriter, count)
	}

	entries, err := p.TopN(ctx, writers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Mu < entries[i].Mu {
			t.Errorf("ordering violated at %d: %f < %f", i, entries[i-1].Mu, entries[i].Mu)
		}
	}
}

func TestTreapProjection_CloseBehavior(t *testing.T) {
	ctx := context.Background()
	p := NewTreapProjection(ctx)

	if err := p.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Closing again must not panic.
	if err := p.Close(); err != nil {
		t.Fatalf("unexpected error on second close: %v", err)
	}

	// Reads still work after close; only the publisher stops.
	if err := p.Upsert(ctx, Entry{CompetitorID: "late", Mu: 1500, Phi: 350, Sigma: 0.06}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.Rank(ctx, "late"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func BenchmarkTreapProjection_Upsert(b *testing.B) {
	ctx := context.Background()
	p := NewTreapProjection(ctx, WithSnapshotInterval(time.Hour))
	defer p.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := fmt.Sprintf("c%d", i%10000)
		_ = p.Upsert(ctx, Entry{CompetitorID: id, Mu: float64(1000 + i%1000), Phi: 100, Sigma: 0.06})
	}
}

func BenchmarkTreapProjection_Rank(b *testing.B) {
	ctx := context.Background()
	p := NewTreapProjection(ctx, WithSnapshotInterval(time.Hour))
	defer p.Close()

	for i := 0; i < 10000; i++ {
		_ = p.Upsert(ctx, Entry{CompetitorID: fmt.Sprintf("c%d", i), Mu: float64(1000 + i%1000), Phi: 100, Sigma: 0.06})
	}
	p.publishSnapshot()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = p.Rank(ctx, fmt.Sprintf("c%d", i%10000))
	}
}

func BenchmarkTreapProjection_TopN(b *testing.B) {
	ctx := context.Background()
	p := NewTreapProjection(ctx, WithSnapshotInterval(time.Hour), WithTopCacheSize(100))
	defer p.Close()

	for i := 0; i < 10000; i++ {
		_ = p.Upsert(ctx, Entry{CompetitorID: fmt.Sprintf("c%d", i), Mu: float64(1000 + i%1000), Phi: 100, Sigma: 0.06})
	}
	p.publishSnapshot()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = p.TopN(ctx, 50)
	}
}
