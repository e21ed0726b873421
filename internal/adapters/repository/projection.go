package repository

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/arena/pkg/metrics"
)

// Treap-based, in-memory Projection implementation.
//
// Ordering: rating (mu) DESC, then competitor id ASC (deterministic).
// The BST comparator treats "less" as "ranks earlier", so an in-order
// traversal produces the leaderboard from best to worst. The durable
// store stays the source of truth; the projection is rebuilt from it on
// startup and after every period commit.

// muScale controls fixed-point scaling of ratings so tie comparisons are
// exact. Ratings live within a few thousand points; the clamp keeps the
// scaled value inside int64 regardless.
const muScale = 1_000_000_000 // 9 decimal places

type muFP int64

func toFixedPoint(x float64) muFP {
	if x > 1e6 {
		x = 1e6
	}
	if x < -1e6 {
		x = -1e6
	}
	return muFP(math.Round(x * muScale))
}

func toFloat(x muFP) float64 {
	return float64(x) / muScale
}

// row stores the fixed-point rating plus the rest of a competitor's
// published state.
type row struct {
	mu         muFP
	phi        float64
	sigma      float64
	lastPeriod uint64
}

// Snapshot is an immutable view of the leaderboard.
type Snapshot struct {
	// Rank and rating in O(1) for reads.
	EntryByID map[string]Entry

	// Fast top-K cache, sorted best first.
	TopCache []Entry
}

// treap node
type node struct {
	id    string
	mu    muFP
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less reports whether (aMu, aID) ranks earlier than (bMu, bID).
func less(aMu muFP, aID string, bMu muFP, bID string) bool {
	if aMu != bMu {
		return aMu > bMu // higher rating ranks earlier
	}
	return aID < bID // tie-breaker by id asc
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, mu muFP) *node {
	if n == nil {
		return &node{id: id, mu: mu, prio: rand.Uint64(), size: 1}
	}
	if less(mu, id, n.mu, n.id) {
		n.left = insert(n.left, id, mu)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, mu)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, mu muFP) *node {
	if n == nil {
		return nil
	}
	if mu == n.mu && id == n.id {
		// Merge children by rotating the higher priority up until leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, mu)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, mu)
		}
	} else if less(mu, id, n.mu, n.id) {
		n.left = deleteNode(n.left, id, mu)
	} else {
		n.right = deleteNode(n.right, id, mu)
	}
	fix(n)
	return n
}

// collectTopN appends up to limit entries in rank order (best first).
func collectTopN(n *node, limit int, rows map[string]row, out *[]Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, rows, out)
	if len(*out) < limit {
		if r, ok := rows[n.id]; ok {
			*out = append(*out, entryFromRow(n.id, r))
		}
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, rows, out)
	}
}

// collectAll appends all entries in rank order (best first).
func collectAll(n *node, rows map[string]row, out *[]Entry) {
	if n == nil {
		return
	}
	collectAll(n.left, rows, out)
	if r, ok := rows[n.id]; ok {
		*out = append(*out, entryFromRow(n.id, r))
	}
	collectAll(n.right, rows, out)
}

func entryFromRow(id string, r row) Entry {
	return Entry{
		CompetitorID: id,
		Mu:           toFloat(r.mu),
		Phi:          r.phi,
		Sigma:        r.sigma,
		LastPeriod:   r.lastPeriod,
	}
}

// TreapProjection implements Projection over a treap plus published
// snapshots.
type TreapProjection struct {
	mu               sync.RWMutex
	root             *node
	byID             map[string]row
	snapshotInterval time.Duration
	topCacheSize     int

	snapshot atomic.Pointer[Snapshot]

	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewTreapProjection constructs a projection with configuration options
// and starts its periodic snapshot publisher.
func NewTreapProjection(ctx context.Context, opts ...ProjectionOption) *TreapProjection {
	p := &TreapProjection{
		snapshotInterval: time.Second,
		topCacheSize:     500,
		byID:             make(map[string]row),
		stopChan:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	// Publish an empty snapshot so reads never observe nil.
	p.publishSnapshot()
	p.startPeriodicSnapshots(ctx)

	return p
}

// startPeriodicSnapshots publishes snapshots at the configured interval
// so between-commit upserts become visible to readers.
func (p *TreapProjection) startPeriodicSnapshots(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.snapshotInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopChan:
				return
			case <-ticker.C:
				p.publishSnapshot()
			}
		}
	}()
}

// publishSnapshot rebuilds and publishes a new snapshot.
func (p *TreapProjection) publishSnapshot() {
	start := time.Now()
	p.mu.RLock()
	p.publishLocked()
	p.mu.RUnlock()

	ms := float64(time.Since(start).Milliseconds())
	metrics.RecordProjectionRebuildDuration(ms)
	metrics.UpdateProjectionLastRebuildMs(ms)
	metrics.UpdateProjectionLastUnix(float64(time.Now().Unix()))
	metrics.IncrementProjectionRebuilds()
}

// publishLocked rebuilds the snapshot. Callers hold p.mu in either mode.
func (p *TreapProjection) publishLocked() {
	all := make([]Entry, 0, len(p.byID))
	collectAll(p.root, p.byID, &all)
	assignRanksWithTies(all)

	entryByID := make(map[string]Entry, len(all))
	for _, e := range all {
		entryByID[e.CompetitorID] = e
	}

	topCache := all
	if len(topCache) > p.topCacheSize {
		topCache = topCache[:p.topCacheSize]
	}

	p.snapshot.Store(&Snapshot{EntryByID: entryByID, TopCache: topCache})
}

// Close stops the snapshot publisher.
func (p *TreapProjection) Close() error {
	select {
	case <-p.stopChan:
		// Already closed.
	default:
		close(p.stopChan)
	}
	p.wg.Wait()
	return nil
}

// Upsert implements Projection.Upsert with O(log n) expected time.
// Visibility waits for the next snapshot; Rank falls back to the live
// tree in the meantime.
func (p *TreapProjection) Upsert(ctx context.Context, e Entry) error {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	nr := row{mu: toFixedPoint(e.Mu), phi: e.Phi, sigma: e.Sigma, lastPeriod: e.LastPeriod}
	isNew := false

	p.mu.Lock()
	old, ok := p.byID[e.CompetitorID]
	switch {
	case ok && old.mu == nr.mu:
		// Rating unchanged, no tree surgery needed.
	case ok:
		p.root = deleteNode(p.root, e.CompetitorID, old.mu)
		p.root = insert(p.root, e.CompetitorID, nr.mu)
	default:
		isNew = true
		p.root = insert(p.root, e.CompetitorID, nr.mu)
	}
	p.byID[e.CompetitorID] = nr
	count := len(p.byID)
	p.mu.Unlock()

	if isNew {
		metrics.UpdateTotalCompetitors(count)
	}
	return nil
}

// ReplaceAll implements Projection.ReplaceAll. The snapshot publishes
// before returning so post-commit reads see the committed period.
func (p *TreapProjection) ReplaceAll(ctx context.Context, entries []Entry) error {
	start := time.Now()

	byID := make(map[string]row, len(entries))
	var root *node
	for _, e := range entries {
		r := row{mu: toFixedPoint(e.Mu), phi: e.Phi, sigma: e.Sigma, lastPeriod: e.LastPeriod}
		byID[e.CompetitorID] = r
		root = insert(root, e.CompetitorID, r.mu)
	}

	p.mu.Lock()
	p.root = root
	p.byID = byID
	p.publishLocked()
	p.mu.Unlock()

	ms := float64(time.Since(start).Milliseconds())
	metrics.RecordProjectionRebuildDuration(ms)
	metrics.UpdateProjectionLastRebuildMs(ms)
	metrics.UpdateProjectionLastUnix(float64(time.Now().Unix()))
	metrics.IncrementProjectionRebuilds()
	metrics.UpdateTotalCompetitors(len(entries))
	return nil
}

// Rank implements Projection.Rank. Snapshot lookups are O(1); a
// competitor upserted since the last snapshot is ranked from the live
// tree instead.
func (p *TreapProjection) Rank(ctx context.Context, competitorID string) (Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	if snap := p.snapshot.Load(); snap != nil {
		if e, ok := snap.EntryByID[competitorID]; ok {
			return e, nil
		}
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if _, ok := p.byID[competitorID]; !ok {
		metrics.RecordErrorByComponent("projection", "not_found")
		return Entry{}, ErrNotFound
	}

	all := make([]Entry, 0, len(p.byID))
	collectAll(p.root, p.byID, &all)
	assignRanksWithTies(all)
	for _, e := range all {
		if e.CompetitorID == competitorID {
			return e, nil
		}
	}
	return Entry{}, ErrNotFound
}

// TopN implements Projection.TopN. Requests within the snapshot cache
// are O(n); deeper requests collect from the live tree.
func (p *TreapProjection) TopN(ctx context.Context, n int) ([]Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	if n < 1 {
		metrics.RecordErrorByComponent("projection", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	if snap := p.snapshot.Load(); snap != nil && n <= len(snap.TopCache) {
		out := make([]Entry, n)
		copy(out, snap.TopCache[:n])
		return out, nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Entry, 0, n)
	collectTopN(p.root, n, p.byID, &out)
	assignRanksWithTies(out)
	return out, nil
}

// Count implements Projection.Count.
func (p *TreapProjection) Count(ctx context.Context) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byID)
}

// assignRanksWithTies assigns dense ranks: competitors with the same
// rating share a rank and the next distinct rating takes the following
// one.
func assignRanksWithTies(entries []Entry) {
	if len(entries) == 0 {
		return
	}

	currentRank := 1
	for i := 0; i < len(entries); i++ {
		entries[i].Rank = currentRank

		sameCount := 1
		for j := i + 1; j < len(entries) && entries[j].Mu == entries[i].Mu; j++ {
			entries[j].Rank = currentRank
			sameCount++
		}

		currentRank++
		i += sameCount - 1
	}
}
