package repository

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/rating"
	"github.com/okian/arena/pkg/logger"
	"github.com/okian/arena/pkg/metrics"
)

// Key layout. Fixed-width numeric segments keep lexicographic order equal
// to numeric order, so prefix scans come back sorted.
//
//	competitor/<id>                    -> model.Competitor
//	period/<%020d id>                  -> model.Period
//	comparison/<%020d period>/<%012d>  -> model.Comparison
//	history/<id>\x00<%020d period>     -> model.HistoryRecord
//	count/<id>                         -> uint64 big-endian
//	meta/current_period                -> uint64 big-endian
//
// History keys embed the competitor id followed by a NUL separator;
// ingestion rejects ids containing NUL, so the prefix is unambiguous.
const (
	competitorPrefix = "competitor/"
	periodPrefix     = "period/"
	comparisonPrefix = "comparison/"
	historyPrefix    = "history/"
	countPrefix      = "count/"
	metaCurrentKey   = "meta/current_period"

	historySep = "\x00"
)

const (
	defaultDataDir        = "./data"
	defaultGCInterval     = 5 * time.Minute
	defaultGCDiscardRatio = 0.5
	maxCommitAttempts     = 3
	commitRetryBackoff    = 50 * time.Millisecond
)

func competitorKey(id string) []byte {
	return []byte(competitorPrefix + id)
}

func periodKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", periodPrefix, id))
}

func comparisonKey(periodID, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d/%012d", comparisonPrefix, periodID, seq))
}

func comparisonScanPrefix(periodID uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d/", comparisonPrefix, periodID))
}

func historyKey(id string, periodID uint64) []byte {
	return []byte(fmt.Sprintf("%s%s%s%020d", historyPrefix, id, historySep, periodID))
}

func historyScanPrefix(id string) []byte {
	return []byte(historyPrefix + id + historySep)
}

func countKey(id string) []byte {
	return []byte(countPrefix + id)
}

// BadgerStore implements Store on a Badger key-value database.
type BadgerStore struct {
	db  *badger.DB
	log logger.Logger

	dataDir        string
	inMemory       bool
	syncWrites     bool
	gcInterval     time.Duration
	gcDiscardRatio float64
	defaults       rating.Rating

	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewBadgerStore opens (or creates) the database and starts the value
// log garbage collector. The returned store is safe for concurrent use;
// writers are expected to serialize period mutations above it.
func NewBadgerStore(ctx context.Context, opts ...StoreOption) (*BadgerStore, error) {
	s := &BadgerStore{
		log:            logger.Get().Named("store"),
		dataDir:        defaultDataDir,
		syncWrites:     true,
		gcInterval:     defaultGCInterval,
		gcDiscardRatio: defaultGCDiscardRatio,
		defaults:       rating.DefaultRating(),
		stopChan:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	var badgerOpts badger.Options
	if s.inMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(s.dataDir, 0o750); err != nil {
			return nil, fmt.Errorf("creating data dir %s: %w", s.dataDir, err)
		}
		badgerOpts = badger.DefaultOptions(s.dataDir).WithSyncWrites(s.syncWrites)
	}
	badgerOpts = badgerOpts.WithLogger(badgerLogger{log: s.log.Named("badger")})

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %s: %w", s.dataDir, err)
	}
	s.db = db

	// Value log GC does not apply to the in-memory mode.
	if !s.inMemory {
		s.startGC(ctx)
	}

	s.log.Info(ctx, "store opened",
		logger.String("dir", s.dataDir),
		logger.Bool("in_memory", s.inMemory),
		logger.Bool("sync_writes", s.syncWrites))
	return s, nil
}

// startGC runs the value log garbage collector at the configured
// interval until the store closes.
func (s *BadgerStore) startGC(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.gcInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				// Keep collecting until a pass rewrites nothing.
				for {
					err := s.db.RunValueLogGC(s.gcDiscardRatio)
					if err != nil {
						if !errors.Is(err, badger.ErrNoRewrite) {
							s.log.Warn(ctx, "value log gc failed", logger.Error(err))
						}
						break
					}
				}
			}
		}
	}()
}

// Close stops background work and releases the database.
func (s *BadgerStore) Close() error {
	select {
	case <-s.stopChan:
		// Already closed.
	default:
		close(s.stopChan)
	}
	s.wg.Wait()
	return s.db.Close()
}

// RegisterCompetitor implements Store.RegisterCompetitor.
func (s *BadgerStore) RegisterCompetitor(ctx context.Context, c model.Competitor) error {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	err := s.update(func(txn *badger.Txn) error {
		if _, err := txn.Get(competitorKey(c.ID)); err == nil {
			return fmt.Errorf("competitor %s: %w", c.ID, ErrAlreadyExists)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return setJSON(txn, competitorKey(c.ID), c)
	})
	if err != nil {
		return err
	}

	s.log.Debug(ctx, "competitor registered",
		logger.String("competitor", c.ID),
		logger.Float64("mu", c.Mu))
	return nil
}

// Competitor implements Store.Competitor.
func (s *BadgerStore) Competitor(ctx context.Context, id string) (model.Competitor, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	var c model.Competitor
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, competitorKey(id), &c)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return model.Competitor{}, fmt.Errorf("competitor %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Competitor{}, err
	}
	return c, nil
}

// Competitors implements Store.Competitors.
func (s *BadgerStore) Competitors(ctx context.Context) ([]model.Competitor, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	var out []model.Competitor
	err := s.db.View(func(txn *badger.Txn) error {
		return scanJSON(txn, []byte(competitorPrefix), func(c model.Competitor) {
			out = append(out, c)
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AppendComparison implements Store.AppendComparison.
func (s *BadgerStore) AppendComparison(ctx context.Context, cmp model.Comparison) (AppendResult, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	var res AppendResult
	now := time.Now().UTC()

	err := s.update(func(txn *badger.Txn) error {
		var period model.Period
		if err := getJSON(txn, periodKey(cmp.PeriodID), &period); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("period %d: %w", cmp.PeriodID, ErrPeriodNotFound)
			}
			return err
		}
		if period.Status != model.PeriodOpen {
			return fmt.Errorf("period %d: %w", cmp.PeriodID, ErrPeriodNotOpen)
		}

		createdA, err := s.ensureCompetitor(txn, cmp.A, now)
		if err != nil {
			return err
		}
		createdB, err := s.ensureCompetitor(txn, cmp.B, now)
		if err != nil {
			return err
		}

		seq := uint64(period.Comparisons)
		if err := setJSON(txn, comparisonKey(period.ID, seq), cmp); err != nil {
			return err
		}
		period.Comparisons++
		if err := setJSON(txn, periodKey(period.ID), period); err != nil {
			return err
		}

		if err := incrementCount(txn, cmp.A); err != nil {
			return err
		}
		if err := incrementCount(txn, cmp.B); err != nil {
			return err
		}

		res = AppendResult{Period: period, CreatedA: createdA, CreatedB: createdB}
		return nil
	})
	if err != nil {
		return AppendResult{}, err
	}
	return res, nil
}

// ensureCompetitor creates id at the default rating if absent. Reports
// whether it created the record.
func (s *BadgerStore) ensureCompetitor(txn *badger.Txn, id string, now time.Time) (bool, error) {
	_, err := txn.Get(competitorKey(id))
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return false, err
	}
	c := model.Competitor{
		ID:        id,
		Mu:        s.defaults.Mu,
		Phi:       s.defaults.Phi,
		Sigma:     s.defaults.Sigma,
		CreatedAt: now,
	}
	return true, setJSON(txn, competitorKey(id), c)
}

// Comparisons implements Store.Comparisons.
func (s *BadgerStore) Comparisons(ctx context.Context, periodID uint64) ([]model.Comparison, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	var out []model.Comparison
	err := s.db.View(func(txn *badger.Txn) error {
		return scanJSON(txn, comparisonScanPrefix(periodID), func(c model.Comparison) {
			out = append(out, c)
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ComparisonCounts implements Store.ComparisonCounts.
func (s *BadgerStore) ComparisonCounts(ctx context.Context) (map[string]int, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	counts := make(map[string]int)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(countPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			id := string(item.Key()[len(countPrefix):])
			if err := item.Value(func(val []byte) error {
				counts[id] = int(binary.BigEndian.Uint64(val))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// EnsureOpenPeriod implements Store.EnsureOpenPeriod.
func (s *BadgerStore) EnsureOpenPeriod(ctx context.Context, at time.Time) (model.Period, error) {
	var period model.Period
	err := s.update(func(txn *badger.Txn) error {
		id, err := getUint64(txn, []byte(metaCurrentKey))
		if err == nil {
			return getJSON(txn, periodKey(id), &period)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		period = model.Period{ID: 1, OpenedAt: at.UTC(), Status: model.PeriodOpen}
		if err := setJSON(txn, periodKey(period.ID), period); err != nil {
			return err
		}
		return setUint64(txn, []byte(metaCurrentKey), period.ID)
	})
	if err != nil {
		return model.Period{}, err
	}
	return period, nil
}

// CurrentPeriod implements Store.CurrentPeriod.
func (s *BadgerStore) CurrentPeriod(ctx context.Context) (model.Period, error) {
	var period model.Period
	err := s.db.View(func(txn *badger.Txn) error {
		id, err := getUint64(txn, []byte(metaCurrentKey))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNoOpenPeriod
			}
			return err
		}
		return getJSON(txn, periodKey(id), &period)
	})
	if err != nil {
		return model.Period{}, err
	}
	return period, nil
}

// PeriodByID implements Store.PeriodByID.
func (s *BadgerStore) PeriodByID(ctx context.Context, id uint64) (model.Period, error) {
	var period model.Period
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, periodKey(id), &period)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return model.Period{}, fmt.Errorf("period %d: %w", id, ErrPeriodNotFound)
	}
	if err != nil {
		return model.Period{}, err
	}
	return period, nil
}

// ProcessingPeriods implements Store.ProcessingPeriods.
func (s *BadgerStore) ProcessingPeriods(ctx context.Context) ([]model.Period, error) {
	var out []model.Period
	err := s.db.View(func(txn *badger.Txn) error {
		return scanJSON(txn, []byte(periodPrefix), func(p model.Period) {
			if p.Status == model.PeriodProcessing {
				out = append(out, p)
			}
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FreezePeriod implements Store.FreezePeriod.
func (s *BadgerStore) FreezePeriod(ctx context.Context, at time.Time) (model.Period, model.Period, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	var frozen, next model.Period
	err := s.update(func(txn *badger.Txn) error {
		id, err := getUint64(txn, []byte(metaCurrentKey))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNoOpenPeriod
			}
			return err
		}
		if err := getJSON(txn, periodKey(id), &frozen); err != nil {
			return err
		}
		if frozen.Status != model.PeriodOpen {
			return fmt.Errorf("period %d: %w", frozen.ID, ErrPeriodNotOpen)
		}
		if frozen.Comparisons == 0 {
			return fmt.Errorf("period %d: %w", frozen.ID, ErrEmptyPeriod)
		}

		frozen.Status = model.PeriodProcessing
		frozen.ClosedAt = at.UTC()
		if err := setJSON(txn, periodKey(frozen.ID), frozen); err != nil {
			return err
		}

		next = model.Period{ID: frozen.ID + 1, OpenedAt: at.UTC(), Status: model.PeriodOpen}
		if err := setJSON(txn, periodKey(next.ID), next); err != nil {
			return err
		}
		return setUint64(txn, []byte(metaCurrentKey), next.ID)
	})
	if err != nil {
		return model.Period{}, model.Period{}, err
	}

	s.log.Info(ctx, "period frozen",
		logger.Uint64("period", frozen.ID),
		logger.Int("comparisons", frozen.Comparisons),
		logger.Uint64("next_period", next.ID))
	return frozen, next, nil
}

// CommitPeriod implements Store.CommitPeriod.
func (s *BadgerStore) CommitPeriod(ctx context.Context, periodID uint64, updates []CompetitorUpdate) (bool, error) {
	start := time.Now()
	defer func() {
		metrics.RecordCommitDuration(float64(time.Since(start).Milliseconds()))
	}()

	applied := false
	commit := func(txn *badger.Txn) error {
		applied = false

		var period model.Period
		if err := getJSON(txn, periodKey(periodID), &period); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("period %d: %w", periodID, ErrPeriodNotFound)
			}
			return err
		}
		if period.Status == model.PeriodClosed {
			return nil // already committed, replay is a no-op
		}
		if period.Status != model.PeriodProcessing {
			return fmt.Errorf("period %d: %w", periodID, ErrPeriodNotProcessing)
		}

		for _, u := range updates {
			if err := setJSON(txn, competitorKey(u.Competitor.ID), u.Competitor); err != nil {
				return err
			}
			if err := setJSON(txn, historyKey(u.History.CompetitorID, u.History.PeriodID), u.History); err != nil {
				return err
			}
		}

		period.Status = model.PeriodClosed
		if err := setJSON(txn, periodKey(period.ID), period); err != nil {
			return err
		}
		applied = true
		return nil
	}

	var err error
	for attempt := 1; attempt <= maxCommitAttempts; attempt++ {
		err = s.db.Update(commit)
		if err == nil {
			break
		}
		if !errors.Is(err, badger.ErrConflict) {
			return false, err
		}
		metrics.RecordCommitRetry()
		s.log.Warn(ctx, "period commit conflict, retrying",
			logger.Uint64("period", periodID),
			logger.Int("attempt", attempt))
		time.Sleep(commitRetryBackoff * time.Duration(attempt))
	}
	if err != nil {
		return false, fmt.Errorf("committing period %d: %w", periodID, err)
	}

	if applied {
		s.log.Info(ctx, "period committed",
			logger.Uint64("period", periodID),
			logger.Int("updates", len(updates)))
	}
	return applied, nil
}

// History implements Store.History.
func (s *BadgerStore) History(ctx context.Context, competitorID string) ([]model.HistoryRecord, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	var out []model.HistoryRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return scanJSON(txn, historyScanPrefix(competitorID), func(h model.HistoryRecord) {
			out = append(out, h)
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// update wraps db.Update so read-modify-write helpers stay terse.
func (s *BadgerStore) update(fn func(txn *badger.Txn) error) error {
	return s.db.Update(fn)
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return txn.Set(key, raw)
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

// scanJSON decodes every value under prefix in key order.
func scanJSON[T any](txn *badger.Txn, prefix []byte, visit func(T)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		if err := it.Item().Value(func(val []byte) error {
			var v T
			if err := json.Unmarshal(val, &v); err != nil {
				return fmt.Errorf("decoding %s: %w", it.Item().Key(), err)
			}
			visit(v)
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

func setUint64(txn *badger.Txn, key []byte, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return txn.Set(key, buf[:])
}

func getUint64(txn *badger.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	if err != nil {
		return 0, err
	}
	var v uint64
	err = item.Value(func(val []byte) error {
		v = binary.BigEndian.Uint64(val)
		return nil
	})
	return v, err
}

func incrementCount(txn *badger.Txn, id string) error {
	cur, err := getUint64(txn, countKey(id))
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	return setUint64(txn, countKey(id), cur+1)
}

// badgerLogger adapts the service logger to badger's logging interface.
// Badger's INFO output is chatty, so it lands at debug level.
type badgerLogger struct {
	log logger.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(context.Background(), fmt.Sprintf(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(context.Background(), fmt.Sprintf(format, args...))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug(context.Background(), fmt.Sprintf(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(context.Background(), fmt.Sprintf(format, args...))
}
