package repository

import (
	"time"

	"github.com/okian/arena/internal/domain/rating"
	"github.com/okian/arena/pkg/logger"
)

// StoreOption applies a configuration option to the BadgerStore.
type StoreOption func(*BadgerStore)

// WithDataDir sets the on-disk location of the database.
func WithDataDir(dir string) StoreOption {
	return func(s *BadgerStore) {
		if dir != "" {
			s.dataDir = dir
		}
	}
}

// WithInMemory keeps the whole database in memory. Nothing survives a
// restart; intended for tests and local runs.
func WithInMemory(inMemory bool) StoreOption {
	return func(s *BadgerStore) {
		s.inMemory = inMemory
	}
}

// WithSyncWrites controls whether writes fsync before commit returns.
func WithSyncWrites(sync bool) StoreOption {
	return func(s *BadgerStore) {
		s.syncWrites = sync
	}
}

// WithGCInterval sets how often the value log garbage collector runs.
func WithGCInterval(interval time.Duration) StoreOption {
	return func(s *BadgerStore) {
		if interval > 0 {
			s.gcInterval = interval
		}
	}
}

// WithDefaultRating sets the rating assigned to auto-created competitors.
func WithDefaultRating(r rating.Rating) StoreOption {
	return func(s *BadgerStore) {
		if r.Phi > 0 && r.Sigma > 0 {
			s.defaults = r
		}
	}
}

// WithStoreLogger sets the store's logger.
func WithStoreLogger(log logger.Logger) StoreOption {
	return func(s *BadgerStore) {
		if log != nil {
			s.log = log
		}
	}
}

// ProjectionOption applies a configuration option to the TreapProjection.
type ProjectionOption func(*TreapProjection)

// WithSnapshotInterval sets how often the projection publishes a fresh
// read snapshot between commits.
func WithSnapshotInterval(interval time.Duration) ProjectionOption {
	return func(p *TreapProjection) {
		if interval > 0 {
			p.snapshotInterval = interval
		}
	}
}

// WithTopCacheSize sets how many leading entries each snapshot caches
// for fast top-N reads.
func WithTopCacheSize(size int) ProjectionOption {
	return func(p *TreapProjection) {
		if size > 0 {
			p.topCacheSize = size
		}
	}
}
