package storage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/yndnr/dinegate/internal/telemetry/logger"
)

// BadgerConfig contains Badger tuning parameters.
type BadgerConfig struct {
	// GCInterval is the interval between value log GC runs.
	// Default: 10m
	GCInterval time.Duration

	// GCThreshold is the discard ratio passed to RunValueLogGC.
	// Default: 0.5
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	// Default: 8MB
	CacheSize int64

	// ValueLogFileSize is the max value log file size in bytes.
	// Default: 16MB
	ValueLogFileSize int64

	// SyncWrites fsyncs after each write.
	// Default: true
	SyncWrites bool
}

// DefaultBadgerConfig returns defaults sized for a handful of keys.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		GCInterval:       10 * time.Minute,
		GCThreshold:      0.5,
		CacheSize:        8 << 20,
		ValueLogFileSize: 16 << 20,
		SyncWrites:       true,
	}
}

// Badger implements LocalStore on an embedded Badger database.
type Badger struct {
	db     *badger.DB
	cfg    BadgerConfig
	logger logger.Logger

	closed     atomic.Bool
	lastGCTime atomic.Int64 // Unix milliseconds

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewBadger opens (or creates) a Badger store in dir.
func NewBadger(dir string, cfg BadgerConfig, log logger.Logger) (*Badger, error) {
	if dir == "" {
		return nil, fmt.Errorf("badger: dir is required")
	}
	log = logger.OrDefault(log).With("component", "storage.badger")

	def := DefaultBadgerConfig()
	if cfg.GCThreshold <= 0 || cfg.GCThreshold >= 1 {
		cfg.GCThreshold = def.GCThreshold
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
	if cfg.ValueLogFileSize <= 0 {
		cfg.ValueLogFileSize = def.ValueLogFileSize
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = &badgerLogger{logger: log}
	opts.BlockCacheSize = cfg.CacheSize
	opts.ValueLogFileSize = cfg.ValueLogFileSize
	opts.SyncWrites = cfg.SyncWrites

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	b := &Badger{
		db:     db,
		cfg:    cfg,
		logger: log,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	go b.gcLoop()

	log.Debug("badger store opened", "dir", dir, "gc_interval", cfg.GCInterval)
	return b, nil
}

// GetItem returns the stored value.
func (b *Badger) GetItem(_ context.Context, key string) (string, error) {
	if b.closed.Load() {
		return "", ErrClosed
	}

	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrKeyNotFound
			}
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return "", err
	}
	return string(value), nil
}

// SetItem stores a value.
func (b *Badger) SetItem(ctx context.Context, key, value string) error {
	return b.SetItems(ctx, map[string]string{key: value})
}

// SetItems stores all values in a single transaction.
func (b *Badger) SetItems(_ context.Context, items map[string]string) error {
	if b.closed.Load() {
		return ErrClosed
	}
	return b.db.Update(func(txn *badger.Txn) error {
		for k, v := range items {
			if err := txn.Set([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveItem removes a key.
func (b *Badger) RemoveItem(ctx context.Context, key string) error {
	return b.RemoveItems(ctx, key)
}

// RemoveItems removes all keys in a single transaction.
func (b *Badger) RemoveItems(_ context.Context, keys ...string) error {
	if b.closed.Load() {
		return ErrClosed
	}
	return b.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

// GC runs value log garbage collection until nothing more can be rewritten.
// Returns the number of rewrite cycles performed.
func (b *Badger) GC() (int, error) {
	if b.closed.Load() {
		return 0, ErrClosed
	}

	cycles := 0
	for {
		err := b.db.RunValueLogGC(b.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) {
				break
			}
			return cycles, fmt.Errorf("gc: %w", err)
		}
		cycles++
	}

	b.lastGCTime.Store(time.Now().UnixMilli())
	return cycles, nil
}

// Size returns the LSM and value log sizes in bytes.
func (b *Badger) Size() (lsm, vlog int64) {
	return b.db.Size()
}

// Close stops the GC loop and closes the database.
func (b *Badger) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	close(b.stopCh)
	<-b.doneCh

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	b.logger.Debug("badger store closed")
	return nil
}

func (b *Badger) gcLoop() {
	defer close(b.doneCh)

	interval := b.cfg.GCInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := b.GC(); err != nil {
				b.logger.Warn("auto gc failed", "error", err)
			}
		case <-b.stopCh:
			return
		}
	}
}

// badgerLogger adapts logger.Logger to Badger's Logger interface.
// Badger's info output is routine, so it is demoted to debug.
type badgerLogger struct {
	logger logger.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
