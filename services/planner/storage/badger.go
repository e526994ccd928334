// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage provides the embedded Badger database used by the
// planner's artifact and pipeline-state stores.
//
// # Description
//
// Wayfinder runs local-first: every artifact and every pipeline-state
// snapshot lives in a single Badger keyspace under the data directory.
// This package owns opening, value-log garbage collection, and the
// transaction helpers. Key layout is the callers' concern.
//
// # Thread Safety
//
// DB is safe for concurrent use. GCRunner must be started at most once.
package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds options for opening the database.
type Config struct {
	// Path is the directory for the Badger files. Ignored when InMemory.
	Path string

	// InMemory runs Badger without disk persistence. For tests.
	InMemory bool

	// SyncWrites forces fsync on every write. Slower, safest.
	SyncWrites bool

	// Logger receives Badger's internal messages. Nil silences them.
	Logger *slog.Logger

	// GCInterval is how often the GC runner attempts value-log GC.
	GCInterval time.Duration

	// GCDiscardRatio is the reclaimable fraction that triggers a rewrite.
	GCDiscardRatio float64
}

// DefaultConfig returns the production configuration for the given path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for ephemeral test databases.
func InMemoryConfig() Config {
	return Config{
		InMemory:       true,
		GCInterval:     time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// Validate checks the configuration for obvious mistakes.
func (c Config) Validate() error {
	if !c.InMemory && c.Path == "" {
		return errors.New("storage: path required unless in-memory")
	}
	if c.GCDiscardRatio < 0 || c.GCDiscardRatio > 1 {
		return fmt.Errorf("storage: gc discard ratio %f out of range", c.GCDiscardRatio)
	}
	return nil
}

// =============================================================================
// Badger Logger Adapter
// =============================================================================

// badgerLogger adapts slog to badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

func (b *badgerLogger) Errorf(format string, args ...any) {
	b.logger.Error(fmt.Sprintf(format, args...))
}

func (b *badgerLogger) Warningf(format string, args ...any) {
	b.logger.Warn(fmt.Sprintf(format, args...))
}

func (b *badgerLogger) Infof(format string, args ...any) {
	b.logger.Debug(fmt.Sprintf(format, args...))
}

func (b *badgerLogger) Debugf(format string, args ...any) {
	b.logger.Debug(fmt.Sprintf(format, args...))
}

// =============================================================================
// DB Wrapper
// =============================================================================

// DB wraps a Badger instance with the planner's lifecycle conventions.
type DB struct {
	db       *badger.DB
	cfg      Config
	gcRunner *GCRunner
	closeMu  sync.Mutex
	closed   bool
}

// Open opens (or creates) the database described by cfg.
func Open(cfg Config) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("storage: create data dir: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(cfg.SyncWrites)
	}

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: open badger at %q: %w", cfg.Path, err)
	}

	wrapped := &DB{db: db, cfg: cfg}
	wrapped.gcRunner = newGCRunner(db, cfg)
	return wrapped, nil
}

// OpenInMemory opens an ephemeral database. For tests.
func OpenInMemory() (*DB, error) {
	return Open(InMemoryConfig())
}

// WithTxn runs fn inside a read-write transaction.
func (d *DB) WithTxn(fn func(txn *badger.Txn) error) error {
	return d.db.Update(fn)
}

// WithReadTxn runs fn inside a read-only transaction.
func (d *DB) WithReadTxn(fn func(txn *badger.Txn) error) error {
	return d.db.View(fn)
}

// Sync flushes pending writes to disk. No-op for in-memory databases.
func (d *DB) Sync() error {
	if d.cfg.InMemory {
		return nil
	}
	return d.db.Sync()
}

// InMemory reports whether this database is ephemeral.
func (d *DB) InMemory() bool { return d.cfg.InMemory }

// Path returns the data directory ("" when in-memory).
func (d *DB) Path() string { return d.cfg.Path }

// StartGC launches the value-log GC runner. Call at most once.
func (d *DB) StartGC() { d.gcRunner.Start() }

// Close stops GC and closes the database. Idempotent.
func (d *DB) Close() error {
	d.closeMu.Lock()
	defer d.closeMu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.gcRunner.Stop()
	return d.db.Close()
}

// =============================================================================
// GC Runner
// =============================================================================

// GCRunner periodically reclaims Badger value-log space.
type GCRunner struct {
	db      *badger.DB
	cfg     Config
	stop    chan struct{}
	done    chan struct{}
	started sync.Once
	stopped sync.Once
}

func newGCRunner(db *badger.DB, cfg Config) *GCRunner {
	return &GCRunner{
		db:   db,
		cfg:  cfg,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start begins the GC loop in its own goroutine.
func (g *GCRunner) Start() {
	g.started.Do(func() {
		go g.run()
	})
}

// Stop halts the loop and waits for it to exit.
func (g *GCRunner) Stop() {
	g.stopped.Do(func() {
		close(g.stop)
	})
	select {
	case <-g.done:
	case <-time.After(5 * time.Second):
	}
}

func (g *GCRunner) run() {
	defer close(g.done)

	if g.cfg.InMemory {
		// Value-log GC is meaningless without a value log on disk.
		return
	}

	ticker := time.NewTicker(g.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			g.runGC()
		}
	}
}

func (g *GCRunner) runGC() {
	// Badger recommends calling RunValueLogGC in a loop until it reports
	// nothing left to rewrite.
	for {
		err := g.db.RunValueLogGC(g.cfg.GCDiscardRatio)
		if err != nil {
			if !errors.Is(err, badger.ErrNoRewrite) && g.cfg.Logger != nil {
				g.cfg.Logger.Warn("value log gc failed", "error", err)
			}
			return
		}
	}
}

// =============================================================================
// Test Helpers
// =============================================================================

// TempDir creates a temporary directory for a disk-backed test database.
func TempDir() (string, error) {
	return os.MkdirTemp("", "wayfinder-badger-*")
}

// CleanupDir removes a directory created by TempDir.
func CleanupDir(path string) error {
	if path == "" {
		return nil
	}
	return os.RemoveAll(path)
}
