// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history keeps evaluation reports in an embedded BadgerDB so that
// runs can be compared over time.
//
// Reports are stored as JSON under keys of the form
//
//	run/<started-unix-nano, zero padded>/<run-id>
//
// so that key order is chronological, with a secondary index
//
//	id/<run-id> -> run key
//
// for lookups by run ID.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/CodeGraphEval/services/eval"
)

const (
	runPrefix = "run/"
	idPrefix  = "id/"
)

var (
	// ErrNotFound is returned when no report has the requested run ID.
	ErrNotFound = errors.New("run not found")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("history store is closed")
)

// Config holds configuration for the history store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Useful for tests.
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// Logger receives BadgerDB's own log output. Nil silences it.
	Logger *slog.Logger

	// GCDiscardRatio is the value-log garbage ratio that triggers a rewrite
	// on Close. Zero disables collection.
	GCDiscardRatio float64
}

// DefaultConfig returns the configuration for a persistent store at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is the run history.
//
// Thread Safety:
//
//	Store is safe for concurrent use.
type Store struct {
	db     *badger.DB
	cfg    Config
	closed atomic.Bool
	logger *slog.Logger
}

var _ eval.Sink = (*Store)(nil)

// Open opens (creating if needed) the history store.
//
// # Inputs
//
//   - cfg: Store configuration. Path is required unless InMemory is set.
//
// # Outputs
//
//   - *Store: The store. Caller must call Close.
//   - error: Non-nil if the directory or database cannot be opened.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent history")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create history directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	return &Store{db: db, cfg: cfg, logger: slog.Default().With("component", "history")}, nil
}

// Close runs value-log collection (for persistent stores) and closes the
// database. Safe to call more than once.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if !s.cfg.InMemory && s.cfg.GCDiscardRatio > 0 {
		if err := s.db.RunValueLogGC(s.cfg.GCDiscardRatio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
			s.logger.Warn("history value log GC error", slog.String("error", err.Error()))
		}
	}
	return s.db.Close()
}

func runKey(startedAt time.Time, runID string) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", runPrefix, startedAt.UnixNano(), runID))
}

func idKey(runID string) []byte {
	return []byte(idPrefix + runID)
}

// Save stores a report, replacing any earlier report with the same run ID.
func (s *Store) Save(ctx context.Context, report *eval.Report) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if report.RunID == "" {
		return errors.New("report has no run ID")
	}

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", report.RunID, err)
	}
	key := runKey(report.StartedAt, report.RunID)

	err = s.db.Update(func(txn *badger.Txn) error {
		if old, err := txn.Get(idKey(report.RunID)); err == nil {
			oldKey, err := old.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := txn.Delete(oldKey); err != nil {
				return err
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(idKey(report.RunID), key)
	})
	if err != nil {
		return fmt.Errorf("save report %s: %w", report.RunID, err)
	}
	s.logger.Debug("Saved report", "run_id", report.RunID, "bytes", len(data))
	return nil
}

// Record implements eval.Sink.
func (s *Store) Record(ctx context.Context, report *eval.Report) error {
	return s.Save(ctx, report)
}

// Get returns the report with the given run ID.
func (s *Store) Get(ctx context.Context, runID string) (*eval.Report, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	var report *eval.Report
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(idKey(runID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err = txn.Get(key)
		if err != nil {
			return err
		}
		report, err = decode(item)
		return err
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// List returns up to limit reports, newest first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]*eval.Report, error) {
	var out []*eval.Report
	err := s.each(ctx, func(r *eval.Report) bool {
		out = append(out, r)
		return limit <= 0 || len(out) < limit
	})
	return out, err
}

// each visits reports newest first until fn returns false.
func (s *Store) each(ctx context.Context, fn func(*eval.Report) bool) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(runPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts at the greatest key <= seek.
		for it.Seek([]byte(runPrefix + "\xff")); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			report, err := decode(it.Item())
			if err != nil {
				s.logger.Warn("Skipping unreadable report", "key", string(it.Item().Key()), "error", err)
				continue
			}
			if !fn(report) {
				return nil
			}
		}
		return nil
	})
}

func decode(item *badger.Item) (*eval.Report, error) {
	var report eval.Report
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &report)
	})
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", item.Key(), err)
	}
	return &report, nil
}
