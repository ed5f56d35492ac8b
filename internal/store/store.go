// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store owns the single embedded SQLite file backing one engine
// database: its connection, schema migrations, cross-process file lock,
// and per-process single-writer mutex. Domain repositories (temporal,
// present, ltm, tasks, workers) are built on top of the *sql.DB this
// package exposes.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/sanctumlabs/nuum/internal/sqlitedriver" // registers "sqlite3"

	"github.com/sanctumlabs/nuum/internal/observability"
	"go.uber.org/zap"
)

var (
	cacheMu sync.Mutex
	cache   = map[string]*Store{}
)

// Store wraps one open database file plus its cross-process lock and
// per-process mutex. Obtain one with Open; multiple Opens of the same path
// within a process share the underlying *sql.DB via an internal cache.
type Store struct {
	Path string

	db     *sql.DB
	lock   *FileLock
	logger *zap.Logger
	tracer observability.Tracer

	refs int
}

var registry = newMutexRegistry()

// Open opens (or reuses) the store at path, applying migrations and
// cleaning up worker records left "running" by a crashed prior process.
func Open(ctx context.Context, path string, lockTimeoutMS int, logger *zap.Logger, tracer observability.Tracer) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}

	cacheMu.Lock()
	if s, ok := cache[path]; ok {
		s.refs++
		cacheMu.Unlock()
		return s, nil
	}
	cacheMu.Unlock()

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single-writer discipline; SQLite serializes writers anyway

	s := &Store{
		Path:   path,
		db:     db,
		lock:   NewFileLock(path, lockTimeoutMS, logger),
		logger: logger,
		tracer: tracer,
		refs:   1,
	}

	release, err := s.lock.Acquire(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	defer release()

	migrator, err := NewMigrator(db, tracer)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := migrator.MigrateUp(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if err := cleanStaleWorkers(ctx, db); err != nil {
		logger.Warn("stale worker cleanup failed", zap.Error(err))
	}

	cacheMu.Lock()
	cache[path] = s
	cacheMu.Unlock()

	return s, nil
}

// DB returns the underlying connection. Short-lived reads may use it
// directly without WithLock; multi-statement writes should go through
// WithLock.
func (s *Store) DB() *sql.DB { return s.db }

// Logger returns the logger this store was opened with.
func (s *Store) Logger() *zap.Logger { return s.logger }

// Tracer returns the tracer this store was opened with.
func (s *Store) Tracer() observability.Tracer { return s.tracer }

// WithLock runs fn holding both the cross-process file lock and the
// per-process per-db mutex, matching the lock order file lock → per-db
// mutex → transaction. The Turn Loop must never call WithLock across a
// provider call.
func (s *Store) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	start := time.Now()
	release, err := s.lock.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	s.logger.Debug("store lock wait", zap.Duration("wait", time.Since(start)))

	releaseMutex := registry.Acquire(s.Path)
	defer releaseMutex()

	return fn(ctx)
}

// Close decrements the store's reference count, closing the underlying
// connection once the last reference is released.
func (s *Store) Close() error {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	s.refs--
	if s.refs > 0 {
		return nil
	}
	delete(cache, s.Path)
	return s.db.Close()
}

// cleanStaleWorkers marks any worker_records row left "running" as
// "failed" with reason "stale", per §4.1's startup recovery rule.
func cleanStaleWorkers(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx,
		`UPDATE worker_records SET status = 'failed', error = 'stale', completed_at = ?
		 WHERE status = 'running'`,
		time.Now().UnixMilli(),
	)
	return err
}
