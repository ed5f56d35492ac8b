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

// Package worker records the lifecycle of background workers (Distiller,
// Consolidator, Research, Reflection runs) so a crashed process's
// in-flight work can be recovered as "failed" on the next open, per
// spec.md §4.1's stale-worker-cleanup rule.
package worker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sanctumlabs/nuum/internal/ids"
)

// Status is a worker record's lifecycle state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record is one worker-record row.
type Record struct {
	ID          string
	Type        string
	Status      Status
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// Repo is the worker-record repository.
type Repo struct {
	db *sql.DB
}

// NewRepo builds a Repo over db.
func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// Start records a new running worker of typ and returns its id.
func (r *Repo) Start(ctx context.Context, typ string) (string, error) {
	id := ids.New(ids.KindWorker)
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO worker_records (id, type, status, started_at) VALUES (?, ?, ?, ?)`,
		id, typ, string(StatusRunning), time.Now().UnixMilli(),
	); err != nil {
		return "", fmt.Errorf("start worker record: %w", err)
	}
	return id, nil
}

// Complete marks a worker record completed.
func (r *Repo) Complete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE worker_records SET status = ?, completed_at = ? WHERE id = ?`,
		string(StatusCompleted), time.Now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("complete worker record: %w", err)
	}
	return nil
}

// Fail marks a worker record failed with cause.
func (r *Repo) Fail(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE worker_records SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(StatusFailed), time.Now().UnixMilli(), msg, id,
	)
	if err != nil {
		return fmt.Errorf("fail worker record: %w", err)
	}
	return nil
}

// Run wraps fn with a worker record: started before fn runs, completed or
// failed according to fn's return, so callers never forget the bookkeeping.
func (r *Repo) Run(ctx context.Context, typ string, fn func(ctx context.Context) error) error {
	id, err := r.Start(ctx, typ)
	if err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		_ = r.Fail(ctx, id, err)
		return err
	}
	return r.Complete(ctx, id)
}

// Recent returns the most recently started records, newest first.
func (r *Repo) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, type, status, started_at, completed_at, error FROM worker_records ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent worker records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var startedAt int64
		var completedAt sql.NullInt64
		var errMsg sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Type, &rec.Status, &startedAt, &completedAt, &errMsg); err != nil {
			return nil, fmt.Errorf("scan worker record: %w", err)
		}
		rec.StartedAt = time.UnixMilli(startedAt)
		if completedAt.Valid {
			t := time.UnixMilli(completedAt.Int64)
			rec.CompletedAt = &t
		}
		rec.Error = errMsg.String
		out = append(out, rec)
	}
	return out, rows.Err()
}
