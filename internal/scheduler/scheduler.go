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

// Package scheduler is the background task scheduler: it runs distillation,
// consolidation, research, and reflection jobs against a shared store under
// a concurrency cap, delivers their results into the main agent's mid-turn
// injection queue, and sweeps timer-based alarms.
package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sanctumlabs/nuum/internal/bus"
	"github.com/sanctumlabs/nuum/internal/ids"
	"github.com/sanctumlabs/nuum/internal/nerr"
)

// MaxConcurrentTasks is the per-database cap on simultaneously running
// tasks, per spec.md §4.9.
const MaxConcurrentTasks = 3

// Status is a background task's lifecycle state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Task is one background-task row.
type Task struct {
	ID          string
	Type        string
	Description string
	Status      Status
	CreatedAt   time.Time
	FiresAt     *time.Time // set for alarms
	Result      string
	Error       string
}

// Scheduler runs background tasks and alarms for one database.
type Scheduler struct {
	db     *sql.DB
	sem    *semaphore.Weighted
	bus    *bus.Broker[[]Task]
	cron   *cron.Cron
	inject func(text string) // enqueues into the main agent's injection queue
	logger *zap.Logger

	metricsRunning prometheus.Gauge
	metricsTotal   *prometheus.CounterVec
}

// Config wires a Scheduler's dependencies.
type Config struct {
	DB       *sql.DB
	Bus      *bus.Broker[[]Task]
	Inject   func(text string)
	Logger   *zap.Logger
	Registry *prometheus.Registry // optional
}

// New builds a Scheduler and starts its alarm sweep (≥1s granularity, per
// spec.md §4.9).
func New(ctx context.Context, cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		db:     cfg.DB,
		sem:    semaphore.NewWeighted(MaxConcurrentTasks),
		bus:    cfg.Bus,
		inject: cfg.Inject,
		logger: logger,
		cron:   cron.New(cron.WithSeconds()),
	}
	if cfg.Registry != nil {
		s.metricsRunning = prometheus.NewGauge(prometheus.GaugeOpts{Name: "nuum_tasks_running"})
		s.metricsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "nuum_tasks_total"}, []string{"status"})
		cfg.Registry.MustRegister(s.metricsRunning, s.metricsTotal)
	}

	if _, err := s.cron.AddFunc("@every 1s", func() { s.sweepAlarms(ctx) }); err != nil {
		logger.Warn("alarm sweep schedule failed", zap.Error(err))
	}
	s.cron.Start()
	return s
}

// RecoverFromRestart marks every task left "running" as failed, per
// spec.md §4.9's restart-recovery rule. Call once at session open;
// internal/app calls it right after store.Open, which runs stale-worker
// cleanup.
func RecoverFromRestart(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx,
		`UPDATE background_tasks SET status = ?, error = 'process-restart' WHERE status = ?`,
		string(StatusFailed), string(StatusRunning),
	)
	if err != nil {
		return fmt.Errorf("recover tasks from restart: %w", err)
	}
	return nil
}

// Create records a new running task and runs fn in the background. If
// MaxConcurrentTasks tasks are already running it refuses at once with a
// Conflict error instead of waiting for a slot. fn's returned text becomes
// the task's result, fed to Complete; an error feeds Fail.
func (s *Scheduler) Create(ctx context.Context, typ, description string, fn func(ctx context.Context) (string, error)) (string, error) {
	if !s.sem.TryAcquire(1) {
		return "", nerr.New(nerr.KindConflict, "too many tasks running (cap %d)", MaxConcurrentTasks)
	}

	id := ids.New(ids.KindTask)
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO background_tasks (id, type, description, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, typ, description, string(StatusRunning), time.Now().UnixMilli(),
	); err != nil {
		s.sem.Release(1)
		return "", fmt.Errorf("create task: %w", err)
	}
	s.publishChanged(ctx)

	go func() {
		defer s.sem.Release(1)
		result, err := fn(ctx)
		if err != nil {
			if failErr := s.Fail(context.Background(), id, err); failErr != nil {
				s.logger.Warn("task fail write failed", zap.Error(failErr))
			}
			return
		}
		if completeErr := s.Complete(context.Background(), id, result); completeErr != nil {
			s.logger.Warn("task complete write failed", zap.Error(completeErr))
		}
	}()

	return id, nil
}

// Complete marks id completed with payload and delivers the payload into
// the mid-turn injection queue.
func (s *Scheduler) Complete(ctx context.Context, id, payload string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE background_tasks SET status = ?, result = ? WHERE id = ?`, string(StatusCompleted), payload, id,
	); err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	s.QueueResult(id, payload)
	s.publishChanged(ctx)
	return nil
}

// Fail marks id failed with cause.
func (s *Scheduler) Fail(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE background_tasks SET status = ?, error = ? WHERE id = ?`, string(StatusFailed), msg, id,
	); err != nil {
		return fmt.Errorf("fail task: %w", err)
	}
	s.publishChanged(ctx)
	return nil
}

// QueueResult delivers text into the main agent's mid-turn injection
// queue by calling the Config.Inject function directly; no Bus event
// carries the result.
func (s *Scheduler) QueueResult(id, text string) {
	if s.inject != nil {
		s.inject(fmt.Sprintf("[task %s] %s", id, text))
	}
}

// Cancel marks id cancelled. It does not interrupt an in-flight fn; fn must
// itself observe ctx cancellation.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE background_tasks SET status = ? WHERE id = ? AND status = ?`,
		string(StatusCancelled), id, string(StatusRunning))
	if err != nil {
		return fmt.Errorf("cancel task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nerr.New(nerr.KindNotFound, "task %s not running", id)
	}
	s.publishChanged(ctx)
	return nil
}

// List returns tasks matching status, or every task if status is "".
func (s *Scheduler) List(ctx context.Context, status Status) ([]Task, error) {
	query := `SELECT id, type, description, status, created_at, fires_at, result, error FROM background_tasks`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		var createdAt int64
		var result, errMsg sql.NullString
		var firesAtInt sql.NullInt64
		if err := rows.Scan(&t.ID, &t.Type, &t.Description, &t.Status, &createdAt, &firesAtInt, &result, &errMsg); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.CreatedAt = time.UnixMilli(createdAt)
		if firesAtInt.Valid {
			ft := time.UnixMilli(firesAtInt.Int64)
			t.FiresAt = &ft
		}
		t.Result = result.String
		t.Error = errMsg.String
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetAlarm schedules description to be injected at firesAt.
func (s *Scheduler) SetAlarm(ctx context.Context, firesAt time.Time, description string) (string, error) {
	id := ids.New(ids.KindTask)
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO background_tasks (id, type, description, status, created_at, fires_at) VALUES (?, 'alarm', ?, ?, ?, ?)`,
		id, description, string(StatusQueued), time.Now().UnixMilli(), firesAt.UnixMilli(),
	); err != nil {
		return "", fmt.Errorf("set alarm: %w", err)
	}
	s.publishChanged(ctx)
	return id, nil
}

// sweepAlarms checks for fired alarms; scheduled every second via cron, the
// minimum granularity spec.md §4.9 requires.
func (s *Scheduler) sweepAlarms(ctx context.Context) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, description FROM background_tasks WHERE type = 'alarm' AND status = ? AND fires_at <= ?`,
		string(StatusQueued), time.Now().UnixMilli(),
	)
	if err != nil {
		s.logger.Warn("alarm sweep query failed", zap.Error(err))
		return
	}
	type fired struct{ id, desc string }
	var list []fired
	for rows.Next() {
		var f fired
		if err := rows.Scan(&f.id, &f.desc); err != nil {
			rows.Close()
			s.logger.Warn("alarm sweep scan failed", zap.Error(err))
			return
		}
		list = append(list, f)
	}
	rows.Close()

	for _, f := range list {
		if _, err := s.db.ExecContext(ctx, `UPDATE background_tasks SET status = ? WHERE id = ?`, string(StatusCompleted), f.id); err != nil {
			s.logger.Warn("alarm mark complete failed", zap.Error(err))
			continue
		}
		s.QueueResult(f.id, f.desc)
	}
	if len(list) > 0 {
		s.publishChanged(ctx)
	}
}

func (s *Scheduler) publishChanged(ctx context.Context) {
	if s.bus == nil {
		return
	}
	tasks, err := s.List(ctx, "")
	if err != nil {
		s.logger.Warn("publish tasks-changed failed to list", zap.Error(err))
		return
	}
	s.bus.Publish(bus.NewUpdated(tasks))
	if s.metricsTotal != nil {
		running := 0
		for _, t := range tasks {
			if t.Status == StatusRunning {
				running++
			}
		}
		s.metricsRunning.Set(float64(running))
	}
}

// Close stops the alarm cron scheduler.
func (s *Scheduler) Close() {
	s.cron.Stop()
}
