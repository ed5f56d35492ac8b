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

// Package present holds the agent's mutable working context: mission,
// status, and an ordered task list. Every write publishes a present-changed
// event on the bus so a host UI or the context assembler can react.
package present

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sanctumlabs/nuum/internal/bus"
	"github.com/sanctumlabs/nuum/internal/ids"
	"github.com/sanctumlabs/nuum/internal/nerr"
)

// TaskStatus is a present-state task's completion flag.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
)

// Task is one entry in the present-state task list.
type Task struct {
	ID     string
	Text   string
	Status TaskStatus
}

// State is the full present-state snapshot.
type State struct {
	Mission string
	Status  string
	Tasks   []Task
}

// Repo is the present-state repository: a single mutable row plus its
// ordered task list.
type Repo struct {
	db  *sql.DB
	bus *bus.Broker[State]
}

// NewRepo builds a Repo over db, publishing change events on broker.
func NewRepo(db *sql.DB, broker *bus.Broker[State]) *Repo {
	return &Repo{db: db, bus: broker}
}

// Get returns the current present-state snapshot.
func (r *Repo) Get(ctx context.Context) (*State, error) {
	var s State
	if err := r.db.QueryRowContext(ctx, `SELECT mission, status FROM present_state WHERE id = 1`).
		Scan(&s.Mission, &s.Status); err != nil {
		return nil, fmt.Errorf("read present state: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id, text, status FROM present_tasks ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("read present tasks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.Text, &t.Status); err != nil {
			return nil, fmt.Errorf("scan present task: %w", err)
		}
		s.Tasks = append(s.Tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetMission updates the mission string and publishes present-changed.
func (r *Repo) SetMission(ctx context.Context, mission string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE present_state SET mission = ? WHERE id = 1`, mission); err != nil {
		return fmt.Errorf("set mission: %w", err)
	}
	return r.publishChange(ctx)
}

// SetStatus updates the status string and publishes present-changed.
func (r *Repo) SetStatus(ctx context.Context, status string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE present_state SET status = ? WHERE id = 1`, status); err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return r.publishChange(ctx)
}

// AddTask appends a pending task at the end of the ordered list.
func (r *Repo) AddTask(ctx context.Context, text string) (*Task, error) {
	var maxPos sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(position) FROM present_tasks`).Scan(&maxPos); err != nil {
		return nil, fmt.Errorf("read max task position: %w", err)
	}
	position := 0
	if maxPos.Valid {
		position = int(maxPos.Int64) + 1
	}

	t := &Task{ID: ids.New(ids.KindEntry), Text: text, Status: TaskPending}
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO present_tasks (id, text, status, position) VALUES (?, ?, ?, ?)`,
		t.ID, t.Text, string(t.Status), position,
	); err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return t, r.publishChange(ctx)
}

// CompleteTask marks a task completed.
func (r *Repo) CompleteTask(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE present_tasks SET status = ? WHERE id = ?`, string(TaskCompleted), id)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nerr.New(nerr.KindNotFound, "task %s not found", id)
	}
	return r.publishChange(ctx)
}

// RemoveTask deletes a task from the list.
func (r *Repo) RemoveTask(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM present_tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nerr.New(nerr.KindNotFound, "task %s not found", id)
	}
	return r.publishChange(ctx)
}

// PendingTasks returns every task still pending, in list order.
func (r *Repo) PendingTasks(ctx context.Context) ([]Task, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, text, status FROM present_tasks WHERE status = ? ORDER BY position ASC`, string(TaskPending))
	if err != nil {
		return nil, fmt.Errorf("pending tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.Text, &t.Status); err != nil {
			return nil, fmt.Errorf("scan pending task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repo) publishChange(ctx context.Context) error {
	if r.bus == nil {
		return nil
	}
	state, err := r.Get(ctx)
	if err != nil {
		return err
	}
	r.bus.Publish(bus.NewUpdated(*state))
	return nil
}
