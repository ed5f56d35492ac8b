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

// Package temporal is the append-only chronological record of user,
// assistant, and tool messages, full-text indexed, and recursively
// distilled into higher-level summaries anchored to ID ranges.
package temporal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/sanctumlabs/nuum/internal/ids"
	"github.com/sanctumlabs/nuum/internal/nerr"
)

// MessageType classifies a temporal record.
type MessageType string

const (
	TypeUser       MessageType = "user"
	TypeAssistant  MessageType = "assistant"
	TypeToolCall   MessageType = "tool_call"
	TypeToolResult MessageType = "tool_result"
	TypeSystem     MessageType = "system"
)

// Message is one immutable temporal log record.
type Message struct {
	ID        string
	Type      MessageType
	Content   string
	CreatedAt time.Time
}

// Distillation is a compact rewrite of a contiguous temporal range.
type Distillation struct {
	ID           string
	Level        int
	RangeStartID string
	RangeEndID   string
	Body         string
	CreatedAt    time.Time
}

// SearchHit is one full-text match against messages or distillation bodies.
type SearchHit struct {
	ID      string
	Kind    string // "message" or "distillation"
	Snippet string
}

// Repo is the temporal log repository.
type Repo struct {
	db      *sql.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewRepo builds a Repo over db. Distillation bodies are zstd-compressed at
// rest (see SPEC_FULL.md's supplemented compression-profile feature); the
// encoder/decoder are built once and reused for every call.
func NewRepo(db *sql.DB) (*Repo, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("build zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("build zstd decoder: %w", err)
	}
	return &Repo{db: db, encoder: enc, decoder: dec}, nil
}

// Append inserts a new message, minting its ID. Append is O(1); the FTS
// index is maintained by the temporal_messages_fts_insert trigger.
func (r *Repo) Append(ctx context.Context, typ MessageType, content string) (*Message, error) {
	msg := &Message{
		ID:        ids.New(ids.KindMessage),
		Type:      typ,
		Content:   content,
		CreatedAt: time.Now(),
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO temporal_messages (id, type, content, created_at) VALUES (?, ?, ?, ?)`,
		msg.ID, string(msg.Type), msg.Content, msg.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

// Range returns up to limit messages strictly after afterID (exclusive),
// in temporal order. afterID == "" returns from the beginning.
func (r *Repo) Range(ctx context.Context, afterID string, limit int) ([]Message, error) {
	var rows *sql.Rows
	var err error
	if afterID == "" {
		rows, err = r.db.QueryContext(ctx,
			`SELECT id, type, content, created_at FROM temporal_messages ORDER BY id ASC LIMIT ?`, limit)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT id, type, content, created_at FROM temporal_messages WHERE id > ? ORDER BY id ASC LIMIT ?`,
			afterID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("range query: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Tail returns every message strictly after afterID, in temporal order,
// with no limit — used to reconstruct the uncompressed tail of a view.
func (r *Repo) Tail(ctx context.Context, afterID string) ([]Message, error) {
	var rows *sql.Rows
	var err error
	if afterID == "" {
		rows, err = r.db.QueryContext(ctx, `SELECT id, type, content, created_at FROM temporal_messages ORDER BY id ASC`)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT id, type, content, created_at FROM temporal_messages WHERE id > ? ORDER BY id ASC`, afterID)
	}
	if err != nil {
		return nil, fmt.Errorf("tail query: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// GetWithContext returns the message with id plus up to before/after
// neighboring messages in temporal order.
func (r *Repo) GetWithContext(ctx context.Context, id string, before, after int) ([]Message, error) {
	var exists int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM temporal_messages WHERE id = ?`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check message exists: %w", err)
	}
	if exists == 0 {
		return nil, nerr.New(nerr.KindNotFound, "message %s not found", id)
	}

	beforeRows, err := r.db.QueryContext(ctx,
		`SELECT id, type, content, created_at FROM temporal_messages WHERE id < ? ORDER BY id DESC LIMIT ?`, id, before)
	if err != nil {
		return nil, fmt.Errorf("before query: %w", err)
	}
	beforeMsgs, err := scanMessages(beforeRows)
	beforeRows.Close()
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(beforeMsgs)-1; i < j; i, j = i+1, j-1 {
		beforeMsgs[i], beforeMsgs[j] = beforeMsgs[j], beforeMsgs[i]
	}

	var center Message
	row := r.db.QueryRowContext(ctx, `SELECT id, type, content, created_at FROM temporal_messages WHERE id = ?`, id)
	var createdAt int64
	if err := row.Scan(&center.ID, &center.Type, &center.Content, &createdAt); err != nil {
		return nil, fmt.Errorf("scan center message: %w", err)
	}
	center.CreatedAt = time.UnixMilli(createdAt)

	afterRows, err := r.db.QueryContext(ctx,
		`SELECT id, type, content, created_at FROM temporal_messages WHERE id > ? ORDER BY id ASC LIMIT ?`, id, after)
	if err != nil {
		return nil, fmt.Errorf("after query: %w", err)
	}
	afterMsgs, err := scanMessages(afterRows)
	afterRows.Close()
	if err != nil {
		return nil, err
	}

	out := make([]Message, 0, len(beforeMsgs)+1+len(afterMsgs))
	out = append(out, beforeMsgs...)
	out = append(out, center)
	out = append(out, afterMsgs...)
	return out, nil
}

// SearchFTS searches message content and distillation bodies, returning
// snippets with >>>match<<< markers around matched terms.
func (r *Repo) SearchFTS(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ref_id, kind, snippet(temporal_fts, 2, '>>>', '<<<', '...', 12)
		 FROM temporal_fts WHERE temporal_fts MATCH ? ORDER BY rank LIMIT ?`,
		ftsQuery(query), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search_fts: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(&h.ID, &h.Kind, &h.Snippet); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// ftsQuery quotes the raw query as an FTS5 phrase so punctuation in user
// text can't be mistaken for FTS5 query syntax.
func ftsQuery(q string) string {
	return `"` + strings.ReplaceAll(q, `"`, `""`) + `"`
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		var m Message
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.Type, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- Distillations ---

// InsertDistillation writes a new distillation row. Callers (the Distiller)
// are responsible for the single-transaction, no-source-deletion, and
// range-invariant rules; this method is the storage primitive.
func (r *Repo) InsertDistillation(ctx context.Context, level int, rangeStartID, rangeEndID, body string) (*Distillation, error) {
	compressed, err := r.compress(body)
	if err != nil {
		return nil, err
	}
	d := &Distillation{
		ID:           ids.New(ids.KindDistillation),
		Level:        level,
		RangeStartID: rangeStartID,
		RangeEndID:   rangeEndID,
		Body:         body,
		CreatedAt:    time.Now(),
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO distillations (id, level, range_start_id, range_end_id, body, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.Level, d.RangeStartID, d.RangeEndID, compressed, d.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert distillation: %w", err)
	}
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO temporal_fts (ref_id, kind, content) VALUES (?, 'distillation', ?)`, d.ID, body,
	); err != nil {
		return nil, fmt.Errorf("index distillation: %w", err)
	}
	return d, nil
}

// DistillationsAtLevel returns every distillation at level, ordered by
// range_start_id, for invariant checks and view reconstruction.
func (r *Repo) DistillationsAtLevel(ctx context.Context, level int) ([]Distillation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, level, range_start_id, range_end_id, body, created_at FROM distillations WHERE level = ? ORDER BY range_start_id ASC`,
		level,
	)
	if err != nil {
		return nil, fmt.Errorf("distillations at level: %w", err)
	}
	defer rows.Close()
	return r.scanDistillations(rows)
}

// MaxLevel returns the highest distillation level present, or 0 if none.
func (r *Repo) MaxLevel(ctx context.Context) (int, error) {
	var level sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(level) FROM distillations`).Scan(&level); err != nil {
		return 0, fmt.Errorf("max level: %w", err)
	}
	if !level.Valid {
		return 0, nil
	}
	return int(level.Int64), nil
}

func (r *Repo) scanDistillations(rows *sql.Rows) ([]Distillation, error) {
	var out []Distillation
	for rows.Next() {
		var d Distillation
		var compressed []byte
		var createdAt int64
		if err := rows.Scan(&d.ID, &d.Level, &d.RangeStartID, &d.RangeEndID, &compressed, &createdAt); err != nil {
			return nil, fmt.Errorf("scan distillation: %w", err)
		}
		d.CreatedAt = time.UnixMilli(createdAt)
		body, err := r.decompress(compressed)
		if err != nil {
			return nil, err
		}
		d.Body = body
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *Repo) compress(body string) ([]byte, error) {
	return r.encoder.EncodeAll([]byte(body), nil), nil
}

func (r *Repo) decompress(data []byte) (string, error) {
	out, err := r.decoder.DecodeAll(data, nil)
	if err != nil {
		return "", fmt.Errorf("decompress distillation body: %w", err)
	}
	return string(out), nil
}
