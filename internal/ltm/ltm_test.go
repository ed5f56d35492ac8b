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

package ltm_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sanctumlabs/nuum/internal/ltm"
	"github.com/sanctumlabs/nuum/internal/nerr"
	"github.com/sanctumlabs/nuum/internal/observability"
	"github.com/sanctumlabs/nuum/internal/store"
)

func newTestRepo(t *testing.T) *ltm.Repo {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(context.Background(), path, 1000, zap.NewNop(), observability.NewNoOpTracer())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return ltm.NewRepo(st.DB())
}

func TestEnsureSeeded_IsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.EnsureSeeded(ctx))
	require.NoError(t, repo.EnsureSeeded(ctx))

	identity, err := repo.Read(ctx, ltm.IdentitySlug)
	require.NoError(t, err)
	assert.Equal(t, 1, identity.Version)
}

func TestCreateAndRead(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.EnsureSeeded(ctx))

	e, err := repo.Create(ctx, "/projects/nuum", "/", "Nuum", "An agent engine.", "agent")
	require.NoError(t, err)
	assert.Equal(t, 1, e.Version)

	got, err := repo.Read(ctx, "/projects/nuum")
	require.NoError(t, err)
	assert.Equal(t, "An agent engine.", got.Body)
}

func TestCreate_DuplicateSlugConflicts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.EnsureSeeded(ctx))

	_, err := repo.Create(ctx, "/projects/nuum", "/", "Nuum", "body", "agent")
	require.NoError(t, err)

	_, err = repo.Create(ctx, "/projects/nuum", "/", "Nuum again", "body", "agent")
	require.Error(t, err)
	assert.True(t, nerr.Is(err, nerr.KindConflict))
}

func TestUpdate_CASConflictOnStaleVersion(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.EnsureSeeded(ctx))

	e, err := repo.Create(ctx, "/projects/nuum", "/", "Nuum", "v1", "agent")
	require.NoError(t, err)

	_, err = repo.Update(ctx, e.Slug, "v2", e.Version, "agent")
	require.NoError(t, err)

	// e.Version is now stale; a second update against it must conflict.
	_, err = repo.Update(ctx, e.Slug, "v3", e.Version, "agent")
	require.Error(t, err)
	assert.True(t, nerr.Is(err, nerr.KindConflict))
}

func TestUpdate_IncrementsVersionByOne(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.EnsureSeeded(ctx))

	e, err := repo.Create(ctx, "/projects/nuum", "/", "Nuum", "v1", "agent")
	require.NoError(t, err)

	updated, err := repo.Update(ctx, e.Slug, "v2", e.Version, "agent")
	require.NoError(t, err)
	assert.Equal(t, e.Version+1, updated.Version)
}

func TestEdit_FailsWhenTargetNotFoundOrAmbiguous(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.EnsureSeeded(ctx))

	e, err := repo.Create(ctx, "/notes/one", "/", "One", "alpha beta alpha", "agent")
	require.NoError(t, err)

	_, err = repo.Edit(ctx, e.Slug, "gamma", "delta", e.Version, "agent")
	require.Error(t, err)
	assert.True(t, nerr.Is(err, nerr.KindNotFound))

	_, err = repo.Edit(ctx, e.Slug, "alpha", "x", e.Version, "agent")
	require.Error(t, err)
	assert.True(t, nerr.Is(err, nerr.KindConflict))
}

func TestEdit_ReplacesSingleOccurrence(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.EnsureSeeded(ctx))

	e, err := repo.Create(ctx, "/notes/one", "/", "One", "alpha beta", "agent")
	require.NoError(t, err)

	updated, err := repo.Edit(ctx, e.Slug, "beta", "gamma", e.Version, "agent")
	require.NoError(t, err)
	assert.Equal(t, "alpha gamma", updated.Body)
}

func TestRename_CascadesToDescendants(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.EnsureSeeded(ctx))

	parent, err := repo.Create(ctx, "/projects/old", "/", "Old", "body", "agent")
	require.NoError(t, err)
	child, err := repo.Create(ctx, "/projects/old/child", parent.Slug, "Child", "body", "agent")
	require.NoError(t, err)

	_, err = repo.Rename(ctx, parent.Slug, "/projects/new", parent.Version, "agent")
	require.NoError(t, err)

	_, err = repo.Read(ctx, "/projects/old/child")
	require.Error(t, err)
	assert.True(t, nerr.Is(err, nerr.KindNotFound))

	moved, err := repo.Read(ctx, "/projects/new/child")
	require.NoError(t, err)
	assert.Equal(t, "/projects/new", moved.ParentSlug)
	assert.Equal(t, child.Version+1, moved.Version)
}

func TestArchive_HidesFromDefaultGlob(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.EnsureSeeded(ctx))

	e, err := repo.Create(ctx, "/notes/stale", "/", "Stale", "body", "agent")
	require.NoError(t, err)

	_, err = repo.Archive(ctx, e.Slug, e.Version, "agent")
	require.NoError(t, err)

	hits, err := repo.Glob(ctx, "/notes/*", false)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = repo.Glob(ctx, "/notes/*", true)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestSearch_FindsEntryByBody(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.EnsureSeeded(ctx))

	_, err := repo.Create(ctx, "/notes/whale", "/", "Whale facts", "the blue whale is the largest animal", "agent")
	require.NoError(t, err)

	hits, err := repo.Search(ctx, "whale", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "/notes/whale", hits[0].Slug)
}
