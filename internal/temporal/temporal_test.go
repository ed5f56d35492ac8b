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

package temporal_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sanctumlabs/nuum/internal/observability"
	"github.com/sanctumlabs/nuum/internal/store"
	"github.com/sanctumlabs/nuum/internal/temporal"
)

func newTestRepo(t *testing.T) *temporal.Repo {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(context.Background(), path, 1000, zap.NewNop(), observability.NewNoOpTracer())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	repo, err := temporal.NewRepo(st.DB())
	require.NoError(t, err)
	return repo
}

func TestAppend_AssignsIDAndPersists(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	msg, err := repo.Append(ctx, temporal.TypeUser, "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, temporal.TypeUser, msg.Type)
}

func TestRange_ReturnsInTemporalOrderAfterCursor(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first, err := repo.Append(ctx, temporal.TypeUser, "one")
	require.NoError(t, err)
	second, err := repo.Append(ctx, temporal.TypeAssistant, "two")
	require.NoError(t, err)
	_, err = repo.Append(ctx, temporal.TypeUser, "three")
	require.NoError(t, err)

	page, err := repo.Range(ctx, first.ID, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, second.ID, page[0].ID)
}

func TestTail_ReturnsEverythingAfterCursorUnbounded(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first, err := repo.Append(ctx, temporal.TypeUser, "one")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := repo.Append(ctx, temporal.TypeAssistant, "reply")
		require.NoError(t, err)
	}

	tail, err := repo.Tail(ctx, first.ID)
	require.NoError(t, err)
	assert.Len(t, tail, 5)
}

func TestGetWithContext_ReturnsNeighborsInOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		m, err := repo.Append(ctx, temporal.TypeUser, "msg")
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}

	window, err := repo.GetWithContext(ctx, ids[2], 2, 2)
	require.NoError(t, err)
	require.Len(t, window, 5)
	for i, id := range ids {
		assert.Equal(t, id, window[i].ID)
	}
}

func TestGetWithContext_UnknownIDIsNotFound(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.GetWithContext(ctx, "msg_does_not_exist", 1, 1)
	require.Error(t, err)
}

func TestSearchFTS_FindsAppendedMessage(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Append(ctx, temporal.TypeUser, "the blue whale migrates south")
	require.NoError(t, err)

	hits, err := repo.SearchFTS(ctx, "whale", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "message", hits[0].Kind)
}

func TestDistillation_RoundTripsCompressedBody(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first, err := repo.Append(ctx, temporal.TypeUser, "one")
	require.NoError(t, err)
	second, err := repo.Append(ctx, temporal.TypeAssistant, "two")
	require.NoError(t, err)

	body := "a summary of the exchange above, repeated to exercise compression. " +
		"a summary of the exchange above, repeated to exercise compression."
	_, err = repo.InsertDistillation(ctx, 1, first.ID, second.ID, body)
	require.NoError(t, err)

	dists, err := repo.DistillationsAtLevel(ctx, 1)
	require.NoError(t, err)
	require.Len(t, dists, 1)
	assert.Equal(t, body, dists[0].Body)
	assert.Equal(t, first.ID, dists[0].RangeStartID)
	assert.Equal(t, second.ID, dists[0].RangeEndID)
}

func TestMaxLevel_ZeroWhenNoDistillationsExist(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	level, err := repo.MaxLevel(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, level)
}

func TestMaxLevel_ReflectsHighestInsertedLevel(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	m, err := repo.Append(ctx, temporal.TypeUser, "one")
	require.NoError(t, err)
	_, err = repo.InsertDistillation(ctx, 1, m.ID, m.ID, "level one body")
	require.NoError(t, err)
	_, err = repo.InsertDistillation(ctx, 2, m.ID, m.ID, "level two body")
	require.NoError(t, err)

	level, err := repo.MaxLevel(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, level)
}
