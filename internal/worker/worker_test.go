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

package worker_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sanctumlabs/nuum/internal/observability"
	"github.com/sanctumlabs/nuum/internal/store"
	"github.com/sanctumlabs/nuum/internal/worker"
)

func newTestRepo(t *testing.T) *worker.Repo {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(context.Background(), path, 1000, zap.NewNop(), observability.NewNoOpTracer())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return worker.NewRepo(st.DB())
}

func TestRun_MarksCompletedOnSuccess(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	err := repo.Run(ctx, "distiller", func(ctx context.Context) error { return nil })
	require.NoError(t, err)

	recs, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, worker.StatusCompleted, recs[0].Status)
	assert.NotNil(t, recs[0].CompletedAt)
}

func TestRun_MarksFailedAndPropagatesError(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	cause := errors.New("distillation exploded")

	err := repo.Run(ctx, "distiller", func(ctx context.Context) error { return cause })
	require.ErrorIs(t, err, cause)

	recs, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, worker.StatusFailed, recs[0].Status)
	assert.Equal(t, cause.Error(), recs[0].Error)
}

func TestRecent_OrdersNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Start(ctx, "first")
	require.NoError(t, err)
	secondID, err := repo.Start(ctx, "second")
	require.NoError(t, err)
	require.NoError(t, repo.Complete(ctx, secondID))

	recs, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	types := []string{recs[0].Type, recs[1].Type}
	assert.Equal(t, []string{"second", "first"}, types)
}
