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

package distiller_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sanctumlabs/nuum/internal/distiller"
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

func appendN(t *testing.T, repo *temporal.Repo, n int, content string) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := repo.Append(context.Background(), temporal.TypeUser, content)
		require.NoError(t, err)
	}
}

// lenCounter is a deterministic TokenCounter: one "token" per rune, so
// threshold math in tests doesn't depend on tiktoken.
func lenCounter(s string) int { return len(s) }

func TestShouldTrigger_FalseBelowThreshold(t *testing.T) {
	repo := newTestRepo(t)
	appendN(t, repo, 3, "short")

	d := distiller.New(repo, nil, distiller.DefaultConfig(), zap.NewNop(), observability.NewNoOpTracer())
	due, err := d.ShouldTrigger(context.Background(), 1000, lenCounter)
	require.NoError(t, err)
	assert.False(t, due)
}

func TestShouldTrigger_TrueAboveThreshold(t *testing.T) {
	repo := newTestRepo(t)
	appendN(t, repo, 10, "a message long enough to add up over several copies")

	d := distiller.New(repo, nil, distiller.DefaultConfig(), zap.NewNop(), observability.NewNoOpTracer())
	due, err := d.ShouldTrigger(context.Background(), 10, lenCounter)
	require.NoError(t, err)
	assert.True(t, due)
}

func TestRunLevel1_NoopBelowBatchWindow(t *testing.T) {
	repo := newTestRepo(t)
	appendN(t, repo, 5, "hello")

	cfg := distiller.Config{BatchWindow: 40, ComposeFanIn: 4}
	d := distiller.New(repo, nil, cfg, zap.NewNop(), observability.NewNoOpTracer())
	dist, err := d.RunLevel1(context.Background())
	require.NoError(t, err)
	assert.Nil(t, dist)
}

func TestRunLevel1_ProducesDistillationAtBatchWindow(t *testing.T) {
	repo := newTestRepo(t)
	appendN(t, repo, 40, "the quick brown fox jumps over the lazy dog")

	cfg := distiller.Config{BatchWindow: 40, ComposeFanIn: 4}
	d := distiller.New(repo, nil, cfg, zap.NewNop(), observability.NewNoOpTracer())
	dist, err := d.RunLevel1(context.Background())
	require.NoError(t, err)
	require.NotNil(t, dist)
	assert.Equal(t, 1, dist.Level)
	assert.NotEmpty(t, dist.Body)

	msgs, err := repo.Range(context.Background(), "", 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, msgs[0].ID, dist.RangeStartID)
}

func TestRunCompose_NoopBelowFanIn(t *testing.T) {
	repo := newTestRepo(t)
	cfg := distiller.Config{BatchWindow: 10, ComposeFanIn: 4}
	d := distiller.New(repo, nil, cfg, zap.NewNop(), observability.NewNoOpTracer())

	appendN(t, repo, 10, "a")
	_, err := d.RunLevel1(context.Background())
	require.NoError(t, err)

	out, err := d.RunCompose(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestRunCompose_ComposesAdjacentDistillations(t *testing.T) {
	repo := newTestRepo(t)
	cfg := distiller.Config{BatchWindow: 5, ComposeFanIn: 4}
	d := distiller.New(repo, nil, cfg, zap.NewNop(), observability.NewNoOpTracer())

	for i := 0; i < 4; i++ {
		appendN(t, repo, 5, "message batch content")
		dist, err := d.RunLevel1(context.Background())
		require.NoError(t, err)
		require.NotNil(t, dist)
	}

	out, err := d.RunCompose(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, 2, out.Level)

	level1, err := repo.DistillationsAtLevel(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, level1[0].RangeStartID, out.RangeStartID)
	assert.Equal(t, level1[3].RangeEndID, out.RangeEndID)
}

func TestRunLevel1_SkipsAlreadyDistilledTail(t *testing.T) {
	repo := newTestRepo(t)
	cfg := distiller.Config{BatchWindow: 5, ComposeFanIn: 4}
	d := distiller.New(repo, nil, cfg, zap.NewNop(), observability.NewNoOpTracer())

	appendN(t, repo, 5, "first batch")
	first, err := d.RunLevel1(context.Background())
	require.NoError(t, err)
	require.NotNil(t, first)

	appendN(t, repo, 4, "second batch, not yet enough")
	second, err := d.RunLevel1(context.Background())
	require.NoError(t, err)
	assert.Nil(t, second)
}
