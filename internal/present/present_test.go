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

package present_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sanctumlabs/nuum/internal/bus"
	"github.com/sanctumlabs/nuum/internal/nerr"
	"github.com/sanctumlabs/nuum/internal/observability"
	"github.com/sanctumlabs/nuum/internal/present"
	"github.com/sanctumlabs/nuum/internal/store"
)

func newTestRepo(t *testing.T) (*present.Repo, *bus.Broker[present.State]) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(context.Background(), path, 1000, zap.NewNop(), observability.NewNoOpTracer())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	broker := bus.NewBroker[present.State]("present-test", zap.NewNop())
	return present.NewRepo(st.DB(), broker), broker
}

func TestGet_ReturnsEmptyStateInitially(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	s, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, s.Mission)
	assert.Empty(t, s.Tasks)
}

func TestSetMission_PersistsAndPublishes(t *testing.T) {
	repo, broker := newTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := broker.Subscribe(ctx)

	require.NoError(t, repo.SetMission(ctx, "ship the release"))

	s, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ship the release", s.Mission)

	select {
	case evt := <-events:
		assert.Equal(t, "ship the release", evt.Payload.Mission)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for present-changed event")
	}
}

func TestAddTask_AppendsInPositionOrder(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.AddTask(ctx, "first")
	require.NoError(t, err)
	_, err = repo.AddTask(ctx, "second")
	require.NoError(t, err)

	s, err := repo.Get(ctx)
	require.NoError(t, err)
	require.Len(t, s.Tasks, 2)
	assert.Equal(t, "first", s.Tasks[0].Text)
	assert.Equal(t, "second", s.Tasks[1].Text)
	assert.Equal(t, present.TaskPending, s.Tasks[0].Status)
}

func TestCompleteTask_MarksCompletedAndExcludesFromPending(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	task, err := repo.AddTask(ctx, "write tests")
	require.NoError(t, err)
	require.NoError(t, repo.CompleteTask(ctx, task.ID))

	pending, err := repo.PendingTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCompleteTask_UnknownIDIsNotFound(t *testing.T) {
	repo, _ := newTestRepo(t)
	err := repo.CompleteTask(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.True(t, nerr.Is(err, nerr.KindNotFound))
}

func TestRemoveTask_DeletesFromList(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	task, err := repo.AddTask(ctx, "throwaway")
	require.NoError(t, err)
	require.NoError(t, repo.RemoveTask(ctx, task.ID))

	s, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, s.Tasks)
}

func TestPendingTasks_OnlyReturnsUncompleted(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	done, err := repo.AddTask(ctx, "done already")
	require.NoError(t, err)
	_, err = repo.AddTask(ctx, "still pending")
	require.NoError(t, err)
	require.NoError(t, repo.CompleteTask(ctx, done.ID))

	pending, err := repo.PendingTasks(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "still pending", pending[0].Text)
}
