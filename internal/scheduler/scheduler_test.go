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

package scheduler_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sanctumlabs/nuum/internal/bus"
	"github.com/sanctumlabs/nuum/internal/nerr"
	"github.com/sanctumlabs/nuum/internal/observability"
	"github.com/sanctumlabs/nuum/internal/scheduler"
	"github.com/sanctumlabs/nuum/internal/store"
)

func newTestScheduler(t *testing.T) (*scheduler.Scheduler, chan string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(context.Background(), path, 1000, zap.NewNop(), observability.NewNoOpTracer())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	injected := make(chan string, 16)
	sched := scheduler.New(context.Background(), scheduler.Config{
		DB:     st.DB(),
		Bus:    bus.NewBroker[[]scheduler.Task]("tasks-changed-test", zap.NewNop()),
		Inject: func(text string) { injected <- text },
		Logger: zap.NewNop(),
	})
	t.Cleanup(sched.Close)
	return sched, injected
}

func TestCreate_CompletesAndDeliversResultViaInjection(t *testing.T) {
	sched, injected := newTestScheduler(t)
	ctx := context.Background()

	id, err := sched.Create(ctx, "research", "look into X", func(ctx context.Context) (string, error) {
		return "found it", nil
	})
	require.NoError(t, err)

	select {
	case text := <-injected:
		assert.Contains(t, text, "found it")
		assert.Contains(t, text, id)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for injected result")
	}

	tasks, err := sched.List(ctx, scheduler.StatusCompleted)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "found it", tasks[0].Result)
}

func TestCreate_MarksFailedOnError(t *testing.T) {
	sched, _ := newTestScheduler(t)
	ctx := context.Background()
	cause := errors.New("research dead end")

	_, err := sched.Create(ctx, "research", "look into X", func(ctx context.Context) (string, error) {
		return "", cause
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		tasks, err := sched.List(ctx, scheduler.StatusFailed)
		return err == nil && len(tasks) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCreate_RespectsConcurrencyCap(t *testing.T) {
	sched, _ := newTestScheduler(t)
	ctx := context.Background()

	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(scheduler.MaxConcurrentTasks)
	for i := 0; i < scheduler.MaxConcurrentTasks; i++ {
		_, err := sched.Create(ctx, "research", "hold", func(ctx context.Context) (string, error) {
			wg.Done()
			<-release
			return "done", nil
		})
		require.NoError(t, err)
	}
	wg.Wait() // all MaxConcurrentTasks slots are now occupied

	_, err := sched.Create(ctx, "research", "overflow", func(ctx context.Context) (string, error) {
		return "unreachable", nil
	})
	require.Error(t, err)
	assert.True(t, nerr.Is(err, nerr.KindConflict))

	close(release)
}

func TestCancel_NotRunningReturnsNotFound(t *testing.T) {
	sched, _ := newTestScheduler(t)
	ctx := context.Background()

	err := sched.Cancel(ctx, "tsk_does_not_exist")
	require.Error(t, err)
	assert.True(t, nerr.Is(err, nerr.KindNotFound))
}

func TestSetAlarm_FiresAndInjectsResult(t *testing.T) {
	sched, injected := newTestScheduler(t)
	ctx := context.Background()

	_, err := sched.SetAlarm(ctx, time.Now().Add(-time.Second), "reminder: stand up")
	require.NoError(t, err)

	select {
	case text := <-injected:
		assert.Contains(t, text, "reminder: stand up")
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for alarm to fire")
	}
}
