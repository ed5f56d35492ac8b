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

package assembler_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sanctumlabs/nuum/internal/assembler"
	"github.com/sanctumlabs/nuum/internal/bus"
	"github.com/sanctumlabs/nuum/internal/ltm"
	"github.com/sanctumlabs/nuum/internal/observability"
	"github.com/sanctumlabs/nuum/internal/present"
	"github.com/sanctumlabs/nuum/internal/store"
	"github.com/sanctumlabs/nuum/internal/temporal"
)

func newTestAssembler(t *testing.T) *assembler.Assembler {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(context.Background(), path, 1000, zap.NewNop(), observability.NewNoOpTracer())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	temporalRepo, err := temporal.NewRepo(st.DB())
	require.NoError(t, err)
	presentRepo := present.NewRepo(st.DB(), bus.NewBroker[present.State]("present-test", zap.NewNop()))
	ltmRepo := ltm.NewRepo(st.DB())
	require.NoError(t, ltmRepo.EnsureSeeded(context.Background()))

	asm, err := assembler.New(temporalRepo, presentRepo, ltmRepo, 200_000, 0.4)
	require.NoError(t, err)
	return asm
}

func TestBuild_IncludesIdentityAndBehaviorInSystemPrompt(t *testing.T) {
	asm := newTestAssembler(t)

	built, err := asm.Build(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, built.System)
	assert.True(t, built.SystemCacheable)
}

func TestBuild_AppendsUserInputAsFinalMessage(t *testing.T) {
	asm := newTestAssembler(t)

	built, err := asm.Build(context.Background(), "what's the plan?", nil)
	require.NoError(t, err)
	require.NotEmpty(t, built.Messages)
	last := built.Messages[len(built.Messages)-1]
	assert.Equal(t, "what's the plan?", last.Content)
	assert.True(t, last.CacheControl)
}

func TestBuild_IncludesPendingReportsInSystemPrompt(t *testing.T) {
	asm := newTestAssembler(t)

	built, err := asm.Build(context.Background(), "hi", []string{"[task tsk_1] found 3 results"})
	require.NoError(t, err)
	assert.Contains(t, built.System, "found 3 results")
}

func TestCountTokens_NonEmptyTextIsPositive(t *testing.T) {
	asm := newTestAssembler(t)
	assert.Greater(t, asm.CountTokens("hello world"), 0)
}
