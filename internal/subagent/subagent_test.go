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

package subagent_test

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
	"github.com/sanctumlabs/nuum/internal/provider"
	"github.com/sanctumlabs/nuum/internal/store"
	"github.com/sanctumlabs/nuum/internal/subagent"
	"github.com/sanctumlabs/nuum/internal/temporal"
)

func newTestDeps(t *testing.T) (*assembler.Assembler, *temporal.Repo, *ltm.Repo) {
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
	return asm, temporalRepo, ltmRepo
}

// scriptedProvider returns one canned Response per call, in order, looping
// on the last entry once exhausted.
type scriptedProvider struct {
	responses []provider.Response
	calls     int
}

func (p *scriptedProvider) Chat(ctx context.Context, req provider.Request) (*provider.Response, error) {
	idx := p.calls
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	p.calls++
	resp := p.responses[idx]
	return &resp, nil
}

func (p *scriptedProvider) ModelFamily() string { return "claude-sonnet" }

func TestRunConsolidator_ReturnsFinishSummary(t *testing.T) {
	asm, temporalRepo, ltmRepo := newTestDeps(t)
	prov := &scriptedProvider{responses: []provider.Response{
		{
			ToolCalls: []provider.ToolCall{{ID: "1", Name: "finish_consolidation", Input: map[string]any{"summary": "recorded the new deployment process"}}},
			StopReason: provider.StopToolUse,
		},
	}}

	report, err := subagent.RunConsolidator(context.Background(), asm, prov, temporalRepo, ltmRepo, zap.NewNop(), observability.NewNoOpTracer(), "user: how do we deploy now?\nassistant: via the new pipeline")
	require.NoError(t, err)
	assert.Equal(t, "recorded the new deployment process", report.Text)
}

func TestRunResearch_ReturnsFinishAnswer(t *testing.T) {
	asm, temporalRepo, ltmRepo := newTestDeps(t)
	prov := &scriptedProvider{responses: []provider.Response{
		{
			ToolCalls: []provider.ToolCall{{ID: "1", Name: "finish_research", Input: map[string]any{"summary": "the answer is 42"}}},
			StopReason: provider.StopToolUse,
		},
	}}

	report, err := subagent.RunResearch(context.Background(), asm, prov, temporalRepo, ltmRepo, nil, nil, zap.NewNop(), observability.NewNoOpTracer(), "what is the answer?")
	require.NoError(t, err)
	assert.Equal(t, "the answer is 42", report.Text)
}

func TestRunReflection_ReturnsFinishFindings(t *testing.T) {
	asm, temporalRepo, ltmRepo := newTestDeps(t)
	prov := &scriptedProvider{responses: []provider.Response{
		{
			ToolCalls: []provider.ToolCall{{ID: "1", Name: "finish_reflection", Input: map[string]any{"summary": "the user keeps re-asking about auth; worth a dedicated LTM entry"}}},
			StopReason: provider.StopToolUse,
		},
	}}

	report, err := subagent.RunReflection(context.Background(), asm, prov, temporalRepo, ltmRepo, zap.NewNop(), observability.NewNoOpTracer(), "recurring questions")
	require.NoError(t, err)
	assert.Equal(t, "the user keeps re-asking about auth; worth a dedicated LTM entry", report.Text)
}
