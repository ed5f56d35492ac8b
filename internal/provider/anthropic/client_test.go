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

package anthropic

import (
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"

	"github.com/sanctumlabs/nuum/internal/provider"
)

func TestToStopReason_MapsKnownReasons(t *testing.T) {
	assert.Equal(t, provider.StopToolUse, toStopReason(anthropic.StopReasonToolUse))
	assert.Equal(t, provider.StopMaxTokens, toStopReason(anthropic.StopReasonMaxTokens))
	assert.Equal(t, provider.StopEndTurn, toStopReason(anthropic.StopReasonEndTurn))
}

func TestMaxTokens_PrefersRequestOverrideOverFallback(t *testing.T) {
	req := provider.Request{MaxOutputTokens: 512}
	assert.Equal(t, int64(512), maxTokens(req, 8192))
}

func TestMaxTokens_FallsBackWhenRequestUnset(t *testing.T) {
	req := provider.Request{}
	assert.Equal(t, int64(8192), maxTokens(req, 8192))
}

func TestNewClient_DefaultsModelAndTimeout(t *testing.T) {
	c := NewClient(Config{APIKey: "test-key"})
	assert.Equal(t, string(anthropic.ModelClaudeSonnet4_5), c.ModelFamily())
	assert.Equal(t, int64(8192), c.cfg.MaxTokens)
	assert.Equal(t, 120*time.Second, c.cfg.Timeout)
}

func TestToAPIMessages_TextToolCallAndToolResultVariants(t *testing.T) {
	messages := []provider.Message{
		{Role: provider.RoleUser, Content: "hi"},
		{Role: provider.RoleAssistant, ToolCalls: []provider.ToolCall{
			{ID: "1", Name: "noop", Input: map[string]any{"a": 1}},
		}},
		{Role: provider.RoleUser, ToolResults: []provider.ToolResult{
			{ToolCallID: "1", Content: "ok", IsError: false},
		}},
	}
	out := toAPIMessages(messages)
	assert.Len(t, out, 3)
	assert.Equal(t, anthropic.MessageParamRoleUser, out[0].Role)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, out[1].Role)
}
