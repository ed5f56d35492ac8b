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

// Package anthropic adapts github.com/anthropics/anthropic-sdk-go to the
// provider.Provider contract.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sanctumlabs/nuum/internal/nerr"
	"github.com/sanctumlabs/nuum/internal/provider"
)

// Config configures a Client.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int64
	Temperature float64
	Timeout     time.Duration
}

// Client implements provider.Provider against the Anthropic Messages API.
type Client struct {
	sdk   anthropic.Client
	model string
	cfg   Config
}

// NewClient builds a Client. Model defaults to Claude Sonnet if unset.
func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = string(anthropic.ModelClaudeSonnet4_5)
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 8192
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
	}
	return &Client{
		sdk:   anthropic.NewClient(opts...),
		model: cfg.Model,
		cfg:   cfg,
	}
}

// ModelFamily returns the configured model identifier.
func (c *Client) ModelFamily() string { return c.model }

// Chat sends req to the Messages API and translates the response back into
// the provider-neutral Response shape.
func (c *Client) Chat(ctx context.Context, req provider.Request) (*provider.Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens(req, c.cfg.MaxTokens),
		Messages:  toAPIMessages(req.Messages),
	}
	if req.System != "" {
		block := anthropic.TextBlockParam{Text: req.System}
		if req.SystemCacheable {
			block.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		params.System = []anthropic.TextBlockParam{block}
	}
	if len(req.Tools) > 0 {
		params.Tools = toAPITools(req.Tools)
	}

	msg, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return nil, nerr.Wrap(nerr.KindProviderError, err, "anthropic messages.new")
	}
	return fromAPIMessage(msg), nil
}

func maxTokens(req provider.Request, fallback int64) int64 {
	if req.MaxOutputTokens > 0 {
		return int64(req.MaxOutputTokens)
	}
	return fallback
}

func toAPIMessages(messages []provider.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		var blocks []anthropic.ContentBlockParamUnion
		switch {
		case len(m.ToolCalls) > 0:
			for _, tc := range m.ToolCalls {
				input, _ := json.Marshal(tc.Input)
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, json.RawMessage(input), tc.Name))
			}
		case len(m.ToolResults) > 0:
			for _, tr := range m.ToolResults {
				blocks = append(blocks, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
			}
		default:
			blocks = append(blocks, anthropic.NewTextBlock(m.Content))
		}
		if m.CacheControl && len(blocks) > 0 {
			markCacheable(blocks[len(blocks)-1])
		}

		role := anthropic.MessageParamRoleUser
		if m.Role == provider.RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}
	return out
}

// markCacheable sets an ephemeral cache-control breakpoint on whichever
// concrete block type the union wraps. The SDK's cache_control field lives
// on each content-block variant rather than the union itself.
func markCacheable(block anthropic.ContentBlockParamUnion) {
	switch {
	case block.OfText != nil:
		block.OfText.CacheControl = anthropic.NewCacheControlEphemeralParam()
	case block.OfToolUse != nil:
		block.OfToolUse.CacheControl = anthropic.NewCacheControlEphemeralParam()
	case block.OfToolResult != nil:
		block.OfToolResult.CacheControl = anthropic.NewCacheControlEphemeralParam()
	}
}

func toAPITools(tools []provider.ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := anthropic.ToolInputSchemaParam{
			Properties: t.InputSchema["properties"],
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: schema,
			},
		})
	}
	return out
}

func fromAPIMessage(msg *anthropic.Message) *provider.Response {
	resp := &provider.Response{
		StopReason: toStopReason(msg.StopReason),
		Usage: provider.Usage{
			InputTokens:         int(msg.Usage.InputTokens),
			OutputTokens:        int(msg.Usage.OutputTokens),
			CacheCreationTokens: int(msg.Usage.CacheCreationInputTokens),
			CacheReadTokens:     int(msg.Usage.CacheReadInputTokens),
		},
	}
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Content += variant.Text
		case anthropic.ToolUseBlock:
			var input map[string]any
			_ = json.Unmarshal(variant.Input, &input)
			resp.ToolCalls = append(resp.ToolCalls, provider.ToolCall{
				ID:    variant.ID,
				Name:  variant.Name,
				Input: input,
			})
		}
	}
	return resp
}

func toStopReason(r anthropic.StopReason) provider.StopReason {
	switch r {
	case anthropic.StopReasonToolUse:
		return provider.StopToolUse
	case anthropic.StopReasonMaxTokens:
		return provider.StopMaxTokens
	default:
		return provider.StopEndTurn
	}
}

var _ provider.Provider = (*Client)(nil)

// ErrMissingAPIKey is returned by config validation helpers in cmd/nuum
// when ANTHROPIC_API_KEY is unset; kept here so callers across the module
// branch on one sentinel instead of a magic string.
var ErrMissingAPIKey = fmt.Errorf("anthropic: API key not configured")
