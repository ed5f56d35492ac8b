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

// Package provider defines the contract between the Turn Loop and a
// pluggable LLM backend. Anthropic is the only adapter shipped; the
// interface is narrow enough that a second backend would only need to
// implement Chat.
package provider

import "context"

// Role identifies the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolResult is the outcome of executing a ToolCall, fed back on the next
// turn as a tool_result content block.
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// Message is one entry in the conversation sent to the model. Exactly one
// of Content, ToolCalls, or ToolResults is normally populated, matching the
// three message shapes the Turn Loop produces (user text, assistant
// response, tool results).
type Message struct {
	Role        Role
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
	// CacheControl marks this message as a prompt-cache breakpoint (see
	// spec.md §4.6 step 4: the system prompt and the last three messages).
	CacheControl bool
}

// ToolSpec advertises one callable tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Usage reports token accounting for one request, including prompt-cache
// hit/write counts used to compute the cache-hit-ratio metric (spec §4.6
// step 5 / SPEC_FULL.md C.4).
type Usage struct {
	InputTokens         int
	OutputTokens        int
	CacheCreationTokens int
	CacheReadTokens     int
}

// StopReason classifies why the model stopped generating.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

// Response is what the Turn Loop receives from one provider call.
type Response struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason StopReason
	Usage      Usage
}

// Request bundles everything one Chat call needs: the fixed system prompt,
// the message array the Context Assembler built, the tool catalog, and an
// output-token ceiling derived from the model family (spec §4.6's
// max_out_tokens heuristic).
type Request struct {
	System           string
	SystemCacheable  bool
	Messages         []Message
	Tools            []ToolSpec
	MaxOutputTokens  int
}

// Provider is the contract a Turn Loop or sub-agent drives against. A
// Provider must never retain state across calls beyond connection pooling;
// all conversational state lives in the Request.
type Provider interface {
	Chat(ctx context.Context, req Request) (*Response, error)
	// ModelFamily identifies the configured model for max_out_tokens and
	// other family-specific heuristics (spec §4.6).
	ModelFamily() string
}
