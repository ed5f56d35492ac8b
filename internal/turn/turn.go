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

// Package turn runs the agent turn loop: it assembles context, invokes the
// provider, dispatches tool calls, and records every step to the temporal
// log, iterating until the model stops, max_turns is hit, or the turn is
// cancelled.
package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sanctumlabs/nuum/internal/assembler"
	"github.com/sanctumlabs/nuum/internal/nerr"
	"github.com/sanctumlabs/nuum/internal/observability"
	"github.com/sanctumlabs/nuum/internal/provider"
	"github.com/sanctumlabs/nuum/internal/temporal"
	"github.com/sanctumlabs/nuum/internal/tool"
)

// StopReason classifies why run_turn returned.
type StopReason string

const (
	StopCancelled    StopReason = "cancelled"
	StopDone         StopReason = "done" // the finish tool was called
	StopNoToolCalls  StopReason = "no_tool_calls"
	StopMaxTurns     StopReason = "max_turns"
)

// Result is run_turn's contract return value (spec.md §4.6).
type Result struct {
	Text       string
	StopReason StopReason
	Usage      provider.Usage
}

// DefaultMaxTurns matches NUUM_MAX_TURNS's default.
const DefaultMaxTurns = 50

// maxOutputTokensFor implements spec.md §4.6's model-family heuristic.
func maxOutputTokensFor(modelFamily string) int {
	lower := strings.ToLower(modelFamily)
	switch {
	case strings.Contains(lower, "opus-4") || strings.Contains(lower, "opus4"):
		return 128_000
	case strings.Contains(lower, "sonnet") || strings.Contains(lower, "haiku-4-5") || strings.Contains(lower, "haiku4.5"):
		return 64_000
	case strings.Contains(lower, "3-5") || strings.Contains(lower, "3.5"):
		return 8_000
	default:
		return 16_000
	}
}

// Loop runs one session's (or bounded sub-agent's) turn iterations. Its
// FinishTool field, when set, names the tool whose call ends the loop with
// a `done` stop; the main session loop leaves it empty and relies on
// StopNoToolCalls instead.
type Loop struct {
	asm      *assembler.Assembler
	prov     provider.Provider
	temporal *temporal.Repo
	tools    *tool.Registry
	logger   *zap.Logger
	tracer   observability.Tracer

	maxTurns   int
	finishTool string // "" for the main loop; set for bounded sub-agents

	mu       sync.Mutex
	inject   []string // mid-turn injection queue
	onBefore func(ctx context.Context) []string
}

// Config wires a Loop's dependencies.
type Config struct {
	Assembler  *assembler.Assembler
	Provider   provider.Provider
	Temporal   *temporal.Repo
	Tools      *tool.Registry
	Logger     *zap.Logger
	Tracer     observability.Tracer
	MaxTurns   int    // 0 means DefaultMaxTurns
	FinishTool string // non-empty for a bounded sub-agent loop
}

// New builds a Loop.
func New(cfg Config) *Loop {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	maxTurns := cfg.MaxTurns
	if maxTurns == 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Loop{
		asm:        cfg.Assembler,
		prov:       cfg.Provider,
		temporal:   cfg.Temporal,
		tools:      cfg.Tools,
		logger:     logger,
		tracer:     tracer,
		maxTurns:   maxTurns,
		finishTool: cfg.FinishTool,
	}
}

// Inject enqueues text for delivery as a user message before the next
// provider call, per spec.md §4.6's mid-turn injection rule. Safe to call
// from any goroutine while a turn is in progress.
func (l *Loop) Inject(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inject = append(l.inject, text)
}

// OnBeforeTurn sets the hook run at each iteration's start (step 2 of
// spec.md §4.6); it returns additional text to inject (e.g. delivered
// background task results or fired alarms) beyond the plain injection
// queue. May be nil.
func (l *Loop) OnBeforeTurn(fn func(ctx context.Context) []string) {
	l.onBefore = fn
}

func (l *Loop) drainInjections() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.inject
	l.inject = nil
	return out
}

// Run executes run_turn(user_input) per spec.md §4.6's numbered contract.
func (l *Loop) Run(ctx context.Context, userInput string) (*Result, error) {
	var usage provider.Usage
	var lastText string
	pendingReports := []string{}

	for iteration := 0; iteration < l.maxTurns; iteration++ {
		// Step 1: cooperative cancellation check.
		if err := ctx.Err(); err != nil {
			return &Result{Text: lastText, StopReason: StopCancelled, Usage: usage}, nil
		}

		ctx, span := l.tracer.StartSpan(ctx, observability.SpanTurnIterate, observability.WithAttribute("iteration", iteration))

		// Step 2: on_before_turn hook + injection queue drain.
		injected := l.drainInjections()
		if l.onBefore != nil {
			injected = append(injected, l.onBefore(ctx)...)
		}
		pendingReports = append(pendingReports, injected...)

		// Only the first iteration carries the caller's input; later
		// iterations carry whatever was injected, which may be empty when
		// the loop is continuing purely because the model made tool calls.
		input := userInput
		if iteration > 0 {
			input = strings.Join(injected, "\n")
		}

		// Step 4: assemble + call provider.
		built, err := l.asm.Build(ctx, input, pendingReports)
		if err != nil {
			l.tracer.EndSpan(span)
			return nil, err
		}
		pendingReports = nil

		req := provider.Request{
			System:          built.System,
			SystemCacheable: built.SystemCacheable,
			Messages:        built.Messages,
			Tools:           toProviderTools(l.tools.Specs()),
			MaxOutputTokens: maxOutputTokensFor(l.prov.ModelFamily()),
		}

		if input != "" {
			if _, err := l.temporal.Append(ctx, temporal.TypeUser, input); err != nil {
				l.tracer.EndSpan(span)
				return nil, err
			}
		}

		resp, err := l.callProvider(ctx, req)
		if err != nil {
			l.tracer.EndSpan(span)
			return nil, err
		}

		// Step 5: accumulate usage, log cache hit-rate.
		usage.InputTokens += resp.Usage.InputTokens
		usage.OutputTokens += resp.Usage.OutputTokens
		usage.CacheReadTokens += resp.Usage.CacheReadTokens
		usage.CacheCreationTokens += resp.Usage.CacheCreationTokens
		l.logCacheHitRate(resp.Usage)

		// Step 6: record assistant text + tool calls; dispatch tools.
		if resp.Content != "" {
			lastText = resp.Content
			if _, err := l.temporal.Append(ctx, temporal.TypeAssistant, resp.Content); err != nil {
				l.tracer.EndSpan(span)
				return nil, err
			}
		}

		finished := false
		for _, tc := range resp.ToolCalls {
			if _, err := l.temporal.Append(ctx, temporal.TypeToolCall, formatToolCall(tc)); err != nil {
				l.tracer.EndSpan(span)
				return nil, err
			}

			result, isError := l.tools.Dispatch(ctx, tc.Name, tc.Input)
			if _, err := l.temporal.Append(ctx, temporal.TypeToolResult, result); err != nil {
				l.tracer.EndSpan(span)
				return nil, err
			}
			_ = isError

			if l.finishTool != "" && tc.Name == l.finishTool {
				finished = true
				lastText = result
			}
		}

		l.tracer.EndSpan(span)

		// Step 7: stop-reason decision.
		if finished {
			return &Result{Text: lastText, StopReason: StopDone, Usage: usage}, nil
		}
		if len(resp.ToolCalls) == 0 {
			hasPending := len(l.drainPeek()) > 0
			if !hasPending {
				return &Result{Text: lastText, StopReason: StopNoToolCalls, Usage: usage}, nil
			}
		}
	}
	return &Result{Text: lastText, StopReason: StopMaxTurns, Usage: usage}, nil
}

// drainPeek reports whether injections are queued without consuming them,
// used only for the "no tool calls and no pending injections" stop check.
func (l *Loop) drainPeek() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inject
}

func (l *Loop) callProvider(ctx context.Context, req provider.Request) (*provider.Response, error) {
	ctx, span := l.tracer.StartSpan(ctx, observability.SpanProviderRequest)
	defer l.tracer.EndSpan(span)

	resp, err := l.prov.Chat(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, nerr.Wrap(nerr.KindProviderError, err, "provider chat")
	}
	return resp, nil
}

func (l *Loop) logCacheHitRate(u provider.Usage) {
	total := u.CacheReadTokens + u.CacheCreationTokens + u.InputTokens
	if total == 0 {
		return
	}
	ratio := float64(u.CacheReadTokens) / float64(total)
	l.logger.Debug("turn cache hit ratio", zap.Float64("ratio", ratio))
	l.tracer.RecordMetric("nuum_turn_cache_hit_ratio", ratio, nil)
}

func formatToolCall(tc provider.ToolCall) string {
	var b strings.Builder
	b.WriteString(tc.Name)
	b.WriteString("(")
	first := true
	for k, v := range tc.Input {
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(toText(v))
	}
	b.WriteString(")")
	return b.String()
}

func toText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// toProviderTools converts the tool registry's catalog into the
// provider-neutral ToolSpec shape, marshalling each jsonschema.Schema into
// a plain map the Anthropic adapter can translate into its own wire format.
func toProviderTools(specs []tool.Spec) []provider.ToolSpec {
	out := make([]provider.ToolSpec, 0, len(specs))
	for _, s := range specs {
		var schemaMap map[string]any
		if s.Schema != nil {
			if raw, err := json.Marshal(s.Schema); err == nil {
				_ = json.Unmarshal(raw, &schemaMap)
			}
		}
		out = append(out, provider.ToolSpec{Name: s.Name, Description: s.Description, InputSchema: schemaMap})
	}
	return out
}
