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

// Package wire implements the embedding host's newline-delimited JSON
// protocol over stdin/stdout: inbound user and control messages in, system,
// assistant, and result messages out, one JSON object per line.
package wire

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sanctumlabs/nuum/internal/app"
	"github.com/sanctumlabs/nuum/internal/provider"
	"github.com/sanctumlabs/nuum/internal/turn"
)

// Inbound is one line read from the host.
type Inbound struct {
	Type    string          `json:"type"` // "user" | "control"
	Message *InboundMessage `json:"message,omitempty"`
	Action  string          `json:"action,omitempty"` // "interrupt" | "status" | "heartbeat"
}

// InboundMessage is the chat payload of a "user" inbound message.
type InboundMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// System is an outbound `{type:"system", subtype:...}` line. Extra carries
// subtype-specific fields (tasks list, error text, queued count, and so on)
// so one struct serves every subtype spec.md §6 names.
type System struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	Extra   any    `json:"extra,omitempty"`
}

// Assistant is an outbound `{type:"assistant", ...}` line.
type Assistant struct {
	Type      string         `json:"type"`
	Message   AssistantBody  `json:"message"`
	SessionID string         `json:"session_id"`
}

// AssistantBody is the assistant message payload.
type AssistantBody struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Result is the outbound `{type:"result", ...}` line sent once per turn.
type Result struct {
	Type       string          `json:"type"`
	Subtype    string          `json:"subtype"` // "success" | "error" | "cancelled"
	DurationMs int64           `json:"duration_ms"`
	NumTurns   int             `json:"num_turns"`
	SessionID  string          `json:"session_id"`
	Usage      provider.Usage  `json:"usage"`
	Error      string          `json:"error,omitempty"`
}

// Host runs the stdio host protocol against one open App.
type Host struct {
	app    *app.App
	in     *bufio.Reader
	out    io.Writer
	outMu  sync.Mutex
	logger *zap.Logger

	mu         sync.Mutex
	cancelTurn context.CancelFunc
}

// NewHost builds a Host reading lines from r and writing lines to w.
func NewHost(a *app.App, r io.Reader, w io.Writer, logger *zap.Logger) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Host{app: a, in: bufio.NewReader(r), out: w, logger: logger}
}

// Serve reads inbound lines until EOF or ctx is cancelled, dispatching each
// to its handler. It blocks until the stream closes.
func (h *Host) Serve(ctx context.Context) error {
	h.writeSystem("init", map[string]any{"session_id": h.app.SessionID})

	for {
		line, err := h.readLine(ctx)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if len(line) == 0 {
			continue
		}

		var msg Inbound
		if err := json.Unmarshal(line, &msg); err != nil {
			h.writeSystem("error", map[string]any{"message": fmt.Sprintf("malformed inbound line: %v", err)})
			continue
		}

		switch msg.Type {
		case "user":
			h.handleUser(ctx, msg.Message)
		case "control":
			h.handleControl(ctx, msg.Action)
		default:
			h.writeSystem("error", map[string]any{"message": fmt.Sprintf("unknown inbound type %q", msg.Type)})
		}
	}
}

func (h *Host) readLine(ctx context.Context) ([]byte, error) {
	type readResult struct {
		data []byte
		err  error
	}
	resultCh := make(chan readResult, 1)
	go func() {
		data, err := h.in.ReadBytes('\n')
		if len(data) > 0 && data[len(data)-1] == '\n' {
			data = data[:len(data)-1]
		}
		resultCh <- readResult{data, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-resultCh:
		return r.data, r.err
	}
}

func (h *Host) handleUser(ctx context.Context, msg *InboundMessage) {
	if msg == nil {
		h.writeSystem("error", map[string]any{"message": "user message missing body"})
		return
	}

	turnCtx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.cancelTurn = cancel
	h.mu.Unlock()
	defer cancel()

	h.writeSystem("turn_accepted", nil)
	start := time.Now()

	res, err := h.app.RunTurn(turnCtx, msg.Content)
	duration := time.Since(start).Milliseconds()

	if err != nil {
		h.writeResult(Result{
			Type: "result", Subtype: "error", DurationMs: duration,
			SessionID: h.app.SessionID, Error: err.Error(),
		})
		return
	}

	h.writeAssistant(res.Text)

	subtype := "success"
	if res.StopReason == turn.StopCancelled {
		subtype = "cancelled"
	}
	h.writeResult(Result{
		Type: "result", Subtype: subtype, DurationMs: duration,
		NumTurns: 1, SessionID: h.app.SessionID, Usage: res.Usage,
	})
}

func (h *Host) handleControl(ctx context.Context, action string) {
	switch action {
	case "interrupt":
		h.mu.Lock()
		cancel := h.cancelTurn
		h.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		h.writeSystem("queued", nil)
	case "status":
		tasks, _ := h.app.Scheduler.List(ctx, "")
		h.writeSystem("status_response", map[string]any{"tasks": tasks})
	case "heartbeat":
		h.writeSystem("heartbeat_ack", nil)
	default:
		h.writeSystem("error", map[string]any{"message": fmt.Sprintf("unknown control action %q", action)})
	}
}

func (h *Host) writeSystem(subtype string, extra any) {
	h.writeLine(System{Type: "system", Subtype: subtype, Extra: extra})
}

func (h *Host) writeAssistant(text string) {
	h.writeLine(Assistant{
		Type:      "assistant",
		Message:   AssistantBody{Role: "assistant", Content: text},
		SessionID: h.app.SessionID,
	})
}

func (h *Host) writeResult(r Result) {
	h.writeLine(r)
}

func (h *Host) writeLine(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Warn("wire marshal failed", zap.Error(err))
		return
	}
	h.outMu.Lock()
	defer h.outMu.Unlock()
	h.out.Write(data)
	h.out.Write([]byte("\n"))
}
