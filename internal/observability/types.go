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

// Package observability wraps OpenTelemetry behind a small Tracer interface
// so every component instruments operations the same way regardless of
// whether a real exporter is wired up.
//
// Every store transaction, turn-loop iteration, and distillation run starts
// a span: store.tx, turn.iterate, distill.level, etc. A NoOpTracer is the
// default so library embedding never pays exporter cost unless the host
// configures one.
package observability

import "context"

// StatusCode represents the final status of a span.
type StatusCode int

const (
	StatusUnset StatusCode = iota
	StatusOK
	StatusError
)

func (s StatusCode) String() string {
	switch s {
	case StatusUnset:
		return "unset"
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Standard span names, used instead of hardcoding strings at call sites.
const (
	SpanStoreTx         = "store.tx"
	SpanTurnIterate     = "turn.iterate"
	SpanDistillLevel    = "distill.level"
	SpanToolExecute     = "tool.execute"
	SpanProviderRequest = "provider.request"
	SpanPluginCall      = "plugin.call"
	SpanAssemblerBuild  = "assembler.build_view"
	SpanSchedulerRun    = "scheduler.run_task"
)

const (
	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// contextKey is unexported so callers never collide on it.
type contextKey string

const spanContextKey contextKey = "nuum.span"

// Span carries identity, attributes, and status for one unit of work.
// Real implementations (OTelTracer) back it with an otel trace.Span; the
// NoOpTracer and MockTracer populate it directly.
type Span struct {
	TraceID  string
	SpanID   string
	ParentID string
	Name     string

	Attributes map[string]any
	Status     struct {
		Code    StatusCode
		Message string
	}

	otelEnd func() // set by the otel-backed tracer; nil elsewhere
}

// SetAttribute sets a key-value attribute on the span.
func (s *Span) SetAttribute(key string, value any) {
	if s == nil {
		return
	}
	if s.Attributes == nil {
		s.Attributes = make(map[string]any)
	}
	s.Attributes[key] = value
}

// RecordError marks the span as failed and attaches the error message.
func (s *Span) RecordError(err error) {
	if s == nil || err == nil {
		return
	}
	s.Status.Code = StatusError
	s.Status.Message = err.Error()
	s.SetAttribute(AttrErrorMessage, err.Error())
	s.SetAttribute(AttrErrorType, "error")
}

// SpanOption configures a span at StartSpan time.
type SpanOption func(*Span)

// WithAttribute returns a SpanOption that sets an attribute.
func WithAttribute(key string, value any) SpanOption {
	return func(s *Span) { s.SetAttribute(key, value) }
}

// SpanFromContext retrieves the current span from ctx, if any.
func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(spanContextKey).(*Span)
	return span
}

// ContextWithSpan returns a new context carrying span.
func ContextWithSpan(ctx context.Context, span *Span) context.Context {
	return context.WithValue(ctx, spanContextKey, span)
}

// Tracer instruments engine operations. Implementations export spans to a
// backend (otel) or discard them (NoOpTracer, MockTracer for tests).
//
// Thread-safe: every method may be called concurrently.
type Tracer interface {
	// StartSpan opens a span named name, linking it to any parent span
	// already present in ctx.
	StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span)

	// EndSpan finalizes span and exports it. Always called via defer.
	EndSpan(span *Span)

	// RecordMetric records a point-in-time value with labels.
	RecordMetric(name string, value float64, labels map[string]string)

	// Flush blocks until any buffered spans/metrics are exported.
	Flush(ctx context.Context) error
}
