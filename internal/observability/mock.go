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

package observability

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MockTracer captures every span for inspection in tests.
type MockTracer struct {
	mu    sync.RWMutex
	spans []*Span
}

// NewMockTracer creates a tracer for use in unit tests.
func NewMockTracer() *MockTracer {
	return &MockTracer{spans: make([]*Span, 0)}
}

func (m *MockTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
	span := &Span{
		TraceID: uuid.New().String(),
		SpanID:  uuid.New().String(),
		Name:    name,
	}
	for _, opt := range opts {
		opt(span)
	}
	if parent := SpanFromContext(ctx); parent != nil {
		span.TraceID = parent.TraceID
		span.ParentID = parent.SpanID
	}
	return ContextWithSpan(ctx, span), span
}

func (m *MockTracer) EndSpan(span *Span) {
	if span == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spans = append(m.spans, span)
}

func (m *MockTracer) RecordMetric(name string, value float64, labels map[string]string) {}

func (m *MockTracer) Flush(ctx context.Context) error { return nil }

// Spans returns a snapshot of every span EndSpan has recorded so far.
func (m *MockTracer) Spans() []*Span {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Span, len(m.spans))
	copy(out, m.spans)
	return out
}

var _ Tracer = (*MockTracer)(nil)
