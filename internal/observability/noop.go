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

	"github.com/google/uuid"
)

// NoOpTracer discards everything. It is the default tracer for library
// embedding so a host opts into tracing explicitly via NewOTelTracer.
type NoOpTracer struct{}

// NewNoOpTracer creates a no-op tracer.
func NewNoOpTracer() *NoOpTracer { return &NoOpTracer{} }

func (t *NoOpTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
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

func (t *NoOpTracer) EndSpan(span *Span)                                        {}
func (t *NoOpTracer) RecordMetric(name string, value float64, labels map[string]string) {}
func (t *NoOpTracer) Flush(ctx context.Context) error                            { return nil }

var _ Tracer = (*NoOpTracer)(nil)
