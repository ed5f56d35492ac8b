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
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// OTelTracer backs Tracer with a real go.opentelemetry.io/otel
// TracerProvider. Construct one with NewOTelTracer once per process and
// thread it through the same way as the logger; there is no global
// TracerProvider registration.
type OTelTracer struct {
	tracer   oteltrace.Tracer
	provider *sdktrace.TracerProvider
}

// NewOTelTracer wraps an already-configured *sdktrace.TracerProvider (the
// caller owns exporter/sampler setup) and names the tracer instrumentationName.
func NewOTelTracer(provider *sdktrace.TracerProvider, instrumentationName string) *OTelTracer {
	return &OTelTracer{
		tracer:   provider.Tracer(instrumentationName),
		provider: provider,
	}
}

func (t *OTelTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
	ctx, otelSpan := t.tracer.Start(ctx, name)
	sc := otelSpan.SpanContext()

	span := &Span{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
		Name:    name,
	}
	if parent := SpanFromContext(ctx); parent != nil && parent.SpanID != span.SpanID {
		span.ParentID = parent.SpanID
	}
	for _, opt := range opts {
		opt(span)
	}
	for k, v := range span.Attributes {
		otelSpan.SetAttributes(toOtelAttr(k, v))
	}

	// otelEnd captures the live otel span so EndSpan can finalize it without
	// widening Span with an otel-typed field every other Tracer would carry
	// unused.
	span.otelEnd = func() {
		for k, v := range span.Attributes {
			otelSpan.SetAttributes(toOtelAttr(k, v))
		}
		switch span.Status.Code {
		case StatusError:
			otelSpan.SetStatus(codes.Error, span.Status.Message)
		case StatusOK:
			otelSpan.SetStatus(codes.Ok, span.Status.Message)
		}
		otelSpan.End()
	}

	return ContextWithSpan(ctx, span), span
}

func (t *OTelTracer) EndSpan(span *Span) {
	if span == nil || span.otelEnd == nil {
		return
	}
	span.otelEnd()
}

func (t *OTelTracer) RecordMetric(name string, value float64, labels map[string]string) {
	// Metric export goes through the prometheus registry handed to
	// internal/scheduler; OTelTracer only carries trace spans and discards
	// values recorded here.
}

func (t *OTelTracer) Flush(ctx context.Context) error {
	return t.provider.ForceFlush(ctx)
}

func toOtelAttr(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
