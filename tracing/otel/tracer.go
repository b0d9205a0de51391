// Package otel provides OpenTelemetry tracing for ledger query operations.
package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry tracer with query-oriented helpers.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer registered under the global provider.
// The serviceName is used to identify this service in traces.
func NewTracer(serviceName string) *Tracer {
	return &Tracer{tracer: otel.Tracer(serviceName)}
}

// NewTracerWithProvider creates a tracer using a specific TracerProvider.
// This is useful for testing or when using a custom provider configuration.
func NewTracerWithProvider(serviceName string, provider trace.TracerProvider) *Tracer {
	return &Tracer{tracer: provider.Tracer(serviceName)}
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	ctx, span := t.tracer.Start(ctx, name)
	return ctx, &Span{span: span}
}

// StartQuery starts a span for a ledger query against a contract.
func (t *Tracer) StartQuery(ctx context.Context, op, contract string) (context.Context, *Span) {
	ctx, span := t.tracer.Start(ctx, "ledger."+op,
		trace.WithAttributes(
			attribute.String("ledger.op", op),
			attribute.String("ledger.contract", contract),
		))
	return ctx, &Span{span: span}
}

// Span wraps an OpenTelemetry span.
type Span struct {
	span trace.Span
}

// End completes the span.
func (s *Span) End() {
	s.span.End()
}

// SetAttribute sets a key-value attribute on the span.
func (s *Span) SetAttribute(key string, value any) {
	s.span.SetAttributes(convertAttribute(key, value))
}

// AddEvent adds an event to the span.
func (s *Span) AddEvent(name string) {
	s.span.AddEvent(name)
}

// RecordError records an error on the span and marks it failed.
func (s *Span) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// OK marks the span successful.
func (s *Span) OK() {
	s.span.SetStatus(codes.Ok, "")
}

// IsRecording returns true if the span is recording events.
func (s *Span) IsRecording() bool {
	return s.span.IsRecording()
}

// convertAttribute converts a key-value pair to an OTel attribute.
func convertAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case uint64:
		return attribute.Int64(key, int64(v))
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case []byte:
		return attribute.String(key, string(v))
	default:
		if s, ok := v.(interface{ String() string }); ok {
			return attribute.String(key, s.String())
		}
		return attribute.String(key, "")
	}
}
