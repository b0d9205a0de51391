package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordingTracer(t *testing.T) (*Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return NewTracerWithProvider("test", provider), recorder
}

func TestStartQueryRecordsAttributes(t *testing.T) {
	tracer, recorder := recordingTracer(t)

	ctx, span := tracer.StartQuery(context.Background(), "read_field", "0200aa")
	require.NotNil(t, ctx)
	span.SetAttribute("ledger.field", "accounts")
	span.OK()
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "ledger.read_field", spans[0].Name())

	attrs := spans[0].Attributes()
	keys := make(map[string]string, len(attrs))
	for _, a := range attrs {
		keys[string(a.Key)] = a.Value.Emit()
	}
	assert.Equal(t, "read_field", keys["ledger.op"])
	assert.Equal(t, "0200aa", keys["ledger.contract"])
	assert.Equal(t, "accounts", keys["ledger.field"])
}

func TestRecordErrorMarksSpanFailed(t *testing.T) {
	tracer, recorder := recordingTracer(t)

	_, span := tracer.StartSpan(context.Background(), "op")
	span.RecordError(errors.New("boom"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.NotEmpty(t, spans[0].Events())
}

func TestRecordErrorNilIsNoop(t *testing.T) {
	tracer, recorder := recordingTracer(t)

	_, span := tracer.StartSpan(context.Background(), "op")
	span.RecordError(nil)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Empty(t, spans[0].Events())
}
