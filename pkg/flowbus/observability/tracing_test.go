package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// setupTracingTest creates a span manager backed by an in-memory exporter.
func setupTracingTest(t *testing.T) (*tracetest.InMemoryExporter, SpanManager) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down tracer provider: %v", err)
		}
	})
	return exporter, NewSpanManagerFromProvider(tp)
}

func attrString(attrs []attribute.KeyValue, key string) string {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value.Emit()
		}
	}
	return ""
}

func TestStartEmitSpan(t *testing.T) {
	exporter, sm := setupTracingTest(t)

	ctx, span := sm.StartEmitSpan(context.Background(), "order.created", "high")
	require.NotNil(t, span)
	assert.True(t, span.SpanContext().IsValid())
	assert.Equal(t, span.SpanContext(), trace.SpanContextFromContext(ctx))
	sm.EndSpanWithError(span, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "flowbus.emit", spans[0].Name)
	assert.Equal(t, "order.created", attrString(spans[0].Attributes, "event.name"))
	assert.Equal(t, "high", attrString(spans[0].Attributes, "event.priority"))
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
}

func TestStartRunSpan_ChildOfEmit(t *testing.T) {
	exporter, sm := setupTracingTest(t)

	ctx, emitSpan := sm.StartEmitSpan(context.Background(), "evt", "low")
	_, runSpan := sm.StartRunSpan(ctx, "run-1", 2)
	sm.EndSpanWithError(runSpan, errors.New("subscriber failed"))
	sm.EndSpanWithError(emitSpan, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	run := spans[0]
	assert.Equal(t, "flowbus.run", run.Name)
	assert.Equal(t, "run-1", attrString(run.Attributes, "run.id"))
	assert.Equal(t, "2", attrString(run.Attributes, "run.batch"))
	assert.Equal(t, codes.Error, run.Status.Code)
	assert.Equal(t, "subscriber failed", run.Status.Description)
	assert.Equal(t, spans[1].SpanContext.SpanID(), run.Parent.SpanID())
}

func TestAddSpanEvent(t *testing.T) {
	exporter, sm := setupTracingTest(t)

	ctx, span := sm.StartEmitSpan(context.Background(), "evt", "high")
	sm.AddSpanEvent(ctx, "flowbus.emit.done", attribute.Int("runs", 1))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events, 1)
	assert.Equal(t, "flowbus.emit.done", spans[0].Events[0].Name)
}

func TestAddSpanEvent_NoSpan(t *testing.T) {
	assert.NotPanics(t, func() {
		AddSpanEvent(context.Background(), "nothing")
	})
}

func TestEndSpanWithError_NilSpan(t *testing.T) {
	assert.NotPanics(t, func() {
		EndSpanWithError(nil, errors.New("x"))
	})
}
