package telemetry

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

func newRecordingSpan(t *testing.T) (trace.Span, *tracetest.SpanRecorder) {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})

	_, span := provider.Tracer("test").Start(context.Background(), "op")

	return span, recorder
}

func TestHandleSpanError(t *testing.T) {
	t.Parallel()

	t.Run("records error and sets status", func(t *testing.T) {
		t.Parallel()

		span, recorder := newRecordingSpan(t)
		HandleSpanError(span, "query failed", errors.New("boom"))
		span.End()

		spans := recorder.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status().Code)
		assert.Equal(t, "query failed: boom", spans[0].Status().Description)
		require.Len(t, spans[0].Events(), 1)
		assert.Equal(t, "exception", spans[0].Events()[0].Name)
	})

	t.Run("nil error leaves span untouched", func(t *testing.T) {
		t.Parallel()

		span, recorder := newRecordingSpan(t)
		HandleSpanError(span, "query failed", nil)
		span.End()

		spans := recorder.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Unset, spans[0].Status().Code)
		assert.Empty(t, spans[0].Events())
	})

	t.Run("nil span does not panic", func(t *testing.T) {
		t.Parallel()

		assert.NotPanics(t, func() {
			HandleSpanError(nil, "msg", errors.New("boom"))
		})
	})
}

func TestAddSpanEvent(t *testing.T) {
	t.Parallel()

	span, recorder := newRecordingSpan(t)
	AddSpanEvent(span, "cache.hit", attribute.String("key", "abc"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "cache.hit", spans[0].Events()[0].Name)
}

func TestSetSpanAttributeFromStruct(t *testing.T) {
	t.Parallel()

	t.Run("serializes value as JSON attribute", func(t *testing.T) {
		t.Parallel()

		span, recorder := newRecordingSpan(t)

		err := SetSpanAttributeFromStruct(span, "app.request.payload", map[string]any{"id": 7})
		require.NoError(t, err)
		span.End()

		spans := recorder.Ended()
		require.Len(t, spans, 1)

		var found bool

		for _, attr := range spans[0].Attributes() {
			if string(attr.Key) == "app.request.payload" {
				found = true

				assert.JSONEq(t, `{"id":7}`, attr.Value.AsString())
			}
		}

		assert.True(t, found)
	})

	t.Run("unmarshalable value returns error", func(t *testing.T) {
		t.Parallel()

		span, _ := newRecordingSpan(t)
		defer span.End()

		err := SetSpanAttributeFromStruct(span, "k", func() {})
		require.Error(t, err)
	})
}
