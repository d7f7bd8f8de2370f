package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestTracingMiddleware_PassesThroughResponses(t *testing.T) {
	mock := NewMockCoreLLM()
	wrapped := TracingMiddlewareWithTracer("maestro", noop.NewTracerProvider().Tracer("test"))(mock)

	resp, err := wrapped.DoRequest(context.Background(), userRequest("x"))

	require.NoError(t, err)
	assert.Equal(t, "test response", resp.Message.Content)
	assert.Equal(t, 10, resp.TokensIn)
	assert.Equal(t, 20, resp.TokensOut)
}

func TestTracingMiddleware_PassesThroughErrors(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Error = ErrCircuitOpen
	wrapped := TracingMiddleware("maestro")(mock)

	resp, err := wrapped.DoRequest(context.Background(), userRequest("x"))

	assert.Nil(t, resp)
	assert.True(t, errors.Is(err, ErrCircuitOpen))
}

func TestTracingMiddleware_PropagatesSpanContext(t *testing.T) {
	// Given a parent span context on the request context
	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1},
		SpanID:     trace.SpanID{2},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), parent)

	mock := NewMockCoreLLM()
	wrapped := TracingMiddlewareWithTracer("maestro", noop.NewTracerProvider().Tracer("test"))(mock)

	// When the request runs
	_, err := wrapped.DoRequest(ctx, userRequest("x"))

	// Then the provider sees the same trace
	require.NoError(t, err)
	got := trace.SpanContextFromContext(mock.LastContext)
	assert.Equal(t, parent.TraceID(), got.TraceID())
}
