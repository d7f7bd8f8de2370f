package llm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-maestro/internal/ports"
)

// TracingMiddleware opens an "llm.chat" client span per round on the
// global tracer provider, which is a no-op until one is installed.
func TracingMiddleware(serviceName string) Middleware {
	return TracingMiddlewareWithTracer(serviceName, otel.Tracer("github.com/ahrav/go-maestro/llm"))
}

// TracingMiddlewareWithTracer is TracingMiddleware with an explicit tracer.
func TracingMiddlewareWithTracer(serviceName string, tracer trace.Tracer) Middleware {
	return func(next CoreLLM) CoreLLM {
		return intercept(next, func(ctx context.Context, req ports.ChatRequest) (*ports.ChatResponse, error) {
			ctx, span := tracer.Start(ctx, "llm.chat",
				trace.WithSpanKind(trace.SpanKindClient),
				trace.WithAttributes(
					attribute.String("service.name", serviceName),
					attribute.String("llm.model", next.GetModel()),
					attribute.Int("llm.messages", len(req.Messages)),
					attribute.Int("llm.tools", len(req.Tools)),
				),
			)
			defer span.End()

			resp, err := next.DoRequest(ctx, req)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, err
			}
			span.SetAttributes(
				attribute.Int("llm.tokens.input", resp.TokensIn),
				attribute.Int("llm.tokens.output", resp.TokensOut),
				attribute.Int("llm.tool_calls", len(resp.Message.ToolCalls)),
				attribute.String("llm.finish_reason", resp.FinishReason),
			)
			return resp, nil
		})
	}
}
