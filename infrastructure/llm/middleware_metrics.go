package llm

import (
	"context"
	"errors"
	"maps"
	"strings"
	"time"

	"github.com/ahrav/go-maestro/internal/ports"
)

// MetricsMiddleware records latency, outcome, token and tool-call metrics
// for every chat round. A nil collector disables it.
func MetricsMiddleware(collector ports.MetricsCollector) Middleware {
	return func(next CoreLLM) CoreLLM {
		if collector == nil {
			return next
		}
		return intercept(next, func(ctx context.Context, req ports.ChatRequest) (*ports.ChatResponse, error) {
			start := time.Now()
			resp, err := next.DoRequest(ctx, req)

			model := next.GetModel()
			labels := map[string]string{
				"provider": providerFromModel(model),
				"model":    model,
				"status":   requestStatus(ctx, err),
			}
			collector.RecordHistogram("llm_latency_seconds", time.Since(start).Seconds(), labels)
			collector.RecordCounter("llm_requests_total", 1, labels)
			if err != nil {
				return nil, err
			}

			collector.RecordCounter("llm_tokens_total", float64(resp.TokensIn), withLabel(labels, "token_type", "input"))
			collector.RecordCounter("llm_tokens_total", float64(resp.TokensOut), withLabel(labels, "token_type", "output"))
			if n := len(resp.Message.ToolCalls); n > 0 {
				collector.RecordCounter("llm_tool_calls_total", float64(n), labels)
			}
			return resp, nil
		})
	}
}

func requestStatus(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

func withLabel(labels map[string]string, key, value string) map[string]string {
	out := maps.Clone(labels)
	out[key] = value
	return out
}

// providerFromModel infers the provider label from a model name.
func providerFromModel(model string) string {
	switch {
	case strings.Contains(model, "gpt"), strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return "openai"
	case strings.Contains(model, "claude"):
		return "anthropic"
	case strings.Contains(model, "gemini"):
		return "google"
	default:
		return "unknown"
	}
}
