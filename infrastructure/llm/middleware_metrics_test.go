package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-maestro/internal/domain"
	"github.com/ahrav/go-maestro/internal/ports"
)

func TestMetricsMiddleware_RecordsSuccessfulRequests(t *testing.T) {
	// Given a metrics-wrapped OpenAI model
	collector := newMockMetricsCollector()
	mock := NewMockCoreLLM()
	mock.Model = "gpt-4.1-mini"
	wrapped := MetricsMiddleware(collector)(mock)

	// When a request succeeds
	_, err := wrapped.DoRequest(context.Background(), userRequest("x"))
	require.NoError(t, err)

	// Then requests and both token directions are counted
	assert.Equal(t, 1.0, collector.counters["llm_requests_total:openai"])
	assert.Equal(t, 30.0, collector.counters["llm_tokens_total:openai"], "input plus output tokens")
	assert.Contains(t, collector.histograms, "llm_latency_seconds:openai")
	assert.Equal(t, "success", collector.labels["llm_requests_total"][0]["status"])
}

func TestMetricsMiddleware_CountsToolCalls(t *testing.T) {
	collector := newMockMetricsCollector()
	mock := NewMockCoreLLM()
	mock.Model = "claude-3-5-haiku-latest"
	mock.Response = ports.ChatResponse{Message: domain.Message{
		Role: domain.RoleAssistant,
		ToolCalls: []domain.ToolCall{
			{ID: "1", Name: "search_agent"},
			{ID: "2", Name: "mail_agent"},
		},
	}}
	wrapped := MetricsMiddleware(collector)(mock)

	_, err := wrapped.DoRequest(context.Background(), userRequest("x"))

	require.NoError(t, err)
	assert.Equal(t, 2.0, collector.counters["llm_tool_calls_total:anthropic"])
}

func TestMetricsMiddleware_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus string
	}{
		{"generic error", errors.New("boom"), "error"},
		{"circuit open", ErrCircuitOpen, "circuit_open"},
		{"deadline", context.DeadlineExceeded, "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector := newMockMetricsCollector()
			mock := NewMockCoreLLM()
			mock.Error = tt.err
			wrapped := MetricsMiddleware(collector)(mock)

			_, err := wrapped.DoRequest(context.Background(), userRequest("x"))

			require.Error(t, err)
			assert.Equal(t, tt.wantStatus, collector.labels["llm_requests_total"][0]["status"])
			assert.NotContains(t, collector.labels, "llm_tokens_total", "failed requests carry no tokens")
		})
	}
}

func TestMetricsMiddleware_NilCollector(t *testing.T) {
	wrapped := MetricsMiddleware(nil)(NewMockCoreLLM())

	resp, err := wrapped.DoRequest(context.Background(), userRequest("x"))

	require.NoError(t, err)
	assert.Equal(t, "test response", resp.Message.Content)
}

func TestProviderFromModel(t *testing.T) {
	tests := map[string]string{
		"gpt-4.1":                  "openai",
		"o4-mini":                  "openai",
		"claude-sonnet-4-20250514": "anthropic",
		"gemini-2.5-flash":         "google",
		"llama-3":                  "unknown",
	}
	for model, want := range tests {
		assert.Equal(t, want, providerFromModel(model), model)
	}
}

func TestMetricsMiddleware_RecordsLatency(t *testing.T) {
	collector := newMockMetricsCollector()
	mock := NewMockCoreLLM()
	mock.Model = "gpt-4.1"
	mock.ResponseDelay = 20 * time.Millisecond
	wrapped := MetricsMiddleware(collector)(mock)

	_, err := wrapped.DoRequest(context.Background(), userRequest("x"))

	require.NoError(t, err)
	assert.GreaterOrEqual(t, collector.histograms["llm_latency_seconds:openai"], 0.02)
}
