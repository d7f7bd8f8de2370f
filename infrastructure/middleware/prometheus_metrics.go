// Package middleware provides cross-cutting concerns for the orchestrator:
// Prometheus metrics, per-turn budget enforcement and its tracing.
package middleware

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ahrav/go-maestro/internal/ports"
)

const unknownLabel = "unknown"

// PrometheusMetrics implements ports.MetricsCollector on Prometheus. Known
// metric names map to dedicated vectors; anything else falls back to the
// generic operation vectors so no observation is dropped.
type PrometheusMetrics struct {
	gatherer prometheus.Gatherer

	llmRequests  *prometheus.CounterVec
	llmTokens    *prometheus.CounterVec
	llmToolCalls *prometheus.CounterVec
	llmLatency   *prometheus.HistogramVec

	agentTurns      *prometheus.CounterVec
	agentRounds     *prometheus.HistogramVec
	toolInvocations *prometheus.CounterVec

	evalCases    *prometheus.CounterVec
	evalAccuracy *prometheus.GaugeVec

	budgetTokensUsed *prometheus.CounterVec
	budgetCallsUsed  *prometheus.CounterVec
	budgetExceeded   *prometheus.CounterVec

	operationLatency *prometheus.HistogramVec
	operationCounter *prometheus.CounterVec
	systemGauges     *prometheus.GaugeVec
	observations     *prometheus.HistogramVec
}

// NewPrometheusMetrics registers every metric with reg. A nil reg selects
// the default Prometheus registry.
func NewPrometheusMetrics(reg *prometheus.Registry) *PrometheusMetrics {
	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		gatherer: gatherer,

		llmRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Chat rounds sent to model providers.",
			},
			[]string{"provider", "model", "status"},
		),
		llmTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Tokens reported by model providers.",
			},
			[]string{"provider", "model", "token_type"},
		),
		llmToolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tool_calls_total",
				Help: "Tool calls requested by models.",
			},
			[]string{"provider", "model"},
		),
		llmLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_latency_seconds",
				Help:    "Latency of one chat round.",
				Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
			},
			[]string{"provider", "model", "status"},
		),

		agentTurns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_turns_total",
				Help: "Agent turns by final status.",
			},
			[]string{"agent", "status"},
		),
		agentRounds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_rounds",
				Help:    "Model rounds used per agent turn.",
				Buckets: prometheus.LinearBuckets(1, 1, 10),
			},
			[]string{"agent"},
		),
		toolInvocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_invocations_total",
				Help: "Tool calls dispatched by agents.",
			},
			[]string{"agent", "tool", "status"},
		),

		evalCases: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eval_cases_total",
				Help: "Evaluation cases by outcome.",
			},
			[]string{"status"},
		),
		evalAccuracy: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "eval_accuracy",
				Help: "Accuracy of the last evaluation run.",
			},
			[]string{"mode", "level"},
		),

		budgetTokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "budget_tokens_used",
				Help: "Tokens consumed by budgeted agent turns.",
			},
			[]string{"agent", "budget_limit"},
		),
		budgetCallsUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "budget_calls_used",
				Help: "Model calls made by budgeted agent turns.",
			},
			[]string{"agent", "budget_limit"},
		),
		budgetExceeded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "budget_exceeded_total",
				Help: "Agent turns that broke their budget.",
			},
			[]string{"agent", "limit_type"},
		),

		operationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "maestro_operation_duration_seconds",
				Help:    "Duration of agent, tool, budget and evaluation operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "target"},
		),
		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maestro_operations_total",
				Help: "Counters without a dedicated metric.",
			},
			[]string{"metric", "target"},
		),
		systemGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "maestro_state",
				Help: "Gauges without a dedicated metric.",
			},
			[]string{"metric", "target"},
		),
		observations: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "maestro_observations",
				Help:    "Histogram observations without a dedicated metric.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"metric", "target"},
		),
	}
}

// Handler serves the registered metrics in the Prometheus exposition
// format.
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.gatherer, promhttp.HandlerOpts{})
}

// RecordLatency implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	pm.operationLatency.WithLabelValues(operation, target(labels)).Observe(duration.Seconds())
}

// RecordCounter implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case "llm_requests_total":
		pm.llmRequests.WithLabelValues(label(labels, "provider"), label(labels, "model"), label(labels, "status")).Add(value)
	case "llm_tokens_total":
		pm.llmTokens.WithLabelValues(label(labels, "provider"), label(labels, "model"), label(labels, "token_type")).Add(value)
	case "llm_tool_calls_total":
		pm.llmToolCalls.WithLabelValues(label(labels, "provider"), label(labels, "model")).Add(value)
	case "agent_turns_total":
		pm.agentTurns.WithLabelValues(label(labels, "agent"), label(labels, "status")).Add(value)
	case "tool_invocations_total":
		pm.toolInvocations.WithLabelValues(label(labels, "agent"), label(labels, "tool"), label(labels, "status")).Add(value)
	case "eval_cases_total":
		pm.evalCases.WithLabelValues(label(labels, "status")).Add(value)
	case "budget_tokens_used":
		pm.budgetTokensUsed.WithLabelValues(label(labels, "agent"), label(labels, "budget_limit")).Add(value)
	case "budget_calls_used":
		pm.budgetCallsUsed.WithLabelValues(label(labels, "agent"), label(labels, "budget_limit")).Add(value)
	case "budget_exceeded_total":
		pm.budgetExceeded.WithLabelValues(label(labels, "agent"), label(labels, "limit_type")).Add(value)
	default:
		pm.operationCounter.WithLabelValues(metric, target(labels)).Add(value)
	}
}

// RecordGauge implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	switch metric {
	case "eval_accuracy":
		pm.evalAccuracy.WithLabelValues(label(labels, "mode"), label(labels, "level")).Set(value)
	default:
		pm.systemGauges.WithLabelValues(metric, target(labels)).Set(value)
	}
}

// RecordHistogram implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	switch metric {
	case "llm_latency_seconds":
		pm.llmLatency.WithLabelValues(label(labels, "provider"), label(labels, "model"), label(labels, "status")).Observe(value)
	case "agent_rounds":
		pm.agentRounds.WithLabelValues(label(labels, "agent")).Observe(value)
	default:
		pm.observations.WithLabelValues(metric, target(labels)).Observe(value)
	}
}

func label(labels map[string]string, key string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return unknownLabel
}

// target picks the most specific subject of a generic observation.
func target(labels map[string]string) string {
	for _, key := range []string{"tool", "agent", "model", "status"} {
		if v := labels[key]; v != "" {
			return v
		}
	}
	return unknownLabel
}

var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
