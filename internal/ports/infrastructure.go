package ports

import (
	"context"
	"time"
)

// ChatModel is one configured provider model. Every agent, orchestrator
// and specialist alike, talks to its model through this interface.
type ChatModel interface {
	// Chat runs one round: the model answers either with text or with tool
	// calls drawn from req.Tools.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	EstimateTokens(text string) (int, error)

	// GetModel returns the provider's model name, for logs and metrics.
	GetModel() string
}

// CacheStore holds read-only tool results between turns.
type CacheStore interface {
	// Get reports whether key is present. A non-nil error means the store
	// itself failed, not that the key is missing.
	Get(ctx context.Context, key string) (any, bool, error)

	// Set stores value under key. Zero expiration keeps it indefinitely.
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// MetricsCollector receives named observations with free-form labels.
// Unknown metric names must be accepted.
type MetricsCollector interface {
	RecordLatency(operation string, duration time.Duration, labels map[string]string)
	RecordCounter(metric string, value float64, labels map[string]string)
	RecordGauge(metric string, value float64, labels map[string]string)
	RecordHistogram(metric string, value float64, labels map[string]string)
}
