package application

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-maestro/infrastructure/tools"
	"github.com/ahrav/go-maestro/internal/ports"
)

const queryToolSchema = `{
	"type": "object",
	"properties": {"query": {"type": "string", "minLength": 1}},
	"required": ["query"]
}`

const draftToolSchema = `{
	"type": "object",
	"properties": {
		"recipient": {"type": "string"},
		"subject": {"type": "string"},
		"body": {"type": "string"}
	},
	"required": ["recipient", "subject", "body"]
}`

type queryArgs struct {
	Query string `json:"query"`
}

// echoTool returns {"tool": name, "query": query} and counts calls.
func echoTool(name string, calls *atomic.Int32) ports.Tool {
	return tools.New(name, name+" 도구", queryToolSchema,
		tools.Typed(func(_ context.Context, args queryArgs, _ ports.ToolInvocation) any {
			calls.Add(1)
			return map[string]any{"tool": name, "query": args.Query}
		}))
}

// echoToolFailing reports an upstream failure the way tool wrappers do.
func echoToolFailing(name string) ports.Tool {
	return tools.New(name, name+" 도구", queryToolSchema,
		func(_ context.Context, _ ports.ToolInvocation) (any, error) {
			return tools.ErrorResult(errors.New("upstream returned 503")), nil
		})
}

func draftTool(calls *atomic.Int32) ports.Tool {
	return tools.New("draft_mail", "메일 초안 작성", draftToolSchema,
		func(_ context.Context, _ ports.ToolInvocation) (any, error) {
			calls.Add(1)
			return map[string]any{"draft_id": "r-1", "message": "초안이 작성되었습니다."}, nil
		}, tools.Mutating())
}

func newRegistry(t *testing.T, ts ...ports.Tool) *tools.Registry {
	t.Helper()
	reg, err := tools.NewRegistry(ts...)
	require.NoError(t, err)
	return reg
}

// recordingMetrics implements ports.MetricsCollector in memory.
type recordingMetrics struct {
	mu       sync.Mutex
	counters map[string]float64
	gauges   map[string]float64
	latency  map[string]int
	hist     map[string][]float64
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		counters: make(map[string]float64),
		gauges:   make(map[string]float64),
		latency:  make(map[string]int),
		hist:     make(map[string][]float64),
	}
}

func metricKey(name string, labels map[string]string, keys ...string) string {
	k := name
	for _, l := range keys {
		k += "|" + l + "=" + labels[l]
	}
	return k
}

func (m *recordingMetrics) RecordLatency(op string, _ time.Duration, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency[op]++
}

func (m *recordingMetrics) RecordCounter(metric string, v float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[metric] += v
	for _, l := range []string{"status", "tool", "agent"} {
		if val, ok := labels[l]; ok {
			m.counters[metric+"|"+l+"="+val] += v
		}
	}
}

func (m *recordingMetrics) RecordGauge(metric string, v float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[metricKey(metric, labels, "mode", "level")] = v
}

func (m *recordingMetrics) RecordHistogram(metric string, v float64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hist[metric] = append(m.hist[metric], v)
}

func (m *recordingMetrics) counter(key string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[key]
}

func (m *recordingMetrics) gauge(key string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gauges[key]
}

var _ ports.MetricsCollector = (*recordingMetrics)(nil)
