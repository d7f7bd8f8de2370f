package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ahrav/go-maestro/internal/ports"
)

// ErrCircuitOpen is returned without contacting the provider while the
// breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerState is closed, open or half-open.
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	// StateHalfOpen lets the next request through as a probe once the
	// cooldown has passed; its outcome closes or reopens the circuit.
	StateHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return "unknown"
}

// CircuitBreakerMetrics observes breaker outcomes.
type CircuitBreakerMetrics interface {
	RecordState(state CircuitBreakerState)
	RecordTrip()
	RecordSuccess()
	RecordFailure()
}

// CircuitBreaker opens after maxFailures consecutive failures and rejects
// requests until cooldown has elapsed since the last one.
type CircuitBreaker struct {
	maxFailures int
	cooldown    time.Duration

	mu          sync.Mutex
	state       CircuitBreakerState
	failures    int
	lastFailure time.Time
}

func NewCircuitBreaker(maxFailures int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{maxFailures: maxFailures, cooldown: cooldown}
}

// Call runs fn unless the circuit is open. The lock is released while fn
// runs, so concurrent agents do not queue behind a slow round.
func (cb *CircuitBreaker) Call(fn func() error) error {
	cb.mu.Lock()
	if cb.state == StateOpen {
		if time.Since(cb.lastFailure) < cb.cooldown {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch {
	case err == nil:
		cb.failures = 0
		cb.state = StateClosed
	case errors.Is(err, context.Canceled):
		// The caller gave up; the provider is not at fault.
	default:
		cb.failures++
		cb.lastFailure = time.Now()
		if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
			cb.state = StateOpen
		}
	}
	return err
}

func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// CircuitBreakerMiddleware wraps clients in one shared breaker.
func CircuitBreakerMiddleware(maxFailures int, cooldown time.Duration) Middleware {
	return CircuitBreakerMiddlewareWithMetrics(maxFailures, cooldown, nil)
}

// CircuitBreakerMiddlewareWithMetrics is CircuitBreakerMiddleware that
// reports every outcome and the resulting state to metrics.
func CircuitBreakerMiddlewareWithMetrics(maxFailures int, cooldown time.Duration, metrics CircuitBreakerMetrics) Middleware {
	cb := NewCircuitBreaker(maxFailures, cooldown)
	return func(next CoreLLM) CoreLLM {
		return intercept(next, func(ctx context.Context, req ports.ChatRequest) (*ports.ChatResponse, error) {
			var resp *ports.ChatResponse
			err := cb.Call(func() (err error) {
				resp, err = next.DoRequest(ctx, req)
				return err
			})
			if metrics != nil {
				switch {
				case err == nil:
					metrics.RecordSuccess()
				case errors.Is(err, ErrCircuitOpen):
					metrics.RecordTrip()
				default:
					metrics.RecordFailure()
				}
				metrics.RecordState(cb.GetState())
			}
			if err != nil {
				return nil, err
			}
			return resp, nil
		})
	}
}

// collectorBreakerMetrics reports breaker outcomes as generic counters and
// gauges on a ports.MetricsCollector.
type collectorBreakerMetrics struct {
	collector ports.MetricsCollector
	name      string
}

// CollectorBreakerMetrics adapts collector to CircuitBreakerMetrics. name
// identifies the breaker in the "target" label.
func CollectorBreakerMetrics(collector ports.MetricsCollector, name string) CircuitBreakerMetrics {
	return &collectorBreakerMetrics{collector: collector, name: name}
}

func (m *collectorBreakerMetrics) event(status string) {
	m.collector.RecordCounter("llm_circuit_events_total", 1, map[string]string{"model": m.name, "status": status})
}

func (m *collectorBreakerMetrics) RecordTrip()    { m.event("rejected") }
func (m *collectorBreakerMetrics) RecordSuccess() { m.event("success") }
func (m *collectorBreakerMetrics) RecordFailure() { m.event("failure") }

func (m *collectorBreakerMetrics) RecordState(state CircuitBreakerState) {
	m.collector.RecordGauge("llm_circuit_state", float64(state), map[string]string{"model": m.name})
}
