package llm

import (
	"context"
	"sync"
	"time"

	"github.com/ahrav/go-maestro/internal/domain"
	"github.com/ahrav/go-maestro/internal/ports"
)

// MockCoreLLM is a configurable CoreLLM for middleware and client tests.
// Script queues responses to return in order; once it is drained, Response
// is returned for every further call.
type MockCoreLLM struct {
	mu sync.Mutex

	Script        []ports.ChatResponse
	Response      ports.ChatResponse
	Error         error
	Model         string
	ResponseDelay time.Duration

	// FailUntilAttempt makes the first N calls fail with Error, or a
	// generic error when Error is nil.
	FailUntilAttempt int

	CallCount      int
	Requests       []ports.ChatRequest
	LastContext    context.Context
	CallTimestamps []time.Time
}

// NewMockCoreLLM creates a mock that answers "test response" with 10 input
// and 20 output tokens.
func NewMockCoreLLM() *MockCoreLLM {
	return &MockCoreLLM{
		Response: ports.ChatResponse{
			Message:   domain.AssistantMessage("test response"),
			TokensIn:  10,
			TokensOut: 20,
		},
		Model: "test-model",
	}
}

// DoRequest implements CoreLLM.
func (m *MockCoreLLM) DoRequest(ctx context.Context, req ports.ChatRequest) (*ports.ChatResponse, error) {
	m.mu.Lock()
	m.CallCount++
	attempt := m.CallCount
	m.Requests = append(m.Requests, req)
	m.LastContext = ctx
	m.CallTimestamps = append(m.CallTimestamps, time.Now())
	delay := m.ResponseDelay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailUntilAttempt > 0 && attempt <= m.FailUntilAttempt {
		if m.Error != nil {
			return nil, m.Error
		}
		return nil, &testError{message: "simulated failure"}
	}

	if m.Error != nil {
		return nil, m.Error
	}

	resp := m.Response
	if len(m.Script) > 0 {
		resp = m.Script[0]
		m.Script = m.Script[1:]
	}
	return &resp, nil
}

// GetModel returns the configured model name.
func (m *MockCoreLLM) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Model
}

// SetModel updates the model name.
func (m *MockCoreLLM) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Model = model
}

// GetCallCount returns the number of times DoRequest was called.
func (m *MockCoreLLM) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// LastRequest returns the most recent request, or the zero value.
func (m *MockCoreLLM) LastRequest() ports.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return ports.ChatRequest{}
	}
	return m.Requests[len(m.Requests)-1]
}

// GetTimeBetweenCalls returns the duration between two recorded calls, or
// nil when either index is out of range.
func (m *MockCoreLLM) GetTimeBetweenCalls(call1, call2 int) *time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if call1 < 0 || call2 < 0 || call1 >= len(m.CallTimestamps) || call2 >= len(m.CallTimestamps) {
		return nil
	}

	duration := m.CallTimestamps[call2].Sub(m.CallTimestamps[call1])
	return &duration
}

type testError struct {
	message string
}

func (e *testError) Error() string {
	return e.message
}
