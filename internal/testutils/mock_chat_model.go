package testutils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ahrav/go-maestro/internal/domain"
	"github.com/ahrav/go-maestro/internal/ports"
)

// ErrScriptExhausted is returned when a MockChatModel has no reply left for
// a request.
var ErrScriptExhausted = errors.New("mock chat model: script exhausted")

// MockReply is one scripted model reply: plain text, tool calls, or an
// error.
type MockReply struct {
	// Text is the assistant content.
	Text string
	// Calls are the tool calls requested by the reply.
	Calls []domain.ToolCall
	// Err, when set, is returned instead of a response.
	Err error
	// TokensIn and TokensOut are reported as usage.
	TokensIn  int
	TokensOut int
}

// Text returns a terminal plain-text reply.
func Text(s string) MockReply {
	return MockReply{Text: s, TokensIn: 10, TokensOut: 5}
}

// Call returns a reply requesting one tool call with JSON arguments.
func Call(name, args string) MockReply {
	return MockReply{Calls: []domain.ToolCall{{Name: name, Arguments: json.RawMessage(args)}}, TokensIn: 10, TokensOut: 5}
}

// Fail returns a reply that makes Chat fail with err.
func Fail(err error) MockReply { return MockReply{Err: err} }

type route struct {
	pattern string
	replies []MockReply
}

// MockChatModel implements ports.ChatModel with deterministic scripted
// replies for agent tests.
// Replies are queued per route: a route matches when its pattern occurs in
// the request's system instruction, and routes are tried in the order they
// were added. Requests matching no route consume the default queue.
type MockChatModel struct {
	model string

	mu       sync.Mutex
	routes   []*route
	queue    []MockReply
	requests []ports.ChatRequest
	nextID   int
}

// NewMockChatModel creates an empty MockChatModel.
func NewMockChatModel(model string) *MockChatModel {
	return &MockChatModel{model: model}
}

// Script appends replies to the default queue.
func (m *MockChatModel) Script(replies ...MockReply) *MockChatModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, replies...)
	return m
}

// On appends replies to the queue used for requests whose system
// instruction contains pattern.
func (m *MockChatModel) On(pattern string, replies ...MockReply) *MockChatModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.routes {
		if r.pattern == pattern {
			r.replies = append(r.replies, replies...)
			return m
		}
	}
	m.routes = append(m.routes, &route{pattern: pattern, replies: replies})
	return m
}

// Chat implements ports.ChatModel by popping the next reply for req.
func (m *MockChatModel) Chat(ctx context.Context, req ports.ChatRequest) (*ports.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	queue := &m.queue
	for _, r := range m.routes {
		if strings.Contains(req.System, r.pattern) {
			queue = &r.replies
			break
		}
	}
	if len(*queue) == 0 {
		return nil, fmt.Errorf("%w (request %d)", ErrScriptExhausted, len(m.requests))
	}
	reply := (*queue)[0]
	*queue = (*queue)[1:]

	if reply.Err != nil {
		return nil, reply.Err
	}

	msg := domain.AssistantMessage(reply.Text)
	for _, c := range reply.Calls {
		if c.ID == "" {
			m.nextID++
			c.ID = fmt.Sprintf("call_%d", m.nextID)
		}
		msg.ToolCalls = append(msg.ToolCalls, c)
	}
	finish := "stop"
	if len(msg.ToolCalls) > 0 {
		finish = "tool_calls"
	}
	return &ports.ChatResponse{
		Message:      msg,
		TokensIn:     reply.TokensIn,
		TokensOut:    reply.TokensOut,
		FinishReason: finish,
	}, nil
}

// EstimateTokens approximates four characters per token.
func (m *MockChatModel) EstimateTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return max(len(text)/4, 1), nil
}

// GetModel returns the mock model identifier.
func (m *MockChatModel) GetModel() string { return m.model }

// Requests returns a copy of every request received so far.
func (m *MockChatModel) Requests() []ports.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.ChatRequest(nil), m.requests...)
}

// Remaining reports how many scripted replies have not been consumed.
func (m *MockChatModel) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.queue)
	for _, r := range m.routes {
		n += len(r.replies)
	}
	return n
}

var _ ports.ChatModel = (*MockChatModel)(nil)
