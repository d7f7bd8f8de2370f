package testutils

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-maestro/internal/ports"
)

func TestMockChatModel_DefaultQueue(t *testing.T) {
	m := NewMockChatModel("mock").Script(Call("general_search", `{"query":"x"}`), Text("done"))
	ctx := context.Background()

	first, err := m.Chat(ctx, ports.ChatRequest{System: "anything"})
	require.NoError(t, err)
	require.Len(t, first.Message.ToolCalls, 1)
	assert.Equal(t, "call_1", first.Message.ToolCalls[0].ID)
	assert.Equal(t, "general_search", first.Message.ToolCalls[0].Name)
	assert.Equal(t, "tool_calls", first.FinishReason)

	second, err := m.Chat(ctx, ports.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "done", second.Message.Content)
	assert.Equal(t, "stop", second.FinishReason)
	assert.Equal(t, 15, second.TokensIn+second.TokensOut)

	_, err = m.Chat(ctx, ports.ChatRequest{})
	assert.ErrorIs(t, err, ErrScriptExhausted)
	assert.Len(t, m.Requests(), 3)
}

func TestMockChatModel_Routes(t *testing.T) {
	m := NewMockChatModel("mock").
		On("search_agent", Text("from search")).
		Script(Text("from default"))

	got, err := m.Chat(context.Background(), ports.ChatRequest{System: "You are search_agent."})
	require.NoError(t, err)
	assert.Equal(t, "from search", got.Message.Content)

	got, err = m.Chat(context.Background(), ports.ChatRequest{System: "You are the orchestrator."})
	require.NoError(t, err)
	assert.Equal(t, "from default", got.Message.Content)
	assert.Equal(t, 0, m.Remaining())
}

func TestMockChatModel_Errors(t *testing.T) {
	boom := errors.New("boom")
	m := NewMockChatModel("mock").Script(Fail(boom), Text("ok"))

	_, err := m.Chat(context.Background(), ports.ChatRequest{})
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Chat(ctx, ports.ChatRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, m.Remaining(), "a canceled request consumes nothing")
}

func TestMockChatModel_EstimateTokens(t *testing.T) {
	m := NewMockChatModel("mock")

	n, err := m.EstimateTokens("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, _ = m.EstimateTokens("ab")
	assert.Equal(t, 1, n)
	n, _ = m.EstimateTokens("abcdefgh")
	assert.Equal(t, 2, n)
	assert.Equal(t, "mock", m.GetModel())
}
