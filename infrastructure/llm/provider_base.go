package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ahrav/go-maestro/internal/domain"
	"github.com/ahrav/go-maestro/internal/ports"
)

// DefaultMaxTokens is used when a ChatRequest leaves MaxTokens unset.
// Anthropic requires an explicit value on every request.
const DefaultMaxTokens = 1024

// BaseProvider provides common, thread-safe functionality for all LLM providers,
// primarily for managing the model name.
type BaseProvider struct {
	mu    sync.RWMutex
	model string
}

// GetModel returns the name of the model currently configured for the provider.
func (b *BaseProvider) GetModel() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

// SetModel updates the model name for the provider.
func (b *BaseProvider) SetModel(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.model = model
}

// RequestOptions is the normalized view of a ChatRequest's sampling settings.
type RequestOptions struct {
	MaxTokens int
	Model     string

	// Temperature is nil when the provider default should be used.
	Temperature *float64
}

// resolveOptions applies defaults and validation to the sampling settings
// of req. Out-of-range temperatures are dropped rather than clamped so a
// misconfigured agent falls back to provider behavior.
func resolveOptions(req ports.ChatRequest, model string) RequestOptions {
	opts := RequestOptions{MaxTokens: DefaultMaxTokens, Model: model}
	if req.MaxTokens > 0 {
		opts.MaxTokens = req.MaxTokens
	}
	if req.Temperature != nil && IsValidTemperature(*req.Temperature) {
		t := *req.Temperature
		opts.Temperature = &t
	}
	return opts
}

// TokenCounter provides a utility for estimating token counts from text.
type TokenCounter struct {
	// CharactersPerToken represents the average number of characters per token.
	CharactersPerToken float64
}

// NewTokenCounter creates a new TokenCounter with a default character-per-token ratio.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{CharactersPerToken: 4.0}
}

// EstimateTokens calculates an estimated token count for a given string of text.
func (tc *TokenCounter) EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return int(float64(len(text)) / tc.CharactersPerToken)
}

// GetTokenCount returns actualCount when positive, otherwise an estimate for text.
func (tc *TokenCounter) GetTokenCount(actualCount int, text string) int {
	if actualCount > 0 {
		return actualCount
	}
	return tc.EstimateTokens(text)
}

// EstimateTokens estimates tokens for text using the default TokenCounter.
func EstimateTokens(text string) int {
	return NewTokenCounter().EstimateTokens(text)
}

// conversationText flattens a request into plain text for token estimation
// when a provider omits usage data.
func conversationText(req ports.ChatRequest) string {
	var b strings.Builder
	b.WriteString(req.System)
	for _, m := range req.Messages {
		b.WriteString(m.Content)
		for _, tc := range m.ToolCalls {
			b.Write(tc.Arguments)
		}
	}
	return b.String()
}

// responseText flattens an assistant message for token estimation.
func responseText(m domain.Message) string {
	var b strings.Builder
	b.WriteString(m.Content)
	for _, tc := range m.ToolCalls {
		b.WriteString(tc.Name)
		b.Write(tc.Arguments)
	}
	return b.String()
}

// toolSchema is the subset of a JSON Schema object every provider needs to
// declare a function.
type toolSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Required   []string       `json:"required"`
}

// parseToolSchema decodes a tool's parameter schema. An empty schema is an
// object without properties.
func parseToolSchema(def ports.ToolDefinition) (toolSchema, error) {
	schema := toolSchema{Type: "object", Properties: map[string]any{}}
	if len(def.Parameters) == 0 {
		return schema, nil
	}
	if err := json.Unmarshal(def.Parameters, &schema); err != nil {
		return toolSchema{}, fmt.Errorf("tool %s: invalid parameter schema: %w", def.Name, err)
	}
	if schema.Properties == nil {
		schema.Properties = map[string]any{}
	}
	return schema, nil
}

// ensureCallIDs synthesizes IDs for tool calls from providers that do not
// issue them, so tool results can always be correlated.
func ensureCallIDs(calls []domain.ToolCall) {
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = fmt.Sprintf("call_%d_%s", i, calls[i].Name)
		}
	}
}

// argumentsOrEmpty returns args, or "{}" when the model sent nothing.
func argumentsOrEmpty(args json.RawMessage) json.RawMessage {
	if len(args) == 0 {
		return json.RawMessage("{}")
	}
	return args
}
