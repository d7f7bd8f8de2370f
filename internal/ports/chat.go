package ports

import (
	"encoding/json"

	"github.com/ahrav/go-maestro/internal/domain"
)

// ToolDefinition is the natural-language-facing declaration of a tool:
// the name/description/parameter-schema triple a model chooses from.
type ToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	// Parameters is a JSON Schema object describing the arguments.
	Parameters json.RawMessage `json:"parameters"`
}

// ChatRequest carries one model round: the system instruction, the
// conversation so far and the tools the model may call.
type ChatRequest struct {
	System   string
	Messages []domain.Message
	Tools    []ToolDefinition

	// MaxTokens caps the reply length. Zero selects the provider default.
	MaxTokens int

	// Temperature overrides the sampling temperature when non-nil.
	Temperature *float64
}

// ChatResponse is the assistant reply to a ChatRequest.
type ChatResponse struct {
	// Message is the assistant message. Its ToolCalls are set when the
	// model requested tool invocations.
	Message domain.Message

	TokensIn  int
	TokensOut int

	// FinishReason is the provider's stop reason, kept for logging.
	FinishReason string
}

// Usage converts token counts into a single-call domain.Usage.
func (r *ChatResponse) Usage() domain.Usage {
	return domain.Usage{Tokens: int64(r.TokensIn + r.TokensOut), Calls: 1}
}
