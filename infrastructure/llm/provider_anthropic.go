package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ahrav/go-maestro/internal/domain"
	"github.com/ahrav/go-maestro/internal/ports"
)

const (
	// AnthropicDefaultModel is used when the configuration names no model.
	AnthropicDefaultModel = "claude-3-5-haiku-latest"
)

func init() {
	RegisterProviderFactory("anthropic", newAnthropicProvider)
}

// anthropicProvider implements CoreLLM on the Anthropic Messages API with
// tool use.
type anthropicProvider struct {
	BaseProvider
	client          anthropic.Client
	tokenCounter    *TokenCounter
	errorClassifier *ErrorClassifier
}

func newAnthropicProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key cannot be empty")
	}

	model := config.Model
	if model == "" {
		model = AnthropicDefaultModel
	}

	// Retries are owned by RetryMiddleware so they are observable in metrics.
	opts := []option.RequestOption{option.WithAPIKey(config.APIKey), option.WithMaxRetries(0)}
	if config.BaseURL != "" {
		validatedURL, err := ValidateBaseURL(config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid BaseURL: %w", err)
		}
		opts = append(opts, option.WithBaseURL(validatedURL))
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(ValidateTimeout(config.Timeout)))
	}

	return &anthropicProvider{
		BaseProvider:    BaseProvider{model: model},
		client:          anthropic.NewClient(opts...),
		tokenCounter:    NewTokenCounter(),
		errorClassifier: &ErrorClassifier{Provider: "anthropic"},
	}, nil
}

// DoRequest sends one chat round to Anthropic and converts text and
// tool_use blocks into an assistant message.
func (p *anthropicProvider) DoRequest(ctx context.Context, req ports.ChatRequest) (*ports.ChatResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.handleError(err)
	}

	return p.processResponse(message, req)
}

func (p *anthropicProvider) buildParams(req ports.ChatRequest) (anthropic.MessageNewParams, error) {
	options := resolveOptions(req, p.GetModel())

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(options.Model),
		MaxTokens: int64(options.MaxTokens),
		Messages:  p.buildMessages(req.Messages),
	}

	if options.Temperature != nil {
		// Anthropic accepts temperatures in [0, 1].
		params.Temperature = anthropic.Float(ClampFloat64(*options.Temperature, 0.0, 1.0))
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	for _, def := range req.Tools {
		schema, err := parseToolSchema(def)
		if err != nil {
			return params, err
		}
		inputSchema := anthropic.ToolInputSchemaParam{Properties: schema.Properties}
		if len(schema.Required) > 0 {
			inputSchema.ExtraFields = map[string]any{"required": schema.Required}
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: inputSchema,
			},
		})
	}

	return params, nil
}

// buildMessages maps the domain conversation onto Anthropic messages.
// Consecutive tool results are merged into a single user message, which
// the API requires after an assistant turn with several tool_use blocks.
func (p *anthropicProvider) buildMessages(msgs []domain.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	var pendingResults []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(pendingResults) > 0 {
			out = append(out, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, m := range msgs {
		switch m.Role {
		case domain.RoleTool:
			isError := strings.HasPrefix(m.Content, `{"error"`)
			pendingResults = append(pendingResults, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, isError))
		case domain.RoleAssistant:
			flush()
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.ToolCalls)+1)
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, argumentsOrEmpty(tc.Arguments), tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		default:
			flush()
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	flush()

	return out
}

func (p *anthropicProvider) processResponse(message *anthropic.Message, req ports.ChatRequest) (*ports.ChatResponse, error) {
	msg := domain.Message{Role: domain.RoleAssistant}

	var text strings.Builder
	for _, block := range message.Content {
		switch content := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(content.Text)
		case anthropic.ToolUseBlock:
			msg.ToolCalls = append(msg.ToolCalls, domain.ToolCall{
				ID:        content.ID,
				Name:      content.Name,
				Arguments: argumentsOrEmpty(content.Input),
			})
		}
	}
	msg.Content = text.String()
	ensureCallIDs(msg.ToolCalls)

	if msg.Content == "" && !msg.HasToolCalls() {
		return nil, ErrEmptyResponse
	}

	return &ports.ChatResponse{
		Message:      msg,
		TokensIn:     p.tokenCounter.GetTokenCount(int(message.Usage.InputTokens), conversationText(req)),
		TokensOut:    p.tokenCounter.GetTokenCount(int(message.Usage.OutputTokens), responseText(msg)),
		FinishReason: string(message.StopReason),
	}, nil
}

// handleError classifies Anthropic SDK errors.
func (p *anthropicProvider) handleError(err error) error {
	if isContextError(err) {
		return p.errorClassifier.ClassifyContextError(err)
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return p.errorClassifier.ClassifyHTTPError(apiErr.StatusCode, http.StatusText(apiErr.StatusCode), err)
	}

	return NewProviderError("anthropic", ErrorTypeUnknown, 0, "request failed", err)
}
