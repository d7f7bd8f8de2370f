package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ahrav/go-maestro/internal/domain"
	"github.com/ahrav/go-maestro/internal/ports"
)

const (
	// OpenAIDefaultModel is used when the configuration names no model.
	OpenAIDefaultModel = "gpt-4.1-mini"
)

func init() {
	RegisterProviderFactory("openai", newOpenAIProvider)
}

// openAIProvider implements CoreLLM on the OpenAI chat completions API with
// function tools.
type openAIProvider struct {
	BaseProvider
	client          *openai.Client
	tokenCounter    *TokenCounter
	errorClassifier *ErrorClassifier
}

func newOpenAIProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = OpenAIDefaultModel
	}

	clientConfig := openai.DefaultConfig(config.APIKey)

	if config.BaseURL != "" {
		validatedURL, err := ValidateBaseURL(config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid BaseURL: %w", err)
		}
		clientConfig.BaseURL = validatedURL
	}

	if config.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{
			Timeout: ValidateTimeout(config.Timeout),
		}
	}

	return &openAIProvider{
		BaseProvider:    BaseProvider{model: model},
		client:          openai.NewClientWithConfig(clientConfig),
		tokenCounter:    NewTokenCounter(),
		errorClassifier: &ErrorClassifier{Provider: "openai"},
	}, nil
}

// DoRequest sends one chat round to OpenAI and converts the first choice
// into an assistant message.
func (p *openAIProvider) DoRequest(ctx context.Context, req ports.ChatRequest) (*ports.ChatResponse, error) {
	options := resolveOptions(req, p.GetModel())

	completionReq := openai.ChatCompletionRequest{
		Model:     options.Model,
		Messages:  p.buildMessages(req),
		MaxTokens: options.MaxTokens,
		Tools:     p.buildTools(req.Tools),
	}
	if options.Temperature != nil {
		completionReq.Temperature = openAITemperature(*options.Temperature)
	}

	resp, err := p.client.CreateChatCompletion(ctx, completionReq)
	if err != nil {
		return nil, p.handleError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, ErrNoResponseChoice
	}

	choice := resp.Choices[0]
	msg := domain.Message{Role: domain.RoleAssistant, Content: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, domain.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: argumentsOrEmpty(json.RawMessage(tc.Function.Arguments)),
		})
	}
	ensureCallIDs(msg.ToolCalls)

	if msg.Content == "" && !msg.HasToolCalls() {
		return nil, ErrEmptyResponse
	}

	return &ports.ChatResponse{
		Message:      msg,
		TokensIn:     p.tokenCounter.GetTokenCount(resp.Usage.PromptTokens, conversationText(req)),
		TokensOut:    p.tokenCounter.GetTokenCount(resp.Usage.CompletionTokens, responseText(msg)),
		FinishReason: string(choice.FinishReason),
	}, nil
}

// buildMessages maps the domain conversation onto OpenAI roles. The system
// instruction travels as the first message.
func (p *openAIProvider) buildMessages(req ports.ChatRequest) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)

	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	for _, m := range req.Messages {
		switch m.Role {
		case domain.RoleTool:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
				Name:       m.Name,
			})
		case domain.RoleAssistant:
			out := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: m.Content,
			}
			for _, tc := range m.ToolCalls {
				out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(argumentsOrEmpty(tc.Arguments)),
					},
				})
			}
			messages = append(messages, out)
		case domain.RoleSystem:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: m.Content,
			})
		default:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: m.Content,
			})
		}
	}

	return messages
}

func (p *openAIProvider) buildTools(defs []ports.ToolDefinition) []openai.Tool {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		var params any = json.RawMessage(`{"type":"object","properties":{}}`)
		if len(def.Parameters) > 0 {
			params = def.Parameters
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  params,
			},
		})
	}
	return tools
}

// handleError classifies and wraps errors from the OpenAI API.
func (p *openAIProvider) handleError(err error) error {
	if isContextError(err) {
		return p.errorClassifier.ClassifyContextError(err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" {
			message = "unknown error"
		}
		return p.errorClassifier.ClassifyHTTPError(apiErr.HTTPStatusCode, message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return p.errorClassifier.ClassifyHTTPError(reqErr.HTTPStatusCode, "request failed", err)
	}

	return NewProviderError("openai", ErrorTypeUnknown, 0, "request failed", err)
}

// openAITemperature converts t for go-openai, whose Temperature field is
// omitempty: a literal 0 would be dropped and the server default used, so
// greedy decoding is requested with the smallest positive float32 instead.
func openAITemperature(t float64) float32 {
	v := float32(ClampFloat64(t, MinTemperature, MaxTemperature))
	if v == 0 {
		return math.SmallestNonzeroFloat32
	}
	return v
}
