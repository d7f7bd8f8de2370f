package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"github.com/ahrav/go-maestro/internal/domain"
	"github.com/ahrav/go-maestro/internal/ports"
)

const (
	// GoogleDefaultModel is used when the configuration names no model.
	GoogleDefaultModel = "gemini-2.5-flash"
)

func init() {
	RegisterProviderFactory("google", newGoogleProvider)
}

// googleProvider implements CoreLLM on the Gemini API with function calling.
type googleProvider struct {
	BaseProvider
	client          *genai.Client
	tokenCounter    *TokenCounter
	errorClassifier *ErrorClassifier
}

func newGoogleProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = GoogleDefaultModel
	}

	authConfig, err := buildAuthConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to configure authentication: %w", err)
	}

	client, err := genai.NewClient(context.Background(), authConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}

	return &googleProvider{
		BaseProvider:    BaseProvider{model: model},
		client:          client,
		tokenCounter:    NewTokenCounter(),
		errorClassifier: &ErrorClassifier{Provider: "google"},
	}, nil
}

// DoRequest sends one chat round to Gemini and converts text and function
// call parts into an assistant message.
func (p *googleProvider) DoRequest(ctx context.Context, req ports.ChatRequest) (*ports.ChatResponse, error) {
	options := resolveOptions(req, p.GetModel())

	config, err := p.buildGenerationConfig(req, options)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Models.GenerateContent(ctx, options.Model, p.buildContents(req.Messages), config)
	if err != nil {
		return nil, p.handleError(err)
	}

	msg := domain.Message{Role: domain.RoleAssistant, Content: resp.Text()}
	for _, fc := range resp.FunctionCalls() {
		args, err := json.Marshal(fc.Args)
		if err != nil {
			return nil, NewProviderError("google", ErrorTypeUnknown, 0, "undecodable function call", err)
		}
		msg.ToolCalls = append(msg.ToolCalls, domain.ToolCall{
			ID:        fc.ID,
			Name:      fc.Name,
			Arguments: argumentsOrEmpty(args),
		})
	}
	ensureCallIDs(msg.ToolCalls)

	if msg.Content == "" && !msg.HasToolCalls() {
		return nil, ErrEmptyResponse
	}

	var finish string
	if len(resp.Candidates) > 0 {
		finish = string(resp.Candidates[0].FinishReason)
	}

	return &ports.ChatResponse{
		Message:      msg,
		TokensIn:     p.getTokenCount(resp.UsageMetadata, true, conversationText(req)),
		TokensOut:    p.getTokenCount(resp.UsageMetadata, false, responseText(msg)),
		FinishReason: finish,
	}, nil
}

// getTokenCount prefers usage metadata and falls back to estimation.
func (p *googleProvider) getTokenCount(usage *genai.GenerateContentResponseUsageMetadata, isInput bool, text string) int {
	if usage != nil {
		if isInput && usage.PromptTokenCount > 0 {
			return int(usage.PromptTokenCount)
		}
		if !isInput && usage.CandidatesTokenCount > 0 {
			return int(usage.CandidatesTokenCount)
		}
	}
	return p.tokenCounter.EstimateTokens(text)
}

// buildContents maps the conversation onto Gemini contents. Assistant
// turns use the model role; tool results travel as function responses in
// a user turn.
func (p *googleProvider) buildContents(msgs []domain.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case domain.RoleAssistant:
			parts := make([]*genai.Part, 0, len(m.ToolCalls)+1)
			if m.Content != "" {
				parts = append(parts, genai.NewPartFromText(m.Content))
			}
			for _, tc := range m.ToolCalls {
				args, _ := tc.DecodeArguments()
				parts = append(parts, genai.NewPartFromFunctionCall(tc.Name, args))
			}
			if len(parts) > 0 {
				contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))
			}
		case domain.RoleTool:
			part := genai.NewPartFromFunctionResponse(m.Name, functionResponse(m.Content))
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return contents
}

// functionResponse wraps tool content as the object Gemini expects. JSON
// objects pass through; anything else is placed under "output".
func functionResponse(content string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(content), &obj); err == nil {
		return obj
	}
	return map[string]any{"output": content}
}

// buildGenerationConfig carries the system instruction, sampling settings
// and function declarations.
func (p *googleProvider) buildGenerationConfig(req ports.ChatRequest, options RequestOptions) (*genai.GenerateContentConfig, error) {
	config := &genai.GenerateContentConfig{}

	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	if options.Temperature != nil {
		temp := ClampFloat64(*options.Temperature, MinTemperature, MaxTemperature)
		config.Temperature = genai.Ptr(float32(temp))
	}

	if options.MaxTokens > 0 {
		if options.MaxTokens > math.MaxInt32 {
			config.MaxOutputTokens = math.MaxInt32
		} else {
			config.MaxOutputTokens = int32(options.MaxTokens)
		}
	}

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, def := range req.Tools {
			schema, err := parseToolSchema(def)
			if err != nil {
				return nil, err
			}
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        def.Name,
				Description: def.Description,
				Parameters: toGenaiSchema(map[string]any{
					"type":       "object",
					"properties": schema.Properties,
					"required":   toAnySlice(schema.Required),
				}),
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	return config, nil
}

// toGenaiSchema converts a decoded JSON Schema node into the Gemini schema
// subset: type, description, enum, properties, required and items.
func toGenaiSchema(node map[string]any) *genai.Schema {
	schema := &genai.Schema{}

	switch t, _ := node["type"].(string); t {
	case "string":
		schema.Type = genai.TypeString
	case "integer":
		schema.Type = genai.TypeInteger
	case "number":
		schema.Type = genai.TypeNumber
	case "boolean":
		schema.Type = genai.TypeBoolean
	case "array":
		schema.Type = genai.TypeArray
	default:
		schema.Type = genai.TypeObject
	}

	if d, ok := node["description"].(string); ok {
		schema.Description = d
	}
	if enum, ok := node["enum"].([]any); ok {
		for _, e := range enum {
			schema.Enum = append(schema.Enum, fmt.Sprint(e))
		}
	}
	if props, ok := node["properties"].(map[string]any); ok && len(props) > 0 {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if child, ok := raw.(map[string]any); ok {
				schema.Properties[name] = toGenaiSchema(child)
			}
		}
	}
	if req, ok := node["required"].([]any); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if items, ok := node["items"].(map[string]any); ok {
		schema.Items = toGenaiSchema(items)
	}

	return schema
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// handleError provides structured error handling for Google API responses.
// It classifies errors based on their type, such as context errors or API
// errors, and returns a standardized ProviderError.
func (p *googleProvider) handleError(err error) error {
	if isContextError(err) {
		return p.errorClassifier.ClassifyContextError(err)
	}

	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return p.errorClassifier.ClassifyHTTPError(genaiErr.Code, genaiErr.Message, err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" && len(apiErr.Errors) > 0 {
			message = apiErr.Errors[0].Message
		}

		// Provide special handling for content policy violations to return a
		// clear error.
		if containsContentPolicyError(apiErr) {
			return NewProviderError("google", ErrorTypeContentPolicy, apiErr.Code,
				"request blocked by safety filters", err)
		}

		return p.errorClassifier.ClassifyHTTPError(apiErr.Code, message, err)
	}

	return NewProviderError("google", ErrorTypeUnknown, 0, "request failed", err)
}

// buildAuthConfig creates the appropriate authentication configuration based on
// the client settings.
// It supports both API key and service account authentication.
func buildAuthConfig(config ClientConfig) (*genai.ClientConfig, error) {
	if looksLikeFilePath(config.APIKey) {
		// Ensure the credentials file exists before proceeding.
		if !fileExists(config.APIKey) {
			return nil, fmt.Errorf("credentials file not found: %s", config.APIKey)
		}

		// For production environments, service account authentication should be
		// fully implemented.
		// This implementation provides a clear error message for guidance.
		return nil, fmt.Errorf("service account authentication requires additional configuration. " +
			"Please use API key authentication or set GOOGLE_APPLICATION_CREDENTIALS environment variable")
	}

	cc := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		validatedURL, err := ValidateBaseURL(config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid BaseURL: %w", err)
		}
		cc.HTTPOptions.BaseURL = validatedURL
	}
	return cc, nil
}

// looksLikeFilePath checks if a string appears to be a file path.
// It performs checks for absolute paths, relative paths, and common credential
// file extensions.
func looksLikeFilePath(s string) bool {
	if filepath.IsAbs(s) {
		return true
	}

	if strings.Contains(s, "/") || strings.Contains(s, "\\") {
		return true
	}

	lower := strings.ToLower(s)
	if strings.HasSuffix(lower, ".json") ||
		strings.HasSuffix(lower, ".p12") ||
		strings.HasSuffix(lower, ".pem") ||
		strings.Contains(lower, "credentials") {
		return true
	}

	return false
}

// fileExists checks if a file exists at the given path.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// containsContentPolicyError checks if a Google API error is related to
// content policy violations.
func containsContentPolicyError(apiErr *googleapi.Error) bool {
	if apiErr.Message != "" {
		lower := strings.ToLower(apiErr.Message)
		if strings.Contains(lower, "safety") ||
			strings.Contains(lower, "policy") ||
			strings.Contains(lower, "blocked") {
			return true
		}
	}

	for _, e := range apiErr.Errors {
		if e.Reason == "SAFETY" || e.Reason == "BLOCKED" {
			return true
		}
	}

	return false
}
