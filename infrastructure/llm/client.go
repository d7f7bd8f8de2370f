// Package llm is the model side of the orchestrator: one tool-calling chat
// interface over OpenAI, Anthropic and Google, with rate limiting, circuit
// breaking, retries, metrics and tracing layered on as middleware.
//
//	client, err := llm.NewClient("anthropic", llm.ClientConfig{
//	    APIKey: os.Getenv("ANTHROPIC_API_KEY"),
//	    Model:  "claude-3-5-haiku-latest",
//	    Middleware: []llm.Middleware{
//	        llm.MetricsMiddleware(collector),
//	        llm.CircuitBreakerMiddleware(5, 30*time.Second),
//	        llm.RateLimitMiddleware(20, 40),
//	    },
//	})
//	resp, err := client.Chat(ctx, ports.ChatRequest{
//	    System:   "You are a helpful assistant.",
//	    Messages: []domain.Message{domain.UserMessage("안녕")},
//	    Tools:    specs,
//	})
//
// Most callers go through Registry, which resolves "provider/model" specs
// from the roster and shares one client per spec.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahrav/go-maestro/internal/ports"
)

// CoreLLM is what a provider adapter implements and what middleware wraps.
type CoreLLM interface {
	// DoRequest sends one chat round. The response carries either assistant
	// text or the tool calls the model picked from req.Tools, plus usage.
	DoRequest(ctx context.Context, req ports.ChatRequest) (*ports.ChatResponse, error)

	GetModel() string
	SetModel(model string)
}

// Middleware wraps a CoreLLM.
type Middleware func(CoreLLM) CoreLLM

// roundFunc is the DoRequest signature.
type roundFunc func(ctx context.Context, req ports.ChatRequest) (*ports.ChatResponse, error)

// interceptor routes DoRequest through do and inherits the model accessors
// of the core it wraps.
type interceptor struct {
	CoreLLM
	do roundFunc
}

func (i *interceptor) DoRequest(ctx context.Context, req ports.ChatRequest) (*ports.ChatResponse, error) {
	return i.do(ctx, req)
}

func intercept(next CoreLLM, do roundFunc) CoreLLM {
	return &interceptor{CoreLLM: next, do: do}
}

// TokenEstimator approximates the token count of text.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// ClientConfig configures NewClient.
type ClientConfig struct {
	APIKey string
	Model  string

	// BaseURL overrides the provider endpoint; empty keeps the default.
	BaseURL string

	// Timeout bounds each HTTP request. Zero leaves it unbounded.
	Timeout time.Duration

	// TokenEstimator defaults to SimpleTokenEstimator.
	TokenEstimator TokenEstimator

	// Middleware wraps the provider, first entry outermost.
	Middleware []Middleware
}

// ProviderFactory builds the CoreLLM of one provider type.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

var providerFactories = map[string]ProviderFactory{}

// RegisterProviderFactory makes a provider type available to NewClient.
// Provider files register themselves from init.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	providerFactories[providerType] = factory
}

// Client is a ports.ChatModel backed by a middleware-wrapped provider.
type Client struct {
	core      CoreLLM
	estimator TokenEstimator
}

var _ ports.ChatModel = (*Client)(nil)

// NewClient builds the provider named by providerType and wraps it in
// config.Middleware.
func NewClient(providerType string, config ClientConfig) (*Client, error) {
	switch {
	case config.APIKey == "":
		return nil, errors.New("API key is required")
	case config.Model == "":
		return nil, errors.New("model is required")
	}
	factory, ok := providerFactories[providerType]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", providerType)
	}
	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}
	return NewClientFromCore(core, config.TokenEstimator, config.Middleware...), nil
}

// NewClientFromCore wraps core in middleware, first entry outermost.
func NewClientFromCore(core CoreLLM, estimator TokenEstimator, middleware ...Middleware) *Client {
	for i := len(middleware) - 1; i >= 0; i-- {
		core = middleware[i](core)
	}
	if estimator == nil {
		estimator = &SimpleTokenEstimator{}
	}
	return &Client{core: core, estimator: estimator}
}

// Chat sends one round through the middleware chain.
func (c *Client) Chat(ctx context.Context, req ports.ChatRequest) (*ports.ChatResponse, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("chat request must contain at least one message")
	}
	return c.core.DoRequest(ctx, req)
}

func (c *Client) EstimateTokens(text string) (int, error) {
	return c.estimator.EstimateTokens(text), nil
}

func (c *Client) GetModel() string { return c.core.GetModel() }

// SimpleTokenEstimator counts one token per four bytes, rounding up.
type SimpleTokenEstimator struct{}

func (*SimpleTokenEstimator) EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
