package llm

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ahrav/go-maestro/internal/ports"
)

// ProviderConfig describes one model provider.
type ProviderConfig struct {
	// Type selects the provider factory: openai, anthropic or google.
	Type string

	// EnvVar names the environment variable holding the API key.
	EnvVar string

	// DefaultModel is used for a spec that names only the provider.
	DefaultModel string

	// SupportedModels, when non-empty, rejects any other model name.
	SupportedModels []string

	BaseURL string

	// Middleware is appended after the registry defaults, so it wraps
	// closer to the provider.
	Middleware []Middleware
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Providers       map[string]ProviderConfig
	DefaultProvider string

	// DefaultTimeout is the HTTP timeout of every client.
	DefaultTimeout time.Duration

	// DefaultMiddleware wraps every client, first entry outermost.
	DefaultMiddleware []Middleware

	// TokenEstimator is shared by every client that does not set its own.
	TokenEstimator TokenEstimator
}

// DefaultProviders lists the providers and models agents may name in the
// roster.
var DefaultProviders = map[string]ProviderConfig{
	"openai": {
		Type:         "openai",
		EnvVar:       "OPENAI_API_KEY",
		DefaultModel: "gpt-4.1",
		SupportedModels: []string{
			"gpt-4.1", "gpt-4.1-mini", "gpt-4.1-nano",
			"gpt-4o", "gpt-4o-mini",
			"o4-mini", "o3", "o3-mini",
		},
	},
	"anthropic": {
		Type:         "anthropic",
		EnvVar:       "ANTHROPIC_API_KEY",
		DefaultModel: "claude-sonnet-4-20250514",
		SupportedModels: []string{
			"claude-opus-4-1-20250805", "claude-opus-4-20250514", "claude-sonnet-4-20250514",
			"claude-3-7-sonnet-latest", "claude-3-5-sonnet-latest", "claude-3-5-haiku-latest",
		},
	},
	"google": {
		Type:         "google",
		EnvVar:       "GOOGLE_API_KEY",
		DefaultModel: "gemini-2.5-flash",
		SupportedModels: []string{
			"gemini-2.5-pro", "gemini-2.5-flash", "gemini-2.5-flash-lite",
			"gemini-2.0-flash", "gemini-2.0-flash-lite",
		},
	},
}

// Registry resolves "provider/model" specs to chat clients. Clients are
// created on first use and shared afterwards, so every agent naming the
// same spec shares one rate limiter and one circuit breaker.
//
//	registry, err := llm.NewRegistry(llm.RegistryConfig{
//	    DefaultProvider: "openai",
//	    Providers:       llm.DefaultProviders,
//	})
//	orchestrator, err := registry.GetClient("openai/gpt-4.1")
//	specialist, err := registry.GetClient("anthropic/claude-3-5-haiku-latest")
type Registry struct {
	providers       map[string]ProviderConfig
	defaultProvider string
	middleware      []Middleware
	timeout         time.Duration
	estimator       TokenEstimator

	mu      sync.Mutex
	clients map[string]ports.ChatModel
}

// NewRegistry validates config and returns an empty registry.
func NewRegistry(config RegistryConfig) (*Registry, error) {
	if config.DefaultProvider == "" {
		return nil, fmt.Errorf("default provider cannot be empty")
	}
	if _, ok := config.Providers[config.DefaultProvider]; !ok {
		return nil, fmt.Errorf("default provider %q not found in providers configuration", config.DefaultProvider)
	}
	return &Registry{
		providers:       config.Providers,
		defaultProvider: config.DefaultProvider,
		middleware:      config.DefaultMiddleware,
		timeout:         config.DefaultTimeout,
		estimator:       config.TokenEstimator,
		clients:         make(map[string]ports.ChatModel),
	}, nil
}

// GetDefaultClient returns the default provider's default model.
func (r *Registry) GetDefaultClient() (ports.ChatModel, error) {
	return r.GetClient(r.defaultProvider)
}

// GetClient returns the client for spec, which is "provider" or
// "provider/model". Its signature matches the roster's model resolver.
func (r *Registry) GetClient(spec string) (ports.ChatModel, error) {
	provider, model, cfg, err := r.resolve(spec)
	if err != nil {
		return nil, err
	}
	key := provider + "/" + model

	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.clients[key]; ok {
		return client, nil
	}

	apiKey := os.Getenv(cfg.EnvVar)
	if apiKey == "" {
		return nil, fmt.Errorf("%s environment variable not set for provider %q", cfg.EnvVar, provider)
	}
	client, err := r.newClient(cfg, ClientConfig{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: cfg.BaseURL,
	})
	if err != nil {
		return nil, err
	}
	r.clients[key] = client
	return client, nil
}

// RegisterClient installs a client for spec built from explicit
// configuration instead of the environment. An existing client for the
// same spec is replaced.
func (r *Registry) RegisterClient(spec string, config ClientConfig) error {
	if spec == "" {
		return fmt.Errorf("client name cannot be empty")
	}
	provider, model, cfg, err := r.resolve(spec)
	if err != nil {
		return err
	}
	if config.Model == "" {
		config.Model = model
	}
	client, err := r.newClient(cfg, config)
	if err != nil {
		return fmt.Errorf("failed to create client %q: %w", spec, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[provider+"/"+model] = client
	return nil
}

// CheckCredentials verifies that every spec names a known provider and
// model and that the provider's API key is set, so a misconfigured roster
// fails before the first turn. Clients registered explicitly need no key.
func (r *Registry) CheckCredentials(specs ...string) error {
	for _, spec := range specs {
		provider, model, cfg, err := r.resolve(spec)
		if err != nil {
			return err
		}
		r.mu.Lock()
		_, registered := r.clients[provider+"/"+model]
		r.mu.Unlock()
		if !registered && os.Getenv(cfg.EnvVar) == "" {
			return ports.NewConfigError(cfg.EnvVar, fmt.Errorf("%w: needed by %s", ports.ErrMissingCredentials, spec))
		}
	}
	return nil
}

// resolve splits spec and checks it against the provider configuration.
func (r *Registry) resolve(spec string) (provider, model string, cfg ProviderConfig, err error) {
	if spec == "" {
		return "", "", cfg, fmt.Errorf("provider specification cannot be empty; use GetDefaultClient() for default provider")
	}
	provider, model, _ = strings.Cut(spec, "/")
	cfg, ok := r.providers[provider]
	if !ok {
		return "", "", cfg, fmt.Errorf("unknown provider %q", provider)
	}
	if model == "" {
		model = cfg.DefaultModel
	}
	if len(cfg.SupportedModels) > 0 && !slices.Contains(cfg.SupportedModels, model) {
		return "", "", cfg, fmt.Errorf("model %q is not supported by provider %q. Supported models: %v",
			model, provider, cfg.SupportedModels)
	}
	return provider, model, cfg, nil
}

func (r *Registry) newClient(provider ProviderConfig, config ClientConfig) (ports.ChatModel, error) {
	if config.Timeout == 0 {
		config.Timeout = r.timeout
	}
	if config.TokenEstimator == nil {
		config.TokenEstimator = r.estimator
	}
	chain := slices.Concat(r.middleware, provider.Middleware, config.Middleware)
	config.Middleware = chain

	client, err := NewClient(provider.Type, config)
	if err != nil {
		// Avoid returning a typed nil inside the interface.
		return nil, err
	}
	return client, nil
}
