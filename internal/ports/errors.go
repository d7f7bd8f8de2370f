package ports

import (
	"errors"
	"fmt"
)

// Provider and integration failure classes. Provider adapters map their
// SDK errors onto these so retry and breaker middleware can decide without
// knowing the provider.
var (
	ErrTokenLimitExceeded   = errors.New("token limit exceeded")
	ErrRateLimited          = errors.New("rate limited")
	ErrServiceUnavailable   = errors.New("service unavailable")
	ErrTimeout              = errors.New("operation timed out")
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrMissingCredentials indicates that an integration is enabled but its
	// API key or credential file is not configured.
	ErrMissingCredentials = errors.New("missing credentials")
)

// LLMError is a failed chat round.
type LLMError struct {
	Model     string
	Operation string
	Err       error
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("LLM error: model=%s, operation=%s, err=%v", e.Model, e.Operation, e.Err)
}

func (e *LLMError) Unwrap() error { return e.Err }

// IsRetryable reports whether repeating the round may succeed: rate
// limits, outages and timeouts are transient, everything else is not.
func (e *LLMError) IsRetryable() bool {
	return errors.Is(e.Err, ErrRateLimited) ||
		errors.Is(e.Err, ErrServiceUnavailable) ||
		errors.Is(e.Err, ErrTimeout)
}

// NewLLMError creates an LLMError.
func NewLLMError(model, operation string, err error) *LLMError {
	return &LLMError{Model: model, Operation: operation, Err: err}
}

// CacheError is a failed tool result cache operation.
type CacheError struct {
	Key       string
	Operation string
	Err       error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache error: operation=%s, key=%s, err=%v", e.Operation, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// ToolError is a tool call that could not be dispatched: an unknown tool
// or arguments that fail the schema. Upstream failures are not ToolErrors;
// they travel inside the tool result.
type ToolError struct {
	Agent string
	Tool  string
	Err   error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool error: agent=%s, tool=%s, err=%v", e.Agent, e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// NewToolError creates a ToolError.
func NewToolError(agent, tool string, err error) *ToolError {
	return &ToolError{Agent: agent, Tool: tool, Err: err}
}

// ConfigError names the configuration key that is invalid or missing.
type ConfigError struct {
	ConfigKey string
	Err       error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: key=%s, err=%v", e.ConfigKey, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError creates a ConfigError.
func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{ConfigKey: key, Err: err}
}
