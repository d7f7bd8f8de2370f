package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ahrav/go-maestro/internal/ports"
)

var (
	ErrEmptyAPIKey      = errors.New("API key cannot be empty")
	ErrEmptyResponse    = errors.New("empty response from API")
	ErrNoResponseChoice = errors.New("no response choices returned")
)

// ErrorType buckets provider failures so retry and breaker middleware can
// treat all providers alike.
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeAuthentication
	ErrorTypeRateLimit
	ErrorTypeBadRequest
	ErrorTypeNotFound
	ErrorTypeServerError
	ErrorTypeContentPolicy
	ErrorTypeNetwork
	ErrorTypeTimeout
)

var errorTypeNames = [...]string{
	ErrorTypeUnknown:        "",
	ErrorTypeAuthentication: "authentication",
	ErrorTypeRateLimit:      "rate_limit",
	ErrorTypeBadRequest:     "bad_request",
	ErrorTypeNotFound:       "not_found",
	ErrorTypeServerError:    "server_error",
	ErrorTypeContentPolicy:  "content_policy",
	ErrorTypeNetwork:        "network",
	ErrorTypeTimeout:        "timeout",
}

func (t ErrorType) String() string {
	if int(t) < 0 || int(t) >= len(errorTypeNames) {
		return ""
	}
	return errorTypeNames[t]
}

// ProviderError is a provider SDK failure normalized to an ErrorType.
type ProviderError struct {
	Type       ErrorType
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(" error")
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if name := e.Type.String(); name != "" {
		fmt.Fprintf(&b, " [%s]", name)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is lets callers outside this package match a ProviderError against the
// ports sentinels.
func (e *ProviderError) Is(target error) bool {
	switch target {
	case ports.ErrRateLimited:
		return e.Type == ErrorTypeRateLimit
	case ports.ErrAuthenticationFailed:
		return e.Type == ErrorTypeAuthentication
	case ports.ErrServiceUnavailable:
		return e.Type == ErrorTypeServerError
	case ports.ErrTimeout:
		return e.Type == ErrorTypeTimeout
	}
	return false
}

// IsRetryable reports whether the same request may succeed later.
func (e *ProviderError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeNetwork, ErrorTypeTimeout:
		return true
	}
	return false
}

// NewProviderError creates a ProviderError.
func NewProviderError(provider string, errType ErrorType, statusCode int, message string, err error) *ProviderError {
	return &ProviderError{
		Type:       errType,
		Provider:   provider,
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}

// ErrorClassifier turns transport-level failures of one provider into
// ProviderErrors.
type ErrorClassifier struct {
	Provider string
}

// ClassifyHTTPError maps an HTTP status onto an ErrorType. Auth and rate
// limit failures get a fixed message; the rest keep the provider's.
func (ec *ErrorClassifier) ClassifyHTTPError(statusCode int, message string, err error) *ProviderError {
	errType := statusErrorType(statusCode)
	switch errType {
	case ErrorTypeAuthentication:
		message = ec.Provider + " authentication failed"
	case ErrorTypeRateLimit:
		message = ec.Provider + " rate limit exceeded"
	}
	return NewProviderError(ec.Provider, errType, statusCode, message, err)
}

func statusErrorType(status int) ErrorType {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorTypeAuthentication
	case status == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case status == http.StatusNotFound:
		return ErrorTypeNotFound
	case status >= 500:
		return ErrorTypeServerError
	case status >= 400:
		return ErrorTypeBadRequest
	}
	return ErrorTypeUnknown
}

// ClassifyContextError classifies a deadline as a timeout and a
// cancellation as a network failure.
func (ec *ErrorClassifier) ClassifyContextError(err error) *ProviderError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewProviderError(ec.Provider, ErrorTypeTimeout, 0, "context deadline exceeded", err)
	case errors.Is(err, context.Canceled):
		return NewProviderError(ec.Provider, ErrorTypeNetwork, 0, "request canceled", err)
	}
	return NewProviderError(ec.Provider, ErrorTypeUnknown, 0, "", err)
}

func isContextError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
