package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Common domain errors that can occur while running agents or evaluations.
var (
	// ErrRoundLimitExceeded indicates an agent exhausted its round budget
	// without producing a final answer.
	ErrRoundLimitExceeded = errors.New("round limit exceeded")

	// ErrDepthExceeded indicates a delegation went deeper than allowed.
	ErrDepthExceeded = errors.New("delegation depth exceeded")

	// ErrUnknownTool indicates the model selected a tool that is not in the
	// agent's dispatch table.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArguments indicates tool arguments failed schema validation.
	ErrInvalidArguments = errors.New("invalid tool arguments")

	// ErrEmptyValue indicates that a required value is empty or nil.
	ErrEmptyValue = errors.New("empty value")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrBudgetExceeded indicates that a turn consumed more tokens or model
	// calls than its budget allows.
	ErrBudgetExceeded = errors.New("budget exceeded")
)

// RoundLimitError reports which agent ran out of rounds.
type RoundLimitError struct {
	Agent string
	Limit int
}

// Error implements the error interface for RoundLimitError.
func (e *RoundLimitError) Error() string {
	return fmt.Sprintf("agent %s: round limit of %d exceeded", e.Agent, e.Limit)
}

// Unwrap returns ErrRoundLimitExceeded so callers can use errors.Is.
func (e *RoundLimitError) Unwrap() error { return ErrRoundLimitExceeded }

// NewRoundLimitError creates a RoundLimitError for agent.
func NewRoundLimitError(agent string, limit int) *RoundLimitError {
	return &RoundLimitError{Agent: agent, Limit: limit}
}

// DepthExceededError reports a delegation that would exceed MaxDepth.
type DepthExceededError struct {
	Agent    string
	Depth    int
	MaxDepth int
}

// Error implements the error interface for DepthExceededError.
func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("agent %s: depth %d exceeds max depth %d", e.Agent, e.Depth, e.MaxDepth)
}

// Unwrap returns ErrDepthExceeded.
func (e *DepthExceededError) Unwrap() error { return ErrDepthExceeded }

// ArgumentError lists the schema violations found in a tool call.
type ArgumentError struct {
	Tool     string
	Problems []string
}

// Error implements the error interface for ArgumentError.
func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidArguments, e.Tool, strings.Join(e.Problems, "; "))
}

// Unwrap returns ErrInvalidArguments.
func (e *ArgumentError) Unwrap() error { return ErrInvalidArguments }

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}

// BudgetExceededError reports which resource limit an agent turn broke.
type BudgetExceededError struct {
	// LimitType is "tokens" or "calls".
	LimitType string
	Limit     int64
	Used      int64
	Agent     string
}

// Error implements the error interface for BudgetExceededError.
func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("agent %s: %s budget exceeded: used %d of %d", e.Agent, e.LimitType, e.Used, e.Limit)
}

// Unwrap returns ErrBudgetExceeded.
func (e *BudgetExceededError) Unwrap() error { return ErrBudgetExceeded }

// NewBudgetExceededError creates a BudgetExceededError.
func NewBudgetExceededError(limitType string, limit, used int64, agent string) *BudgetExceededError {
	return &BudgetExceededError{LimitType: limitType, Limit: limit, Used: used, Agent: agent}
}
