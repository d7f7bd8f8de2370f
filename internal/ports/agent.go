package ports

import (
	"context"

	"github.com/ahrav/go-maestro/internal/domain"
)

// AgentRequest is the input of one agent turn.
type AgentRequest struct {
	// Input is the user utterance or the instruction from a parent agent.
	Input string

	// History is the caller-owned prior conversation.
	History domain.History

	// Today is the current-date context string shown to the model.
	Today string

	// Depth is the delegation depth; the top-level orchestrator runs at 0.
	Depth int
}

// Agent is an LLM-driven decision unit owning a fixed tool set.
type Agent interface {
	// Name returns the unique agent name used in traces.
	Name() string

	// Description is the one-line summary a parent agent sees.
	Description() string

	// Run executes one turn. On round-limit exhaustion it returns a result
	// carrying the partial trace together with a *domain.RoundLimitError.
	Run(ctx context.Context, req AgentRequest) (*domain.TurnResult, error)
}
