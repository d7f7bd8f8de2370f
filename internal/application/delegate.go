package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ahrav/go-maestro/internal/domain"
	"github.com/ahrav/go-maestro/internal/ports"
)

// delegateSchema is the single free-text parameter a parent agent passes
// to a specialist.
const delegateSchema = `{
  "type": "object",
  "properties": {
    "instruction": {
      "type": "string",
      "minLength": 1,
      "description": "전문가에게 전달할 구체적인 작업 지시"
    }
  },
  "required": ["instruction"]
}`

// Delegation is the result of invoking a specialist through a
// DelegateTool. The parent agent folds Turn.Trace into its own trace and
// feeds either Turn.Answer or Err back to its model.
type Delegation struct {
	Agent string
	Turn  *domain.TurnResult
	Err   error
}

func (d *Delegation) status() string {
	switch {
	case d.Err == nil:
		return "ok"
	case errors.Is(d.Err, domain.ErrRoundLimitExceeded):
		return "round_limit"
	case errors.Is(d.Err, domain.ErrDepthExceeded):
		return "depth_exceeded"
	default:
		return "error"
	}
}

// DelegateTool exposes an agent as a tool of its parent. The call runs the
// agent synchronously one level deeper than the caller.
type DelegateTool struct {
	agent ports.Agent
}

var _ ports.Tool = (*DelegateTool)(nil)

// NewDelegateTool wraps agent.
func NewDelegateTool(agent ports.Agent) *DelegateTool {
	return &DelegateTool{agent: agent}
}

// Definition names the tool after the agent and uses its description.
func (t *DelegateTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        t.agent.Name(),
		Description: t.agent.Description(),
		Parameters:  json.RawMessage(delegateSchema),
	}
}

// Mutating reports true: a specialist may call mutating tools, so its
// result must never be served from a cache.
func (t *DelegateTool) Mutating() bool { return true }

// Invoke runs the wrapped agent with the instruction as its input. Agent
// failures are returned inside the Delegation so the parent can recover;
// only a cancelled or expired context is returned as an error.
func (t *DelegateTool) Invoke(ctx context.Context, inv ports.ToolInvocation) (any, error) {
	var args struct {
		Instruction string `json:"instruction"`
	}
	if err := json.Unmarshal(inv.Arguments, &args); err != nil {
		return nil, &domain.ArgumentError{Tool: t.agent.Name(), Problems: []string{err.Error()}}
	}

	turn, err := t.agent.Run(ctx, ports.AgentRequest{
		Input: args.Instruction,
		Today: inv.Today,
		Depth: inv.Depth + 1,
	})
	if err != nil && ctx.Err() != nil {
		return nil, fmt.Errorf("delegate to %s: %w", t.agent.Name(), ctx.Err())
	}
	return &Delegation{Agent: t.agent.Name(), Turn: turn, Err: err}, nil
}
