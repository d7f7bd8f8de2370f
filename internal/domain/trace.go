package domain

import (
	"fmt"
	"strings"
)

// CallStep records one tool invocation made by a specialist during a turn.
type CallStep struct {
	// Agent is the specialist that made the call.
	Agent string `json:"agent"`

	// Tool is the concrete tool invoked. It is empty when the specialist
	// was delegated to but answered without calling any tool.
	Tool string `json:"tool"`

	// Arguments are the decoded arguments the model supplied.
	Arguments map[string]any `json:"arguments,omitempty"`

	// Result is the serialized tool content fed back to the model.
	Result string `json:"result,omitempty"`

	// Error is set when the call was rejected before invocation, for example
	// because its arguments violated the tool schema.
	Error string `json:"error,omitempty"`
}

// CallTrace is the ordered record of tool invocations for a single turn.
type CallTrace []CallStep

// At returns the step at index i and whether it exists. Out-of-range
// indices report false instead of panicking.
func (t CallTrace) At(i int) (CallStep, bool) {
	if i < 0 || i >= len(t) {
		return CallStep{}, false
	}
	return t[i], true
}

// String renders the trace as "agent.tool" pairs for logs.
func (t CallTrace) String() string {
	parts := make([]string, len(t))
	for i, s := range t {
		tool := s.Tool
		if tool == "" {
			tool = "-"
		}
		parts[i] = fmt.Sprintf("%s.%s", s.Agent, tool)
	}
	return "[" + strings.Join(parts, " -> ") + "]"
}

// Executed returns the steps that reached a tool or a specialist, dropping
// calls rejected before invocation. Scoring compares executed steps only,
// so a schema violation the model corrected on the next round does not
// shift every later position.
func (t CallTrace) Executed() CallTrace {
	out := make(CallTrace, 0, len(t))
	for _, s := range t {
		if s.Error == "" {
			out = append(out, s)
		}
	}
	return out
}
