package ports

import (
	"context"
	"encoding/json"
)

// ToolInvocation carries the inputs of a single tool call.
type ToolInvocation struct {
	// Arguments is the schema-validated JSON object from the model.
	Arguments json.RawMessage

	// Depth is the delegation depth of the agent making the call. Tools that
	// delegate to another agent pass Depth+1 down.
	Depth int

	// Today is the turn's current-date context, e.g. "2025-08-14 (목)".
	Today string
}

// Tool is a typed callable wrapping one operation, exposed to a model via
// its definition.
type Tool interface {
	// Definition returns the name, description and JSON schema of the tool.
	Definition() ToolDefinition

	// Invoke runs the tool. Upstream failures should be returned as an
	// error-shaped result such as {"error": "..."} rather than as a Go
	// error; a returned error means the call could not be attempted.
	Invoke(ctx context.Context, inv ToolInvocation) (any, error)

	// Mutating reports whether the tool has external side effects. Mutating
	// tools are never cached or retried.
	Mutating() bool
}
