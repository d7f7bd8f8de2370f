// Package tools holds the tool dispatch table shared by every specialist
// and the building blocks the concrete wrappers under its subpackages are
// made of: function-backed tools, a read-only result cache, result
// serialization and a rate-limited JSON HTTP client.
//
// A tool wrapper performs one external call and normalizes the answer to a
// small flat mapping. Upstream failures never surface as Go errors; they
// are returned as {"error": "..."} results so the model can read them and
// recover.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/ahrav/go-maestro/internal/ports"
)

// HandlerFunc implements a tool body.
type HandlerFunc func(ctx context.Context, inv ports.ToolInvocation) (any, error)

// FuncTool adapts a HandlerFunc to ports.Tool.
type FuncTool struct {
	def      ports.ToolDefinition
	mutating bool
	handler  HandlerFunc
}

var _ ports.Tool = (*FuncTool)(nil)

// Option configures a FuncTool.
type Option func(*FuncTool)

// Mutating marks the tool as having external side effects.
func Mutating() Option {
	return func(t *FuncTool) { t.mutating = true }
}

// New builds a tool from its declaration. schema is the JSON Schema object
// of the arguments.
func New(name, description, schema string, handler HandlerFunc, opts ...Option) *FuncTool {
	t := &FuncTool{
		def: ports.ToolDefinition{
			Name:        name,
			Description: description,
			Parameters:  json.RawMessage(schema),
		},
		handler: handler,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Definition returns the tool declaration.
func (t *FuncTool) Definition() ports.ToolDefinition { return t.def }

// Mutating reports whether the tool has side effects.
func (t *FuncTool) Mutating() bool { return t.mutating }

// Invoke runs the handler.
func (t *FuncTool) Invoke(ctx context.Context, inv ports.ToolInvocation) (any, error) {
	return t.handler(ctx, inv)
}

// Typed adapts fn to a HandlerFunc by decoding the invocation arguments
// into Args. Arguments have been validated against the schema before the
// handler runs, so a decode failure is reported as an error result.
func Typed[Args any](fn func(ctx context.Context, args Args, inv ports.ToolInvocation) any) HandlerFunc {
	return func(ctx context.Context, inv ports.ToolInvocation) (any, error) {
		var args Args
		if len(inv.Arguments) > 0 {
			if err := json.Unmarshal(inv.Arguments, &args); err != nil {
				return ErrorResult(fmt.Errorf("decode arguments: %w", err)), nil
			}
		}
		return fn(ctx, args, inv), nil
	}
}

// ErrorResult is the error-shaped tool result.
func ErrorResult(err error) map[string]any {
	return map[string]any{"error": err.Error()}
}

// IsErrorResult reports whether v is an error-shaped result.
func IsErrorResult(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	_, ok = m["error"]
	return ok
}

// Serialize renders a tool result as conversation text. Strings pass
// through unchanged; everything else is encoded as JSON without HTML
// escaping so URLs and Korean text stay readable.
func Serialize(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.RawMessage:
		return string(s)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprintf(`{"error":%q}`, "unserializable result: "+err.Error())
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}
