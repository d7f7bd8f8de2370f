package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/ahrav/go-maestro/internal/domain"
	"github.com/ahrav/go-maestro/internal/ports"
)

// entry is one row of the dispatch table: the tool and its compiled
// argument schema.
type entry struct {
	tool   ports.Tool
	schema *gojsonschema.Schema
}

// Registry is a name-keyed dispatch table. Every call is validated against
// the tool's JSON schema before its handler runs. A Registry is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	order   []string
}

// NewRegistry creates a registry holding tools.
func NewRegistry(tools ...ports.Tool) (*Registry, error) {
	r := &Registry{entries: make(map[string]entry)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds t. Names must be unique and schemas must compile.
func (r *Registry) Register(t ports.Tool) error {
	def := t.Definition()
	if def.Name == "" {
		return fmt.Errorf("register tool: %w: name", domain.ErrEmptyValue)
	}

	params := def.Parameters
	if len(params) == 0 {
		params = json.RawMessage(`{"type":"object","properties":{}}`)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(params))
	if err != nil {
		return fmt.Errorf("register tool %s: invalid schema: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[def.Name]; exists {
		return fmt.Errorf("register tool %s: duplicate name", def.Name)
	}
	r.entries[def.Name] = entry{tool: t, schema: schema}
	r.order = append(r.order, def.Name)
	return nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (ports.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.tool, ok
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Definitions returns the declarations of every tool in registration
// order, ready to be offered to a model.
func (r *Registry) Definitions() []ports.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]ports.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.entries[name].tool.Definition())
	}
	return defs
}

// Subset builds a registry with the named tools, in the given order.
func (r *Registry) Subset(names ...string) (*Registry, error) {
	sub := &Registry{entries: make(map[string]entry, len(names))}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range names {
		e, ok := r.entries[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTool, name)
		}
		if _, dup := sub.entries[name]; dup {
			return nil, fmt.Errorf("tool %s listed twice", name)
		}
		sub.entries[name] = e
		sub.order = append(sub.order, name)
	}
	return sub, nil
}

// Validate checks args against the named tool's schema. Violations are
// reported as a *domain.ArgumentError listing every problem.
func (r *Registry) Validate(name string, args json.RawMessage) error {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownTool, name)
	}
	return validateArguments(name, e.schema, args)
}

// Dispatch validates call against its tool's schema and invokes it.
// Unknown tools wrap domain.ErrUnknownTool and invalid arguments return a
// *domain.ArgumentError; in both cases the handler does not run.
func (r *Registry) Dispatch(ctx context.Context, call domain.ToolCall, inv ports.ToolInvocation) (any, error) {
	r.mu.RLock()
	e, ok := r.entries[call.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTool, call.Name)
	}

	args := call.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := validateArguments(call.Name, e.schema, args); err != nil {
		return nil, err
	}

	inv.Arguments = args
	return e.tool.Invoke(ctx, inv)
}

func validateArguments(name string, schema *gojsonschema.Schema, args json.RawMessage) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return &domain.ArgumentError{Tool: name, Problems: []string{"arguments are not a JSON object"}}
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	sort.Strings(problems)
	return &domain.ArgumentError{Tool: name, Problems: problems}
}
