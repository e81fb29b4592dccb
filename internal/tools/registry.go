// Package tools implements the tool dispatch registry exposed to the LLM
// backends. Handlers return JSON strings; failures are folded into JSON error
// envelopes so the dialog loop always gets a tool result to hand back.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Handler executes a tool call. Input is the validated JSON arguments object.
// The returned string is passed verbatim to the model as the tool result.
type Handler func(ctx context.Context, input json.RawMessage) (string, error)

// Definition describes a registered tool for the model.
type Definition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

type entry struct {
	def     Definition
	schema  *jsonschema.Schema
	handler Handler
}

// Registry maps tool names to handlers. Registration happens at startup;
// Dispatch is safe for concurrent use afterwards.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds a tool. The input schema is compiled once here so malformed
// schemas fail at startup, not at call time. Registering a duplicate name is
// an error.
func (r *Registry) Register(name, description string, inputSchema json.RawMessage, handler Handler) error {
	if name == "" {
		return fmt.Errorf("tool name required")
	}
	if handler == nil {
		return fmt.Errorf("tool %s: handler required", name)
	}
	schema, err := jsonschema.CompileString(name+".schema.json", string(inputSchema))
	if err != nil {
		return fmt.Errorf("tool %s: compile schema: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("tool %s: already registered", name)
	}
	r.entries[name] = &entry{
		def:     Definition{Name: name, Description: description, InputSchema: inputSchema},
		schema:  schema,
		handler: handler,
	}
	r.order = append(r.order, name)
	return nil
}

// Definitions returns all tool definitions in registration order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.entries[name].def)
	}
	return defs
}

// Dispatch runs the named tool and always returns a JSON string. Unknown
// names, invalid input, and handler failures produce error envelopes instead
// of Go errors so the dialog loop can report them to the model.
func (r *Registry) Dispatch(ctx context.Context, name string, input json.RawMessage) string {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return errorEnvelope(fmt.Sprintf("Unknown tool: %s", name))
	}

	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	var decoded any
	if err := json.Unmarshal(input, &decoded); err != nil {
		return errorEnvelope(fmt.Sprintf("Tool %s failed: invalid input: %v", name, err))
	}
	if err := e.schema.Validate(decoded); err != nil {
		return errorEnvelope(fmt.Sprintf("Tool %s failed: %v", name, err))
	}

	result, err := e.handler(ctx, input)
	if err != nil {
		return errorEnvelope(fmt.Sprintf("Tool %s failed: %v", name, err))
	}
	return result
}

func errorEnvelope(msg string) string {
	payload, _ := json.Marshal(map[string]string{"error": msg})
	return string(payload)
}
