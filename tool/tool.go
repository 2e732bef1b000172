// Package tool implements the tool calling subsystem: declarations that
// describe each capability to the model (name, family, write flag, result
// volatility, JSON schema), a registry the dispatcher consults, and schema
// validation of arguments before any call reaches an upstream.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/couchpilot/couchpilot/core"
)

// Declaration describes one callable tool.
//
// Family groups tools that share an upstream service so that failure
// isolation and concurrency limits apply per upstream rather than per tool.
// IsWrite marks tools with side effects; the engine orders those behind all
// reads in the same batch. Volatility classifies how long a result stays
// representative, which drives the cache TTL.
type Declaration struct {
	Name        string
	Family      string
	Description string
	IsWrite     bool
	Volatility  core.Volatility

	// Schema is the JSON schema for the tool's arguments, in the draft-07
	// shape model providers consume.
	Schema map[string]any
}

// Handler executes a tool call with validated arguments.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Invoker is the boundary between the engine and whatever actually performs
// tool calls. The engine never talks to an upstream directly.
type Invoker interface {
	Invoke(ctx context.Context, call core.ToolCall) (any, error)
}

// Registry holds tool declarations and their handlers. Safe for concurrent
// reads after registration.
type Registry struct {
	mu       sync.RWMutex
	decls    map[string]Declaration
	handlers map[string]Handler
	schemas  map[string]*jsonschema.Schema
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		decls:    make(map[string]Declaration),
		handlers: make(map[string]Handler),
		schemas:  make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool declaration with its handler. The declaration's
// schema is compiled once at registration; invalid schemas are rejected
// here rather than at call time.
func (r *Registry) Register(decl Declaration, handler Handler) error {
	if decl.Name == "" {
		return fmt.Errorf("tool declaration missing name")
	}
	if decl.Family == "" {
		return fmt.Errorf("tool %s missing family", decl.Name)
	}

	var compiled *jsonschema.Schema
	if decl.Schema != nil {
		raw, err := json.Marshal(decl.Schema)
		if err != nil {
			return fmt.Errorf("tool %s: marshal schema: %w", decl.Name, err)
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(decl.Name+".json", strings.NewReader(string(raw))); err != nil {
			return fmt.Errorf("tool %s: add schema: %w", decl.Name, err)
		}
		compiled, err = c.Compile(decl.Name + ".json")
		if err != nil {
			return fmt.Errorf("tool %s: compile schema: %w", decl.Name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.decls[decl.Name]; exists {
		return fmt.Errorf("tool %s already registered", decl.Name)
	}
	r.decls[decl.Name] = decl
	r.handlers[decl.Name] = handler
	if compiled != nil {
		r.schemas[decl.Name] = compiled
	}
	return nil
}

// Get returns the declaration for name.
func (r *Registry) Get(name string) (Declaration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.decls[name]
	return d, ok
}

// Declarations returns all registered declarations sorted by name, the
// order in which they are offered to the model.
func (r *Registry) Declarations() []Declaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Declaration, 0, len(r.decls))
	for _, d := range r.decls {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ValidateArgs checks raw JSON arguments against the tool's schema and
// returns the decoded argument map. Schema violations come back as a
// core.ValidationError, which the engine never retries.
func (r *Registry) ValidateArgs(name string, raw json.RawMessage) (map[string]any, error) {
	r.mu.RLock()
	schema := r.schemas[name]
	_, known := r.decls[name]
	r.mu.RUnlock()

	if !known {
		return nil, &core.ValidationError{Tool: name, Detail: "unknown tool"}
	}

	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, &core.ValidationError{Tool: name, Detail: "arguments are not a JSON object: " + err.Error()}
	}

	if schema != nil {
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, &core.ValidationError{Tool: name, Detail: err.Error()}
		}
		if err := schema.Validate(doc); err != nil {
			return nil, &core.ValidationError{Tool: name, Detail: err.Error()}
		}
	}
	return args, nil
}

// Invoke validates arguments and runs the tool's handler. It implements
// Invoker so the registry can serve as the default execution boundary.
func (r *Registry) Invoke(ctx context.Context, call core.ToolCall) (any, error) {
	args, err := r.ValidateArgs(call.Name, call.Args)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	handler := r.handlers[call.Name]
	r.mu.RUnlock()
	if handler == nil {
		return nil, &core.ValidationError{Tool: call.Name, Detail: "no handler registered"}
	}
	return handler(ctx, args)
}

// Resolve turns a model-issued function call into a fully attributed
// core.ToolCall, stamping family, write flag and volatility from the
// declaration. Unknown tool names yield a core.ValidationError.
func (r *Registry) Resolve(fc core.FunctionCall) (core.ToolCall, error) {
	decl, ok := r.Get(fc.Name)
	if !ok {
		return core.ToolCall{}, &core.ValidationError{Tool: fc.Name, Detail: "unknown tool"}
	}
	args := json.RawMessage(fc.Arguments)
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	return core.ToolCall{
		ID:         fc.ID,
		Name:       decl.Name,
		Family:     decl.Family,
		Args:       args,
		IsWrite:    decl.IsWrite,
		Volatility: decl.Volatility,
	}, nil
}
