package mcp

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ToolHandler executes one tool invocation. Handlers receive the raw argument
// mapping and are responsible for their own validation; the input schema is
// advisory documentation for the model, not something the dispatcher enforces.
// A handler signals failure by returning an error or an error-flagged result;
// it must tolerate absent optional keys.
type ToolHandler func(ctx context.Context, args map[string]any) (CallResult, error)

// Registry associates tool definitions with their handlers. Each tool is
// registered exactly once; List exposes the definitions in insertion order.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	handlers map[string]ToolHandler
	defs     map[string]ToolDefinition
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]ToolHandler),
		defs:     make(map[string]ToolDefinition),
	}
}

// Register adds a tool. Duplicate names and nil handlers are rejected.
func (r *Registry) Register(def ToolDefinition, handler ToolHandler) error {
	name := strings.TrimSpace(def.Name)
	if name == "" {
		return fmt.Errorf("mcp: tool name is required")
	}
	if handler == nil {
		return fmt.Errorf("mcp: tool %s has no handler", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("mcp: tool %s already registered", name)
	}
	r.order = append(r.order, name)
	r.handlers[name] = handler
	r.defs[name] = def
	return nil
}

// List returns the registered definitions in registration order.
func (r *Registry) List() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.defs[name])
	}
	return defs
}

// Dispatch looks up the handler by exact name match and runs it. Every
// failure mode (unknown name, handler error, handler panic) is absorbed
// into an error-flagged result so a single bad call can never take the server
// down.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (result CallResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = ErrorResult(fmt.Sprintf("tool %s panicked: %v", name, rec))
		}
	}()

	r.mu.RLock()
	handler := r.handlers[name]
	r.mu.RUnlock()

	if handler == nil {
		return ErrorResult(fmt.Sprintf("unknown tool: %s", name))
	}

	res, err := handler(ctx, args)
	if err != nil {
		return ErrorResult(err.Error())
	}
	return res
}
