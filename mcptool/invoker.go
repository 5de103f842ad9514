// ABOUTME: Tool invocation contract shared by every pipeline step: a named call
// ABOUTME: with a map of arguments, returning a fixed {text, isError} envelope.
package mcptool

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Result is the fixed envelope every tool call resolves to. IsError marks a
// tool-level failure; transport failures are returned as Go errors instead.
type Result struct {
	Text    string
	IsError bool
}

// Invoker executes a named tool with JSON-compatible arguments.
type Invoker interface {
	Invoke(ctx context.Context, tool string, args map[string]any) (Result, error)
}

// Router dispatches tool calls to a registered invoker by tool name, falling
// back to a default. It reproduces a deployment where creative and renderer
// tools live on separate servers behind one invocation surface.
type Router struct {
	mu       sync.RWMutex
	byTool   map[string]Invoker
	fallback Invoker
}

// NewRouter creates a Router with the given default invoker. The default may
// be nil if every tool is explicitly routed.
func NewRouter(fallback Invoker) *Router {
	return &Router{
		byTool:   make(map[string]Invoker),
		fallback: fallback,
	}
}

// Route directs all the named tools to the given invoker.
func (r *Router) Route(inv Invoker, tools ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tools {
		r.byTool[t] = inv
	}
}

// Invoke dispatches to the invoker registered for the tool name, or the
// default. An unroutable tool is a transport-level error.
func (r *Router) Invoke(ctx context.Context, tool string, args map[string]any) (Result, error) {
	r.mu.RLock()
	inv, ok := r.byTool[tool]
	if !ok {
		inv = r.fallback
	}
	r.mu.RUnlock()

	if inv == nil {
		return Result{}, fmt.Errorf("no invoker routes tool %q (known: %s)", tool, r.knownTools())
	}
	return inv.Invoke(ctx, tool, args)
}

func (r *Router) knownTools() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byTool))
	for t := range r.byTool {
		names = append(names, t)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}
