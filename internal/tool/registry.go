// Package tool defines the tool registry and the executor that runs
// model-requested tool calls with per-session result caching.
package tool

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tyrz939/dehum-assistant/internal/provider"
	"github.com/tyrz939/dehum-assistant/internal/session"
)

// Handler executes one tool call. The returned value must be
// JSON-serializable; domain validation failures belong in the result, not in
// err. A non-nil err marks an execution failure that is still reported back
// to the model as a structured error result.
type Handler func(ctx context.Context, args map[string]any, sess *session.Session) (any, error)

// Definition binds a tool schema to its handler. Cacheable tools memoize
// results per session keyed by canonical arguments.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
	Cacheable   bool
	Handler     Handler
}

// Registry holds the available tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Definition)}
}

// Register adds or replaces a tool definition.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %s has no handler", def.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[def.Name] = def
	return nil
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// Names returns registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the provider-facing tool schemas, sorted by name.
func (r *Registry) Definitions() []provider.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]provider.Tool, 0, len(r.tools))
	for _, def := range r.tools {
		out = append(out, provider.Tool{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.Parameters,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
