package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/Shahrukh072/ai-backend/model"
)

// Registry is a thread-safe collection of tools keyed by name. It converts
// registered tools into model-facing function declarations and dispatches
// model-issued calls to the matching implementation.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds a tool to the registry. Registering a tool with an existing
// name replaces the previous registration.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns the tool registered under name, or nil if none exists.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns the sorted names of all registered tools.
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

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Definitions returns function declarations for every registered tool, sorted
// by name so the model sees a stable ordering across turns.
func (r *Registry) Definitions() []model.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]model.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute looks up a tool by name, decodes the JSON argument payload and
// invokes the tool. The result is rendered as a string for inclusion in the
// conversation: string results pass through, everything else is JSON encoded.
func (r *Registry) Execute(ctx context.Context, name, argsJSON string) (string, error) {
	t := r.Get(name)
	if t == nil {
		return "", NewToolError(name, fmt.Sprintf("no tool registered under %q", name), CodeUnknownTool)
	}

	args := map[string]any{}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", NewToolError(name, fmt.Sprintf("malformed arguments: %v", err), CodeInvalidArguments)
		}
	}

	result, err := t.Call(ctx, args)
	if err != nil {
		return "", err
	}

	switch v := result.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", NewToolError(name, fmt.Sprintf("unserializable result: %v", err), CodeExecutionError)
		}
		return string(encoded), nil
	}
}
