package registry

import (
	"log/slog"
	"sort"
	"sync"
)

// Registry is the thread-safe action catalog.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]*ActionDefinition
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{actions: make(map[string]*ActionDefinition)}
}

// Register installs a definition. Registration is idempotent by name: a
// second definition with the same name is ignored, keeping the first
// immutable.
func (r *Registry) Register(def *ActionDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actions[def.Name]; exists {
		slog.Debug("Action already registered, keeping existing definition", "action", def.Name)
		return
	}
	r.actions[def.Name] = def
}

// Get returns the definition for name, or nil.
func (r *Registry) Get(name string) *ActionDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.actions[name]
}

// ByCategory returns all definitions in a category, sorted by name.
func (r *Registry) ByCategory(cat Category) []*ActionDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var defs []*ActionDefinition
	for _, def := range r.actions {
		if def.Category == cat {
			defs = append(defs, def)
		}
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// All returns every definition, sorted by name.
func (r *Registry) All() []*ActionDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]*ActionDefinition, 0, len(r.actions))
	for _, def := range r.actions {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Schemas returns the input schema of every action, keyed by name.
func (r *Registry) Schemas() map[string]InputSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]InputSchema, len(r.actions))
	for name, def := range r.actions {
		out[name] = def.InputSchema
	}
	return out
}
