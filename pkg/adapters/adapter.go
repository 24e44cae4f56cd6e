// Package adapters binds action execution to downstream systems: chat,
// email, issue tracking, workflow automation, monitoring, and security
// scanning. Every constructor degrades to a deterministic mock when its
// credentials are unset so the engine stays testable without live
// integrations.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrAdapterUnavailable means an action referenced an adapter identifier
// with no registered implementation. Fail-fast; there is no fallback.
var ErrAdapterUnavailable = errors.New("adapter unavailable")

// Adapter executes one downstream operation.
type Adapter interface {
	Name() string
	Execute(ctx context.Context, input map[string]any) (map[string]any, error)
}

// Set is a thread-safe adapter registry keyed by identifier.
type Set struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewSet creates an empty adapter set.
func NewSet() *Set {
	return &Set{adapters: make(map[string]Adapter)}
}

// Register installs an adapter under its own name, replacing any previous
// registration.
func (s *Set) Register(a Adapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adapters[a.Name()] = a
}

// Resolve returns the adapter registered under name.
func (s *Set) Resolve(name string) (Adapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAdapterUnavailable, name)
	}
	return a, nil
}

// Names returns the registered adapter identifiers.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.adapters))
	for name := range s.adapters {
		names = append(names, name)
	}
	return names
}

// MockAdapter returns deterministic stub results keyed off its name. Used
// when an adapter's credentials are unset, and directly in tests.
type MockAdapter struct {
	name string
}

// Mock creates a mock adapter with the given identifier.
func Mock(name string) *MockAdapter {
	return &MockAdapter{name: name}
}

func (m *MockAdapter) Name() string { return m.name }

// Execute returns a stable stub result echoing the input keys. The id is
// derived from the adapter name so repeated runs are comparable.
func (m *MockAdapter) Execute(_ context.Context, input map[string]any) (map[string]any, error) {
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return map[string]any{
		"status":     "ok",
		"mock":       true,
		"adapter":    m.name,
		"id":         "mock-" + m.name + "-0001",
		"input_keys": keys,
	}, nil
}
