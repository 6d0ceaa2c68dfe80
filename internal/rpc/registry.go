package rpc

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Handler executes one method with validated parameters.
type Handler func(ctx context.Context, p Params) (any, error)

// Method is one registered RPC method.
type Method struct {
	Name     string
	Category string // documentation grouping; the namespace is flat
	Schema   Schema
	Handler  Handler
}

// Registry is the flat method table.
type Registry struct {
	mu      sync.RWMutex
	methods map[string]*Method
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{methods: make(map[string]*Method)}
}

// Register binds a method. A duplicate name is a wiring bug and fails.
func (r *Registry) Register(m *Method) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.methods[m.Name]; exists {
		return fmt.Errorf("method %q already registered", m.Name)
	}
	r.methods[m.Name] = m
	return nil
}

// mustRegister panics on duplicate registration; used by the built-in table.
func (r *Registry) mustRegister(m *Method) {
	if err := r.Register(m); err != nil {
		panic(err)
	}
}

// Get returns the method, or nil.
func (r *Registry) Get(name string) *Method {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.methods[name]
}

// List returns all method names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.methods))
	for name := range r.methods {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Categories returns method names grouped by category.
func (r *Registry) Categories() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]string)
	for name, m := range r.methods {
		out[m.Category] = append(out[m.Category], name)
	}
	for _, names := range out {
		sort.Strings(names)
	}
	return out
}
