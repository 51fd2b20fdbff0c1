package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Spec describes one adapter instance in a suite file.
type Spec struct {
	Name     string   `yaml:"name" json:"name"`
	Kind     string   `yaml:"kind" json:"kind"`
	Operator string   `yaml:"operator,omitempty" json:"operator,omitempty"`
	Workers  int      `yaml:"workers,omitempty" json:"workers,omitempty"`
	Binary   string   `yaml:"binary,omitempty" json:"binary,omitempty"`
	Args     []string `yaml:"args,omitempty" json:"args,omitempty"`
	Env      []string `yaml:"env,omitempty" json:"env,omitempty"`
}

// Factory builds an adapter from its spec.
type Factory func(spec Spec, logger *slog.Logger) (Adapter, error)

// Registry maps adapter kinds to factories. Backends register themselves
// on a registry the caller owns; there is no package-level registry.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory for kind.
func (r *Registry) Register(kind string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[kind]; ok {
		return fmt.Errorf("engine kind %q already registered", kind)
	}

	r.factories[kind] = f

	return nil
}

// Build constructs the adapter described by spec.
func (r *Registry) Build(spec Spec, logger *slog.Logger) (Adapter, error) {
	r.mu.RLock()
	f, ok := r.factories[spec.Kind]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown engine kind %q (known: %v)", spec.Kind, r.Kinds())
	}

	adapter, err := f(spec, logger)
	if err != nil {
		return nil, fmt.Errorf("build engine %s: %w", spec.Name, err)
	}

	return adapter, nil
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}

	sort.Strings(kinds)

	return kinds
}
