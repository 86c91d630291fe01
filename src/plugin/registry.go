package plugin

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps plugin names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under a name. Registering the same name twice is
// a programming error and panics.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		panic(fmt.Sprintf("plugin %q registered twice", name))
	}
	r.factories[name] = factory
}

// Get returns the factory registered under name.
func (r *Registry) Get(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, exists := r.factories[name]
	if !exists {
		return nil, fmt.Errorf("unknown plugin %q", name)
	}
	return factory, nil
}

// Names returns all registered plugin names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve binds an ordered list of plugin configs to their factories.
// It fails on the first unknown name so a misconfigured build file is
// rejected before any stage runs.
func (r *Registry) Resolve(configs []Config) ([]Resolved, error) {
	resolved := make([]Resolved, 0, len(configs))
	for _, config := range configs {
		factory, err := r.Get(config.Name)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, Resolved{
			Name:    config.Name,
			Options: config.Options,
			Factory: factory,
		})
	}
	return resolved, nil
}

// DefaultRegistry holds the plugins compiled into this binary.
var DefaultRegistry = NewRegistry()

func init() {
	DefaultRegistry.Register("shell", NewShell)
}
