package sites

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ajitpratap0/thor/pkg/errors"
)

// Factory creates an adapter instance.
type Factory func(opts Options) Adapter

// Registry maps site names to adapter factories.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

var globalRegistry = NewRegistry()

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name
func (r *Registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("site %s already registered", name))
	}
	r.factories[name] = factory
	return nil
}

// New creates the adapter registered under name
func (r *Registry) New(name string, opts Options) (Adapter, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("site %s not found", name)).
			WithDetail("registered", r.List())
	}
	return factory(opts), nil
}

// List returns the registered names in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[name]
	return exists
}

// Register adds a factory to the global registry. Adapters call it from
// init and panic on a duplicate name.
func Register(name string, factory Factory) {
	if err := globalRegistry.Register(name, factory); err != nil {
		panic(err)
	}
}

// New creates an adapter from the global registry
func New(name string, opts Options) (Adapter, error) {
	return globalRegistry.New(name, opts)
}

// List returns the globally registered site names
func List() []string {
	return globalRegistry.List()
}

// Has checks the global registry
func Has(name string) bool {
	return globalRegistry.Has(name)
}
