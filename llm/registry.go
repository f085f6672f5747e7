package llm

import (
	"sort"
	"sync"

	"github.com/weftflow/weft/types"
)

// Registry is a thread-safe mapping from provider identifier to Adapter.
//
// It is an explicit value constructed at startup and passed into Compile and
// Execute rather than process-global state. Registration must complete before
// any workflow referencing a provider compiles; the registry is read-only
// during a run.
type Registry struct {
	adapters map[string]Adapter
	mu       sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
	}
}

// Register adds an adapter to the registry under the given provider name.
// If an adapter with the same name already exists, it is replaced.
func (r *Registry) Register(name string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[name] = a
}

// Get retrieves an adapter by provider name.
// An unregistered provider yields a types.ErrUnknownProvider error.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, types.Errorf(types.ErrUnknownProvider, "provider %q not registered", name).WithProvider(name)
	}
	return a, nil
}

// Has reports whether a provider name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.adapters[name]
	return ok
}

// List returns the sorted names of all registered providers.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}
