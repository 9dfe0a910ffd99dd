package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the configured backends a run dispatches steps to.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Interface
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Interface),
	}
}

// Register makes p available under name, replacing any previous entry.
func (r *Registry) Register(name string, p Interface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Get returns a registered provider.
func (r *Registry) Get(name string) (Interface, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider not loaded: %s", name)
	}
	return p, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
