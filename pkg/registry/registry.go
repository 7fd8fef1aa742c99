// Package registry provides thread-safe registration and lookup of named
// storage backends. The HTTP layer resolves the backend segment of every
// route through a Registry.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/meeplabs/docstore/pkg/storage"
)

// ErrUnknownBackend is returned when a lookup names a backend that was never
// registered. The HTTP layer maps it to 404.
var ErrUnknownBackend = errors.New("unknown backend")

// Registry maps backend names to their configured stores.
//
// Example usage:
//
//	reg := registry.New()
//	reg.Register("s3", s3Store)
//	reg.Register("local", localStore)
//
//	store, _ := reg.Get("s3")
type Registry struct {
	mu     sync.RWMutex
	stores map[string]*storage.Store
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		stores: make(map[string]*storage.Store),
	}
}

// Register adds a named store. Returns an error if a store with the same
// name already exists.
func (r *Registry) Register(name string, store *storage.Store) error {
	if store == nil {
		return fmt.Errorf("cannot register nil store")
	}
	if name == "" {
		return fmt.Errorf("cannot register store with empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stores[name]; exists {
		return fmt.Errorf("store %q already registered", name)
	}

	r.stores[name] = store
	return nil
}

// Get returns the store registered under name.
func (r *Registry) Get(name string) (*storage.Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	store, ok := r.stores[name]
	if !ok {
		return nil, fmt.Errorf("backend %q: %w", name, ErrUnknownBackend)
	}
	return store, nil
}

// Names returns the registered backend names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.stores))
	for name := range r.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
