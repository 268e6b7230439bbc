package chain

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// ErrDuplicate is returned when registering a chain ID twice.
var ErrDuplicate = errors.New("chain: already registered")

// Registry maps chain IDs to their clients.
type Registry struct {
	mu     sync.RWMutex
	chains map[string]Chain
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{chains: make(map[string]Chain)}
}

// Register adds c under c.ID().
func (r *Registry) Register(c Chain) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.chains[c.ID()]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicate, c.ID())
	}
	r.chains[c.ID()] = c
	return nil
}

// Get looks up a chain by ID.
func (r *Registry) Get(id string) (Chain, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chains[id]
	return c, ok
}

// IDs returns the registered IDs in order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.chains))
}
