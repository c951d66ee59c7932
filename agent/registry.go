package agent

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/roundtable/core"
)

// Registry maps actor names to implementations. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	actors map[string]core.Actor
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{actors: make(map[string]core.Actor)}
}

// Register adds an actor. Duplicate names are rejected.
func (r *Registry) Register(a core.Actor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actors[a.Name()]; exists {
		return fmt.Errorf("actor %q already registered", a.Name())
	}
	r.actors[a.Name()] = a
	return nil
}

// Get looks up an actor by name.
func (r *Registry) Get(name string) (core.Actor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actors[name]
	return a, ok
}

// Names returns the registered actor names sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.actors))
	for n := range r.actors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Actors resolves a name list to actors, failing on the first unknown name.
func (r *Registry) Actors(names ...string) ([]core.Actor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Actor, 0, len(names))
	for _, n := range names {
		a, ok := r.actors[n]
		if !ok {
			return nil, fmt.Errorf("unknown actor %q", n)
		}
		out = append(out, a)
	}
	return out, nil
}
