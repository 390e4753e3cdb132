package ktopology

import (
	"fmt"

	"github.com/birdayz/socflow/kstage"
)

// Registry maps catalog entries to their constructors. Constructors are
// always visited in catalog order, whatever order they were registered in.
type Registry struct {
	constructors map[kstage.ID]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: map[kstage.ID]Constructor{}}
}

// DefaultRegistry returns a registry holding a constructor for every catalog
// entry.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, c := range builtins() {
		// Every builtin is a catalog entry.
		_ = r.Register(c)
	}
	return r
}

// Register sets the constructor of c's catalog entry, replacing any
// constructor registered before.
func (r *Registry) Register(c Constructor) error {
	id := c.Spec().ID
	if kstage.Order(id) < 0 {
		return fmt.Errorf("stage %q is not part of the catalog", id)
	}
	r.constructors[id] = c
	return nil
}

// Lookup returns the constructor registered for id.
func (r *Registry) Lookup(id kstage.ID) (Constructor, bool) {
	c, ok := r.constructors[id]
	return c, ok
}

// Constructors returns the registered constructors in catalog order.
func (r *Registry) Constructors() []Constructor {
	var res []Constructor
	for _, s := range kstage.Catalog() {
		if c, ok := r.constructors[s.ID]; ok {
			res = append(res, c)
		}
	}
	return res
}
