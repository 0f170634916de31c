package gateway

import (
	"fmt"

	"github.com/anthonyumpad/gobilling/app/models"
)

// Entry pairs a persisted gateway record with its live adapter.
type Entry struct {
	Model   models.Gateway
	Adapter Adapter
}

// Registry is the immutable set of configured gateways, built once at
// startup and passed into the orchestrators. At most one entry may be
// flagged default; when none is, the first registered entry is the default.
type Registry struct {
	entries []Entry
	byName  map[string]Entry
}

// NewRegistry builds a registry from the given entries.
func NewRegistry(entries ...Entry) (*Registry, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("gateway registry requires at least one gateway")
	}

	byName := make(map[string]Entry, len(entries))
	defaults := 0
	for _, e := range entries {
		if e.Adapter == nil {
			return nil, fmt.Errorf("gateway %q has no adapter", e.Model.Name)
		}
		if _, exists := byName[e.Model.Name]; exists {
			return nil, fmt.Errorf("duplicate gateway %q", e.Model.Name)
		}
		if e.Model.IsDefault {
			defaults++
		}
		byName[e.Model.Name] = e
	}
	if defaults > 1 {
		return nil, fmt.Errorf("more than one gateway flagged default")
	}

	return &Registry{entries: entries, byName: byName}, nil
}

// Default returns the default gateway: the entry flagged default, else the
// first registered entry.
func (r *Registry) Default() Entry {
	for _, e := range r.entries {
		if e.Model.IsDefault {
			return e
		}
	}
	return r.entries[0]
}

// Get looks a gateway up by name.
func (r *Registry) Get(name string) (Entry, bool) {
	e, ok := r.byName[name]
	return e, ok
}

// Resolve returns the named gateway, or the default when name is empty.
func (r *Registry) Resolve(name string) (Entry, error) {
	if name == "" {
		return r.Default(), nil
	}
	e, ok := r.byName[name]
	if !ok {
		return Entry{}, fmt.Errorf("the gateway %q is not registered", name)
	}
	return e, nil
}

// Entries returns all registered gateways in registration order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
