package fragments

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps fragment names to fragment type descriptors.
//
// Implementations must be safe for concurrent reads. A miss is reported
// through the boolean result, never as an error.
type Registry interface {
	Lookup(name string) (*FragmentType, bool)
}

// StaticRegistry is an immutable Registry. It needs no locking: all
// population happens in a Builder before the registry is published.
type StaticRegistry struct {
	types map[string]*FragmentType
	names []string
}

// Lookup implements Registry.
func (r *StaticRegistry) Lookup(name string) (*FragmentType, bool) {
	if r == nil {
		return nil, false
	}
	ft, ok := r.types[name]
	return ft, ok
}

// Names returns the registered fragment names in sorted order.
func (r *StaticRegistry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of registered fragments.
func (r *StaticRegistry) Len() int {
	return len(r.names)
}

// Builder populates a StaticRegistry. It is the only way to mutate the
// mapping and becomes unusable once Build has been called.
type Builder struct {
	mu    sync.Mutex
	types map[string]*FragmentType
	built bool
}

// NewBuilder creates an empty registry builder.
func NewBuilder() *Builder {
	return &Builder{types: make(map[string]*FragmentType)}
}

// Add registers a fragment type. Fragment names must be unique.
func (b *Builder) Add(ft *FragmentType) error {
	if ft == nil {
		return fmt.Errorf("fragment type cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.built {
		return fmt.Errorf("registry already built; cannot add fragment %s", ft.Name())
	}
	if _, exists := b.types[ft.Name()]; exists {
		return fmt.Errorf("fragment %s already registered", ft.Name())
	}
	b.types[ft.Name()] = ft
	return nil
}

// Build publishes the registry. Later calls to Add fail.
func (b *Builder) Build() *StaticRegistry {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.built = true

	r := &StaticRegistry{
		types: make(map[string]*FragmentType, len(b.types)),
		names: make([]string, 0, len(b.types)),
	}
	for name, ft := range b.types {
		r.types[name] = ft
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r
}

// NewStaticRegistry builds a registry from the given fragment types.
func NewStaticRegistry(types ...*FragmentType) (*StaticRegistry, error) {
	b := NewBuilder()
	for _, ft := range types {
		if err := b.Add(ft); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}
