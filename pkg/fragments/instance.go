package fragments

// Instance is a live configuration fragment materialized for one build
// configuration.
type Instance interface {
	// FragmentName returns the name of the fragment type this instance belongs to.
	FragmentName() string

	// Value returns the value stored for field, if any.
	Value(field string) (any, bool)
}

// MapInstance is an Instance backed by a map of field values.
type MapInstance struct {
	name   string
	values map[string]any
}

// NewMapInstance creates an instance of the named fragment holding a copy of values.
func NewMapInstance(name string, values map[string]any) *MapInstance {
	cp := make(map[string]any, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return &MapInstance{name: name, values: cp}
}

// FragmentName implements Instance.
func (m *MapInstance) FragmentName() string {
	return m.name
}

// Value implements Instance.
func (m *MapInstance) Value(field string) (any, bool) {
	v, ok := m.values[field]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}
