package fragments

import (
	"fmt"
	"sort"
)

// ValueType is the declared type of a configuration field value.
type ValueType string

const (
	ValueTypeLabel      ValueType = "label"
	ValueTypeLabelList  ValueType = "label_list"
	ValueTypeString     ValueType = "string"
	ValueTypeStringList ValueType = "string_list"
	ValueTypeBool       ValueType = "bool"
	ValueTypeInt        ValueType = "int"
)

// Valid reports whether t is one of the known value types.
func (t ValueType) Valid() bool {
	switch t {
	case ValueTypeLabel, ValueTypeLabelList, ValueTypeString, ValueTypeStringList, ValueTypeBool, ValueTypeInt:
		return true
	}
	return false
}

// Visibility controls whether rule code may reference a field.
type Visibility string

const (
	// VisibilityPublic fields can be bound with configuration_field.
	VisibilityPublic Visibility = "public"

	// VisibilityPrivate fields are declared on the fragment but are not
	// reachable from rule definitions.
	VisibilityPrivate Visibility = "private"
)

// Accessor extracts a field value from a live fragment instance.
// The boolean result is false when the instance carries no value.
type Accessor func(inst Instance) (any, bool)

// Field describes a single resolvable value of a fragment type.
type Field struct {
	// Name is the exact, case-sensitive field name.
	Name string

	// Type is the declared value type.
	Type ValueType

	// Visibility decides whether the field is accessible.
	Visibility Visibility

	// Doc is a human-readable description.
	Doc string

	// DefaultLabel is used when an instance has no value for the field.
	DefaultLabel string

	// DefaultInToolsRepository places DefaultLabel in the tools repository.
	DefaultInToolsRepository bool

	// Accessor reads the value from an instance. Nil means the generic
	// accessor, which reads Instance.Value(Name).
	Accessor Accessor
}

// Public reports whether the field is accessible to rule definitions.
func (f *Field) Public() bool {
	return f.Visibility == "" || f.Visibility == VisibilityPublic
}

// Get applies the field accessor to inst.
func (f *Field) Get(inst Instance) (any, bool) {
	if f.Accessor != nil {
		return f.Accessor(inst)
	}
	return inst.Value(f.Name)
}

// FragmentType is the descriptor of a configuration fragment type.
// It is immutable once built; use a Builder to create one.
type FragmentType struct {
	name   string
	doc    string
	fields map[string]*Field
	order  []string
}

// NewFragmentType creates a fragment type with the given declared fields.
// Field names must be unique and non-empty.
func NewFragmentType(name, doc string, fields ...Field) (*FragmentType, error) {
	if name == "" {
		return nil, fmt.Errorf("fragment name cannot be empty")
	}

	ft := &FragmentType{
		name:   name,
		doc:    doc,
		fields: make(map[string]*Field, len(fields)),
		order:  make([]string, 0, len(fields)),
	}

	for i := range fields {
		f := fields[i]
		if f.Name == "" {
			return nil, fmt.Errorf("fragment %s: field name cannot be empty", name)
		}
		if _, exists := ft.fields[f.Name]; exists {
			return nil, fmt.Errorf("fragment %s: duplicate field %s", name, f.Name)
		}
		if f.Type == "" {
			f.Type = ValueTypeLabel
		}
		if !f.Type.Valid() {
			return nil, fmt.Errorf("fragment %s: field %s has unknown type %q", name, f.Name, f.Type)
		}
		if f.Visibility == "" {
			f.Visibility = VisibilityPublic
		}
		ft.fields[f.Name] = &f
		ft.order = append(ft.order, f.Name)
	}
	sort.Strings(ft.order)

	return ft, nil
}

// MustFragmentType is like NewFragmentType but panics on error. Use only for
// constants and tests.
func MustFragmentType(name, doc string, fields ...Field) *FragmentType {
	ft, err := NewFragmentType(name, doc, fields...)
	if err != nil {
		panic(err)
	}
	return ft
}

// Name returns the stable fragment name.
func (ft *FragmentType) Name() string {
	return ft.name
}

// Doc returns the fragment description.
func (ft *FragmentType) Doc() string {
	return ft.doc
}

// Field returns the declared field with exactly the given name.
// The returned pointer must not be modified.
func (ft *FragmentType) Field(name string) (*Field, bool) {
	f, ok := ft.fields[name]
	return f, ok
}

// FieldNames returns the declared field names in sorted order.
func (ft *FragmentType) FieldNames() []string {
	out := make([]string, len(ft.order))
	copy(out, ft.order)
	return out
}

// Fields returns copies of the declared fields in name order.
func (ft *FragmentType) Fields() []Field {
	out := make([]Field, 0, len(ft.order))
	for _, name := range ft.order {
		out = append(out, *ft.fields[name])
	}
	return out
}

// String implements fmt.Stringer.
func (ft *FragmentType) String() string {
	return ft.name
}
