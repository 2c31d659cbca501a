package latebound

import (
	"fmt"

	"github.com/bazelbuild/buildtools/labels"
	"github.com/confield/confield/pkg/fragments"
)

// Default is a late-bound default: a descriptor of how to obtain an
// attribute value from a configuration fragment once a configuration exists.
//
// A Default never references a configuration instance. It is immutable after
// construction and may be shared across goroutines and across any number of
// configuration resolutions.
type Default struct {
	fragment        *fragments.FragmentType
	field           *fragments.Field
	toolsRepository string
}

// ForConfigurationField binds fieldName of fragmentType into a Default.
//
// The field name must match a declared field exactly (case-sensitive) and the
// field must be public. Otherwise the result is an *Error of kind
// KindInvalidConfigurationField and no descriptor is built.
func ForConfigurationField(fragmentType *fragments.FragmentType, fieldName, toolsRepository string) (*Default, error) {
	if fragmentType == nil {
		return nil, fmt.Errorf("fragment type cannot be nil")
	}

	field, ok := fragmentType.Field(fieldName)
	if !ok || !field.Public() {
		return nil, NewInvalidConfigurationFieldError(fragmentType.Name(), fieldName)
	}

	return &Default{
		fragment:        fragmentType,
		field:           field,
		toolsRepository: toolsRepository,
	}, nil
}

// FragmentType returns the descriptor of the bound fragment.
func (d *Default) FragmentType() *fragments.FragmentType {
	return d.fragment
}

// FragmentName returns the bound fragment name.
func (d *Default) FragmentName() string {
	return d.fragment.Name()
}

// FieldName returns the bound field name.
func (d *Default) FieldName() string {
	return d.field.Name
}

// ValueType returns the declared type of the bound field.
func (d *Default) ValueType() fragments.ValueType {
	return d.field.Type
}

// ToolsRepository returns the namespace qualifier captured at bind time.
func (d *Default) ToolsRepository() string {
	return d.toolsRepository
}

// DefaultLabel returns the label used when a fragment instance carries no
// value for the field. Fields declared default_in_tools_repository are
// placed in the captured tools repository.
func (d *Default) DefaultLabel() (labels.Label, bool) {
	if d.field.DefaultLabel == "" {
		return labels.Label{}, false
	}
	raw := d.field.DefaultLabel
	if d.field.DefaultInToolsRepository {
		raw = d.toolsRepository + raw
	}
	return labels.Parse(raw), true
}

// Key returns a string that is identical for value-equal descriptors.
func (d *Default) Key() string {
	return d.fragment.Name() + "." + d.field.Name + "@" + d.toolsRepository
}

// Equal reports whether d and other are behaviorally interchangeable.
func (d *Default) Equal(other *Default) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.fragment.Name() == other.fragment.Name() &&
		d.toolsRepository == other.toolsRepository &&
		d.field.Name == other.field.Name &&
		d.field.Type == other.field.Type &&
		d.field.Visibility == other.field.Visibility &&
		d.field.DefaultLabel == other.field.DefaultLabel &&
		d.field.DefaultInToolsRepository == other.field.DefaultInToolsRepository
}

// String implements fmt.Stringer.
func (d *Default) String() string {
	return fmt.Sprintf("<late-bound default %s.%s>", d.fragment.Name(), d.field.Name)
}
