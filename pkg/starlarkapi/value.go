package starlarkapi

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/confield/confield/pkg/latebound"
)

// Value is the Starlark representation of a late-bound default. It is
// immutable, so Freeze is a no-op and the value is always hashable.
type Value struct {
	d   *latebound.Default
	pos syntax.Position
}

var (
	_ starlark.Value      = (*Value)(nil)
	_ starlark.HasAttrs   = (*Value)(nil)
	_ starlark.Comparable = (*Value)(nil)
)

// NewValue wraps d. pos records where the descriptor was created.
func NewValue(d *latebound.Default, pos syntax.Position) *Value {
	return &Value{d: d, pos: pos}
}

// Default returns the wrapped descriptor.
func (v *Value) Default() *latebound.Default { return v.d }

// Pos returns the position of the configuration_field call.
func (v *Value) Pos() syntax.Position { return v.pos }

func (v *Value) String() string        { return v.d.String() }
func (v *Value) Type() string          { return "LateBoundDefault" }
func (v *Value) Freeze()               {}
func (v *Value) Truth() starlark.Bool  { return starlark.True }
func (v *Value) Hash() (uint32, error) { return starlark.String(v.d.Key()).Hash() }

// CompareSameType supports == and != by value equality of the descriptors.
func (v *Value) CompareSameType(op syntax.Token, y starlark.Value, _ int) (bool, error) {
	other := y.(*Value)
	switch op {
	case syntax.EQL:
		return v.d.Equal(other.d), nil
	case syntax.NEQ:
		return !v.d.Equal(other.d), nil
	}
	return false, fmt.Errorf("%s %s %s not implemented", v.Type(), op, y.Type())
}

// Attr exposes the bound names read-only.
func (v *Value) Attr(name string) (starlark.Value, error) {
	switch name {
	case "fragment":
		return starlark.String(v.d.FragmentName()), nil
	case "name":
		return starlark.String(v.d.FieldName()), nil
	case "tools_repository":
		return starlark.String(v.d.ToolsRepository()), nil
	}
	return nil, nil
}

// AttrNames implements starlark.HasAttrs.
func (v *Value) AttrNames() []string {
	return []string{"fragment", "name", "tools_repository"}
}
