package starlarkapi

import (
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// BuiltinName is the name rule definitions call the binding by.
const BuiltinName = "configuration_field"

const contextKey = "confield.context"

// SetContext attaches ectx to thread. Every configuration_field call made on
// the thread resolves against it.
func SetContext(thread *starlark.Thread, ectx *Context) {
	thread.SetLocal(contextKey, ectx)
}

// ContextFrom returns the context attached to thread by SetContext.
func ContextFrom(thread *starlark.Thread) (*Context, bool) {
	ectx, ok := thread.Local(contextKey).(*Context)
	return ectx, ok
}

// Builtin returns the configuration_field builtin.
//
//	configuration_field(fragment, name)
//
// It returns an opaque LateBoundDefault intended as the default of a
// private label attribute.
func Builtin() *starlark.Builtin {
	return starlark.NewBuiltin(BuiltinName, configurationField)
}

// Predeclared returns the names this package contributes to a
// rule-definition environment.
func Predeclared() starlark.StringDict {
	return starlark.StringDict{
		BuiltinName: Builtin(),
	}
}

func configurationField(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var fragment, name string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "fragment", &fragment, "name", &name); err != nil {
		return nil, err
	}

	ectx, _ := ContextFrom(thread)
	pos := callerPosition(thread)

	d, err := ConfigurationField(fragment, name, pos, ectx)
	if err != nil {
		return nil, err
	}
	return NewValue(d, pos), nil
}

// callerPosition returns the position of the call to the builtin. Frame 0 is
// the builtin itself.
func callerPosition(thread *starlark.Thread) syntax.Position {
	if thread.CallStackDepth() < 2 {
		return syntax.Position{}
	}
	return thread.CallFrame(1).Pos
}
