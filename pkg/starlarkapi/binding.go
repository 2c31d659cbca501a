package starlarkapi

import (
	"go.starlark.net/syntax"

	"github.com/confield/confield/pkg/fragments"
	"github.com/confield/confield/pkg/latebound"
)

// Context is the per-evaluation state a rule-definition file is evaluated
// with. It is supplied explicitly rather than looked up from globals.
type Context struct {
	// Registry resolves fragment names. It must not change while any
	// evaluation using this context is running.
	Registry fragments.Registry

	// ToolsRepository is the namespace qualifier captured by every
	// late-bound default created in this context, e.g. "@bazel_tools".
	ToolsRepository string
}

// ConfigurationField binds fragment.name to a late-bound default.
//
// Failures are returned as *EvalError carrying pos: an unknown fragment is
// reported with the fragment name verbatim, and a factory failure is
// re-wrapped so that it also carries pos. The call keeps no state between
// invocations.
func ConfigurationField(fragment, name string, pos syntax.Position, ectx *Context) (*latebound.Default, error) {
	if ectx == nil || ectx.Registry == nil {
		return nil, &EvalError{
			Pos: pos,
			Msg: "configuration_field can only be used while evaluating a rule definition",
		}
	}

	fragmentType, ok := ectx.Registry.Lookup(fragment)
	if !ok {
		return nil, wrapEvalError(pos, latebound.NewUnknownFragmentError(fragment))
	}

	d, err := latebound.ForConfigurationField(fragmentType, name, ectx.ToolsRepository)
	if err != nil {
		return nil, wrapEvalError(pos, err)
	}
	return d, nil
}
