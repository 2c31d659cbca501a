package starlarkapi

import (
	"errors"
	"fmt"

	"go.starlark.net/syntax"

	"github.com/confield/confield/pkg/latebound"
)

// EvalError is a binding failure tagged with the source position of the
// configuration_field call.
type EvalError struct {
	// Pos is the call-site position.
	Pos syntax.Position

	// Kind is the classification of the underlying failure, empty when the
	// call was made outside an evaluation context.
	Kind latebound.ErrorKind

	// Msg is the human-readable message without the position.
	Msg string

	cause error
}

// Error implements the error interface.
func (e *EvalError) Error() string {
	if !e.Pos.IsValid() {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

// Unwrap returns the underlying *latebound.Error, if any.
func (e *EvalError) Unwrap() error {
	return e.cause
}

func wrapEvalError(pos syntax.Position, err error) *EvalError {
	ee := &EvalError{Pos: pos, Msg: err.Error(), cause: err}
	var le *latebound.Error
	if errors.As(err, &le) {
		ee.Kind = le.Kind
		ee.Msg = le.Message
	}
	return ee
}
