package latebound

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure to bind a configuration field.
type ErrorKind string

const (
	// KindUnknownFragment indicates the fragment name has no registered descriptor.
	KindUnknownFragment ErrorKind = "unknown_fragment"

	// KindInvalidConfigurationField indicates the fragment has no accessible
	// field with the requested name. Absent and private fields are not
	// distinguished.
	KindInvalidConfigurationField ErrorKind = "invalid_configuration_field"
)

// Error is a classified binding failure.
type Error struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable message.
	Message string `json:"message"`

	// Fragment is the fragment name as supplied by the caller.
	Fragment string `json:"fragment,omitempty"`

	// Field is the field name as supplied by the caller, if any.
	Field string `json:"field,omitempty"`

	// Err is the underlying cause, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is.
var (
	ErrUnknownFragment           = &Error{Kind: KindUnknownFragment}
	ErrInvalidConfigurationField = &Error{Kind: KindInvalidConfigurationField}
)

// NewUnknownFragmentError reports a fragment name missing from the registry.
func NewUnknownFragmentError(fragment string) *Error {
	return &Error{
		Kind:     KindUnknownFragment,
		Message:  fmt.Sprintf("invalid configuration fragment name '%s'", fragment),
		Fragment: fragment,
	}
}

// NewInvalidConfigurationFieldError reports a field that is absent or not
// accessible on the fragment.
func NewInvalidConfigurationFieldError(fragment, field string) *Error {
	return &Error{
		Kind:     KindInvalidConfigurationField,
		Message:  fmt.Sprintf("invalid configuration field name '%s' on fragment '%s'", field, fragment),
		Fragment: fragment,
		Field:    field,
	}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsUnknownFragment reports whether err is an unknown fragment failure.
func IsUnknownFragment(err error) bool {
	return errors.Is(err, ErrUnknownFragment)
}

// IsInvalidConfigurationField reports whether err is an invalid field failure.
func IsInvalidConfigurationField(err error) bool {
	return errors.Is(err, ErrInvalidConfigurationField)
}

// Resolution errors, returned when a descriptor is applied to a configuration.
var (
	ErrFragmentNotConfigured = errors.New("fragment not present in configuration")
	ErrNoValue               = errors.New("configuration field has no value")
	ErrTypeMismatch          = errors.New("configuration field value has wrong type")
)
