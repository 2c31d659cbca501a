// Package starlarkapi exposes configuration_field to Starlark rule
// definitions.
//
//	_cc_compiler = configuration_field(fragment = "cpp", name = "compiler")
//
// The builtin reads its Context (fragment registry and tools repository)
// from the evaluating thread, looks the fragment up, and delegates to
// latebound.ForConfigurationField. Failures come back as *EvalError tagged
// with the call-site position and abort the evaluation of the file.
//
// ConfigurationField is the same operation without an interpreter, taking
// the position and context as explicit arguments.
package starlarkapi
