package evaluator

import (
	"time"

	"go.starlark.net/syntax"

	"github.com/confield/confield/pkg/latebound"
)

// Request describes one rule-definition file to evaluate.
type Request struct {
	// Filename is used in positions and error messages.
	Filename string

	// Source is the file content. When nil, Filename is read from disk.
	Source []byte

	// Inputs are extra predeclared globals, converted to Starlark values.
	Inputs map[string]interface{}
}

// Binding is a late-bound default found in the globals of an evaluated file.
type Binding struct {
	// Path locates the value, e.g. "attrs._cc_compiler.default".
	Path string `json:"path"`

	// Attribute is the attribute name the default is declared for: the
	// closest enclosing key other than "default".
	Attribute string `json:"attribute"`

	// Position is the configuration_field call site.
	Position string `json:"position"`

	Fragment        string `json:"fragment"`
	Field           string `json:"field"`
	ValueType       string `json:"type"`
	ToolsRepository string `json:"tools_repository,omitempty"`
	DefaultLabel    string `json:"default_label,omitempty"`

	// DefaultInToolsRepository mirrors the field declaration.
	DefaultInToolsRepository bool `json:"default_in_tools_repository,omitempty"`

	Pos     syntax.Position    `json:"-"`
	Default *latebound.Default `json:"-"`
}

// Result is the outcome of one evaluation.
type Result struct {
	// RunID identifies this evaluation in logs, traces and events.
	RunID string `json:"run_id"`

	// Filename is the evaluated file.
	Filename string `json:"file"`

	// Bindings are sorted by Path.
	Bindings []Binding `json:"bindings"`

	// Output holds the public globals converted to Go values.
	Output map[string]interface{} `json:"output,omitempty"`

	// ExecutionTime is how long the evaluation took.
	ExecutionTime time.Duration `json:"execution_time"`

	// Error is the evaluation failure, if any.
	Error string `json:"error,omitempty"`
}
