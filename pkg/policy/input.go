package policy

import (
	"github.com/confield/confield/pkg/evaluator"
)

// FromResult converts the bindings of an evaluation into policy input.
func FromResult(result *evaluator.Result) []BindingInput {
	if result == nil {
		return nil
	}

	inputs := make([]BindingInput, 0, len(result.Bindings))
	for _, b := range result.Bindings {
		inputs = append(inputs, BindingInput{
			File:                     result.Filename,
			Path:                     b.Path,
			Attribute:                b.Attribute,
			Position:                 b.Position,
			Fragment:                 b.Fragment,
			Field:                    b.Field,
			Type:                     b.ValueType,
			ToolsRepository:          b.ToolsRepository,
			DefaultLabel:             b.DefaultLabel,
			DefaultInToolsRepository: b.DefaultInToolsRepository,
		})
	}
	return inputs
}
