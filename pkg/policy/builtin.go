package policy

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		privateAttributePolicy(),
		toolsRepositoryPolicy(),
		labelTypePolicy(),
	}
}

// privateAttributePolicy requires late-bound defaults to sit on private
// attributes, which users cannot override.
func privateAttributePolicy() Policy {
	return Policy{
		Name:        "private-attribute",
		Description: "Late-bound defaults must be the default of a private attribute (name starting with '_')",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"attributes", "conventions"},
		Rego: `package confield.policies.private_attribute

import rego.v1

deny contains violation if {
	some b in input.bindings
	not startswith(b.attribute, "_")
	violation := {
		"message": sprintf("attribute '%s' holds late-bound default %s.%s and must be private (start with '_')", [b.attribute, b.fragment, b.field]),
		"file": b.file,
		"binding": b.path,
		"position": b.position,
	}
}`,
	}
}

// toolsRepositoryPolicy flags defaults that live in the tools repository
// while none is configured.
func toolsRepositoryPolicy() Policy {
	return Policy{
		Name:        "tools-repository",
		Description: "Warns when a default label belongs in the tools repository but no tools repository is configured",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"labels", "repositories"},
		Rego: `package confield.policies.tools_repository

import rego.v1

deny contains violation if {
	some b in input.bindings
	b.default_in_tools_repository
	b.tools_repository == ""
	violation := {
		"message": sprintf("default label '%s' of %s.%s resolves in the main repository because no tools repository is configured", [b.default_label, b.fragment, b.field]),
		"file": b.file,
		"binding": b.path,
		"position": b.position,
	}
}`,
	}
}

// labelTypePolicy notes late-bound defaults whose field does not produce
// labels; label attributes are the usual consumers.
func labelTypePolicy() Policy {
	return Policy{
		Name:        "label-type",
		Description: "Reports late-bound defaults whose field is not label-typed",
		Severity:    SeverityInfo,
		Enabled:     true,
		Tags:        []string{"types"},
		Rego: `package confield.policies.label_type

import rego.v1

label_types := {"label", "label_list"}

deny contains violation if {
	some b in input.bindings
	not b.type in label_types
	violation := {
		"message": sprintf("%s.%s has type %s; a label attribute default expects a label", [b.fragment, b.field, b.type]),
		"file": b.file,
		"binding": b.path,
		"position": b.position,
	}
}`,
	}
}
