// Package policy checks the late-bound defaults of rule-definition files
// against Rego policies using Open Policy Agent.
//
// # Usage
//
//	engine, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, _ := ev.EvaluateFile(ctx, "rules.bzl")
//	result, err := engine.EvaluateBindings(ctx, policy.FromResult(res))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if !result.Allowed {
//	    for _, v := range result.Violations {
//	        fmt.Printf("%s: %s (%s)\n", v.Position, v.Message, v.Policy)
//	    }
//	}
//
// # Built-in Policies
//
//  1. private-attribute (error) - a late-bound default must be the default of
//     an attribute whose name starts with '_'
//  2. tools-repository (warning) - a default label marked for the tools
//     repository while no tools repository is configured
//  3. label-type (info) - the field does not produce labels
//
// # Custom Policies
//
// Policies are Rego modules defining a "deny" set over input.bindings. Each
// element is a string or an object with "message" and optionally "severity",
// "file", "binding" and "position". Modules must import rego.v1.
//
//	package custom.policies.no_apple
//
//	import rego.v1
//
//	deny contains violation if {
//	    some b in input.bindings
//	    b.fragment == "apple"
//	    violation := {
//	        "message": "apple fragment is not available on this platform",
//	        "binding": b.path,
//	        "severity": "error",
//	    }
//	}
//
// A .rego file becomes one policy named after the file; a "# severity:"
// comment sets its severity. A .json file holds one Policy or a PolicyBundle.
//
// # Hot Reload
//
//	loader := policy.NewLoader(logger)
//	err = loader.Watch(ctx, paths, func(policies []policy.Policy) error {
//	    return engine.ReplacePolicies(ctx, policies)
//	})
package policy
