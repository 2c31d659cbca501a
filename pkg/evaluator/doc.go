// Package evaluator runs Starlark rule-definition files and reports the
// late-bound defaults they create.
//
// Each evaluation gets a fresh thread carrying the shared
// starlarkapi.Context, so many files can be evaluated concurrently against one
// fragment registry. The first failing configuration_field call aborts the
// file; its position-tagged message becomes the evaluation error.
//
//	ev := evaluator.NewEvaluator(&starlarkapi.Context{
//	    Registry:        registry,
//	    ToolsRepository: "@bazel_tools",
//	}, 10*time.Second)
//
//	result, err := ev.EvaluateFile(ctx, "rules.bzl")
//	for _, b := range result.Bindings {
//	    fmt.Println(b.Path, b.Fragment, b.Field)
//	}
package evaluator
