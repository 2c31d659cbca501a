package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/confield/confield/pkg/evaluator"
	"github.com/confield/confield/pkg/latebound"
	"github.com/confield/confield/pkg/telemetry"
)

// resolvedBinding is one row of resolve output.
type resolvedBinding struct {
	Path     string      `json:"path"`
	Fragment string      `json:"fragment"`
	Field    string      `json:"field"`
	Value    interface{} `json:"value,omitempty"`
	Error    string      `json:"error,omitempty"`
}

func newResolveCommand() *cobra.Command {
	var (
		flags        catalogFlags
		instancePath string
	)

	cmd := &cobra.Command{
		Use:   "resolve <file>",
		Short: "Resolve late-bound defaults against a configuration instance",
		Long: `Evaluate a rule-definition file, then resolve every late-bound default it
declares against a configuration instance document:

  fragments:
    cpp:
      compiler: gcc
      cc_toolchain: //toolchains:gcc

A field without a value in the instance falls back to its default label.`,
		Example: `  confield resolve --catalog catalog.yaml --instance linux-x86.yaml rules.bzl`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			flags.merge(appConfig)

			data, err := os.ReadFile(instancePath)
			if err != nil {
				return fmt.Errorf("failed to read configuration instance: %w", err)
			}
			cfg, err := latebound.ParseConfigurationYAML(data)
			if err != nil {
				return err
			}

			inputs, err := parseDefines(flags.defines)
			if err != nil {
				return err
			}

			ev, err := newEvaluator(ctx, &flags)
			if err != nil {
				return err
			}

			result, err := ev.Evaluate(ctx, evaluator.Request{Filename: args[0], Inputs: inputs})
			if err != nil {
				return err
			}

			rows := make([]resolvedBinding, 0, len(result.Bindings))
			var failed int
			for _, b := range result.Bindings {
				row := resolvedBinding{Path: b.Path, Fragment: b.Fragment, Field: b.Field}
				err := telemetry.RecordResolution(ctx, b.Fragment, b.Field, func() error {
					v, err := b.Default.Resolve(cfg)
					row.Value = v
					return err
				})
				if err != nil {
					row.Error = err.Error()
					failed++
				}
				rows = append(rows, row)
			}

			w := cmd.OutOrStdout()
			if jsonOutput {
				if err := printJSON(w, rows); err != nil {
					return err
				}
			} else {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				for _, r := range rows {
					if r.Error != "" {
						fmt.Fprintf(tw, "%s\t%s.%s\terror: %s\n", r.Path, r.Fragment, r.Field, r.Error)
						continue
					}
					fmt.Fprintf(tw, "%s\t%s.%s\t%v\n", r.Path, r.Fragment, r.Field, r.Value)
				}
				_ = tw.Flush()
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d late-bound default(s) could not be resolved", failed, len(rows))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&instancePath, "instance", "i", "", "configuration instance YAML file")
	cmd.Flags().StringVar(&flags.catalog, "catalog", "", "fragment catalog file (.yaml, .yml, .cue)")
	cmd.Flags().StringVar(&flags.database, "db", "", "SQLite catalog store")
	cmd.Flags().StringVar(&flags.toolsRepository, "tools-repository", "", "tools repository name, e.g. @bazel_tools")
	cmd.Flags().StringArrayVarP(&flags.defines, "define", "D", nil, "predeclared input name=value (repeatable)")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "evaluation timeout")
	_ = cmd.MarkFlagRequired("instance")

	return cmd
}
