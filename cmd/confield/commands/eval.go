package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/confield/confield/pkg/evaluator"
	"github.com/confield/confield/pkg/policy"
)

// evalReport is the JSON form of one eval run.
type evalReport struct {
	Files  []*evaluator.Result `json:"files"`
	Policy *policy.Result      `json:"policy,omitempty"`
}

func newEvalCommand() *cobra.Command {
	var (
		flags    catalogFlags
		policies []string
		check    bool
		watch    bool
	)

	cmd := &cobra.Command{
		Use:   "eval <file>...",
		Short: "Evaluate rule-definition files and list their late-bound defaults",
		Long: `Evaluate Starlark rule-definition files with configuration_field available
and report every late-bound default they declare.

A call naming an unknown fragment, or a field the fragment does not expose,
aborts the file with an error pointing at the call site.

With --check (or --policy) the declared defaults are also checked against the
built-in Rego policies and any extra policy files.`,
		Example: `  # Evaluate against a catalog file
  confield eval --catalog catalog.yaml rules.bzl

  # Use the catalog imported into SQLite and pass an input
  confield eval --db confield.db --define platform=linux rules.bzl

  # Check policies and re-run on every change
  confield eval --catalog catalog.cue --policy ./policies --watch rules.bzl`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			flags.merge(appConfig)
			policies = append(policies, appConfig.Policies...)
			check = check || len(policies) > 0

			inputs, err := parseDefines(flags.defines)
			if err != nil {
				return err
			}

			ev, err := newEvaluator(ctx, &flags)
			if err != nil {
				return err
			}

			var engine *policy.Engine
			if check {
				engine, err = policy.NewEngine(tel.Logger.Zerolog())
				if err != nil {
					return fmt.Errorf("failed to create policy engine: %w", err)
				}
				if len(policies) > 0 {
					if err := engine.LoadPolicies(ctx, policies); err != nil {
						return err
					}
				}
			}

			run := func() error {
				return runEval(ctx, cmd.OutOrStdout(), ev, engine, args, inputs)
			}

			if !watch {
				return run()
			}

			if err := run(); err != nil {
				log.Error().Err(err).Msg("Evaluation failed")
			}
			return watchFiles(ctx, args, policies, engine, run)
		},
	}

	cmd.Flags().StringVar(&flags.catalog, "catalog", "", "fragment catalog file (.yaml, .yml, .cue)")
	cmd.Flags().StringVar(&flags.database, "db", "", "SQLite catalog store")
	cmd.Flags().StringVar(&flags.toolsRepository, "tools-repository", "", "tools repository name, e.g. @bazel_tools")
	cmd.Flags().StringArrayVarP(&flags.defines, "define", "D", nil, "predeclared input name=value (repeatable)")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "per-file evaluation timeout")
	cmd.Flags().StringArrayVar(&policies, "policy", nil, "extra policy file or directory (repeatable)")
	cmd.Flags().BoolVar(&check, "check", false, "check late-bound defaults against policies")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-evaluate when files change")

	return cmd
}

// runEval evaluates files in order, prints the report and returns an error
// when any file failed or a blocking policy was violated.
func runEval(ctx context.Context, w io.Writer, ev *evaluator.Evaluator, engine *policy.Engine, files []string, inputs map[string]interface{}) error {
	report := evalReport{}
	var failed int
	var bindings []policy.BindingInput

	for _, file := range files {
		result, err := ev.Evaluate(ctx, evaluator.Request{Filename: file, Inputs: inputs})
		if err != nil {
			failed++
		}
		report.Files = append(report.Files, result)
		bindings = append(bindings, policy.FromResult(result)...)
	}

	if engine != nil {
		res, err := engine.EvaluateBindings(ctx, bindings)
		if err != nil {
			return fmt.Errorf("policy evaluation failed: %w", err)
		}
		report.Policy = res
	}

	if jsonOutput {
		if err := printJSON(w, report); err != nil {
			return err
		}
	} else {
		printEvalReport(w, &report)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed to evaluate", failed, len(files))
	}
	if report.Policy != nil && !report.Policy.Allowed {
		return fmt.Errorf("%d policy violation(s)", len(report.Policy.Violations))
	}
	return nil
}

func printEvalReport(w io.Writer, report *evalReport) {
	for _, r := range report.Files {
		if r.Error != "" {
			fmt.Fprintf(w, "%s: error: %s\n", r.Filename, r.Error)
			continue
		}

		fmt.Fprintf(w, "%s: %d late-bound default(s)\n", r.Filename, len(r.Bindings))
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, b := range r.Bindings {
			fmt.Fprintf(tw, "  %s\t%s.%s\t%s\t%s\n", b.Path, b.Fragment, b.Field, b.ValueType, b.Position)
		}
		_ = tw.Flush()
	}

	if report.Policy == nil {
		return
	}
	for _, v := range report.Policy.Violations {
		fmt.Fprintf(w, "%s: %s: %s [%s]\n", v.Position, v.Severity, v.Message, v.Policy)
	}
	for _, v := range report.Policy.Warnings {
		fmt.Fprintf(w, "%s: %s: %s [%s]\n", v.Position, v.Severity, v.Message, v.Policy)
	}
	for _, e := range report.Policy.Errors {
		fmt.Fprintf(w, "policy error: %s\n", e)
	}
}

// watchFiles re-runs run whenever one of files changes, and reloads policy
// files into engine, until ctx is cancelled.
func watchFiles(ctx context.Context, files, policyPaths []string, engine *policy.Engine, run func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	watched := make(map[string]bool, len(files))
	dirs := make(map[string]bool)
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		watched[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	// Editors replace files on save, so watch directories rather than files.
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	runner := &watchRunner{engine: engine, run: run}

	if engine != nil && len(policyPaths) > 0 {
		loader := policy.NewLoader(tel.Logger.Zerolog())
		reload := func(policies []policy.Policy) error {
			return runner.Reload(ctx, policies)
		}
		if err := loader.Watch(ctx, policyPaths, reload); err != nil {
			return err
		}
		defer loader.StopWatching()
	}

	if tel.Config.Metrics.Enabled {
		if err := tel.StartMetricsServer(); err != nil {
			return err
		}
	}

	log.Info().Int("files", len(files)).Msg("Watching for changes (Ctrl+C to stop)")

	var timer *time.Timer
	const delay = 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !watched[event.Name] || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			_ = tel.Events.PublishFileChanged(event.Name, event.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(delay, func() {
				fmt.Fprintf(os.Stderr, "\n--- %s changed, re-evaluating ---\n", filepath.Base(event.Name))
				if err := runner.Rerun(); err != nil {
					log.Error().Err(err).Msg("Evaluation failed")
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}

// watchRunner serializes re-evaluations triggered by file and policy
// changes, which share the engine and the output writer.
type watchRunner struct {
	mu     sync.Mutex
	engine *policy.Engine
	run    func() error
}

// Rerun evaluates again.
func (r *watchRunner) Rerun() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run()
}

// Reload swaps in policies, then evaluates again.
func (r *watchRunner) Reload(ctx context.Context, policies []policy.Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.engine != nil {
		if err := r.engine.ReplacePolicies(ctx, policies); err != nil {
			return err
		}
	}
	return r.run()
}
