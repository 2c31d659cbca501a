package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/confield/confield/pkg/telemetry"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
	logLevel   string

	// Set by the root command before any subcommand runs.
	appConfig *AppConfig
	tel       *telemetry.Telemetry
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	err := rootCmd.ExecuteContext(ctx)
	shutdownTelemetry()
	return err
}

// shutdownTelemetry flushes and stops the telemetry started by the root
// command, if any.
func shutdownTelemetry() {
	if tel == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tel.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Telemetry shutdown failed")
	}
	tel = nil
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "confield",
		Short: "confield - late-bound configuration defaults for Starlark rule definitions",
		Long: `confield evaluates Starlark rule-definition files that call
configuration_field(fragment, name) and reports the late-bound defaults they
declare.

Features:
  - Fragment catalogs in YAML or CUE, stored in SQLite
  - Call-site error reporting for unknown fragments and fields
  - Resolution of late-bound defaults against configuration instances
  - Rego policy checks over declared defaults`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadAppConfig(configPath)
			if err != nil {
				return err
			}
			appConfig = cfg

			tcfg := cfg.telemetryConfig(version, logLevel, verbose)
			if verbose || logLevel != "" {
				if lvl, err := zerolog.ParseLevel(tcfg.Logging.Level); err == nil {
					zerolog.SetGlobalLevel(lvl)
				}
			}

			t, err := telemetry.NewTelemetry(tcfg)
			if err != nil {
				return fmt.Errorf("failed to initialize telemetry: %w", err)
			}
			tel = t

			cmd.SetContext(tel.WithContext(cmd.Context()))
			return nil
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")

	// Add subcommands
	rootCmd.AddCommand(newEvalCommand())
	rootCmd.AddCommand(newResolveCommand())
	rootCmd.AddCommand(newCatalogCommand())
	rootCmd.AddCommand(newValidateCommand())

	return rootCmd
}
