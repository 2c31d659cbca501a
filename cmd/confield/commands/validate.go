package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/confield/confield/pkg/fragments"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <catalog>...",
		Short: "Validate fragment catalog files",
		Long: `Validate fragment catalog files (.yaml, .yml or .cue).

This command checks:
  - YAML or CUE syntax
  - Conformance to the catalog schema
  - Field types, visibility and default labels
  - Duplicate fragment and field names`,
		Example: `  confield validate catalog.yaml
  confield validate base.cue extra.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			var failed int

			for _, path := range args {
				log.Debug().Str("path", path).Msg("Validating catalog")

				catalog, err := fragments.LoadCatalogFile(path)
				if err == nil {
					_, err = catalog.Registry()
				}
				if err != nil {
					failed++
					fmt.Fprintf(w, "✗ %s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(w, "✓ %s: %d fragment(s)\n", path, len(catalog.Fragments))
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d catalog(s) invalid", failed, len(args))
			}
			return nil
		},
	}

	return cmd
}
