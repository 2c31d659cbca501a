package commands

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/confield/confield/pkg/fragments"
	"github.com/confield/confield/pkg/latebound"
	"github.com/confield/confield/pkg/stores"
)

func newCatalogCommand() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the fragment catalog stored in SQLite",
		Long: `Import a fragment catalog into the SQLite store and browse it.

Evaluations can then use --db instead of --catalog.`,
	}

	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite catalog store (defaults to database from the config file, then confield.db)")

	resolveDB := func() string {
		switch {
		case dbPath != "":
			return dbPath
		case appConfig != nil && appConfig.Database != "":
			return appConfig.Database
		default:
			return "confield.db"
		}
	}

	cmd.AddCommand(newCatalogImportCommand(resolveDB))
	cmd.AddCommand(newCatalogListCommand(resolveDB))
	cmd.AddCommand(newCatalogShowCommand(resolveDB))
	cmd.AddCommand(newCatalogHistoryCommand(resolveDB))

	return cmd
}

func newCatalogImportCommand(db func() string) *cobra.Command {
	return &cobra.Command{
		Use:     "import <catalog>",
		Short:   "Validate a catalog file and replace the stored catalog with it",
		Example: `  confield catalog import --db confield.db catalog.cue`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			catalog, err := fragments.LoadCatalogFile(args[0])
			if err != nil {
				return err
			}

			store, err := openStore(ctx, db())
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.SaveCatalog(ctx, args[0], catalog); err != nil {
				return err
			}
			_ = tel.Events.PublishCatalogImported(args[0], len(catalog.Fragments))

			log.Info().
				Str("catalog", args[0]).
				Str("db", db()).
				Int("fragments", len(catalog.Fragments)).
				Msg("Catalog imported")

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d fragment(s) from %s into %s\n", len(catalog.Fragments), args[0], db())
			return nil
		},
	}
}

func newCatalogListCommand(db func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored fragments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx, db())
			if err != nil {
				return err
			}
			defer store.Close()

			summaries, err := store.ListFragments(ctx)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(w, summaries)
			}

			if len(summaries) == 0 {
				fmt.Fprintln(w, "No fragments stored; run 'confield catalog import' first")
				return nil
			}

			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "FRAGMENT\tFIELDS\tPUBLIC\tDOC")
			for _, s := range summaries {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", s.Name, s.Fields, s.PublicFields, s.Doc)
			}
			return tw.Flush()
		},
	}
}

func newCatalogShowCommand(db func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <fragment>",
		Short: "Show the fields of a stored fragment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx, db())
			if err != nil {
				return err
			}
			defer store.Close()

			spec, err := store.GetFragment(ctx, args[0])
			if errors.Is(err, stores.ErrFragmentNotFound) {
				return latebound.NewUnknownFragmentError(args[0])
			}
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(w, spec)
			}

			fmt.Fprintf(w, "fragment %s\n", spec.Name)
			if spec.Doc != "" {
				fmt.Fprintf(w, "  %s\n", spec.Doc)
			}
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "\nFIELD\tTYPE\tVISIBILITY\tDEFAULT")
			for _, f := range spec.Fields {
				def := f.DefaultLabel
				if f.DefaultInToolsRepository {
					def += " (tools repository)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Name, f.Type, f.Visibility, def)
			}
			return tw.Flush()
		},
	}
}

func newCatalogHistoryCommand(db func() string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent catalog imports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx, db())
			if err != nil {
				return err
			}
			defer store.Close()

			imports, err := store.ListImports(ctx, limit)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(w, imports)
			}

			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tIMPORTED\tVERSION\tFRAGMENTS\tSOURCE")
			for _, imp := range imports {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n",
					imp.ID, imp.ImportedAt.Format(time.RFC3339), imp.Version, imp.Fragments, imp.Source)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of imports to show")

	return cmd
}
