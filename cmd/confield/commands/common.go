package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/confield/confield/pkg/evaluator"
	"github.com/confield/confield/pkg/fragments"
	"github.com/confield/confield/pkg/starlarkapi"
	"github.com/confield/confield/pkg/stores"
)

// catalogFlags are shared by the commands that evaluate rule definitions.
type catalogFlags struct {
	catalog         string
	database        string
	toolsRepository string
	defines         []string
	timeout         time.Duration
}

// merge fills unset flags from the app config.
func (f *catalogFlags) merge(cfg *AppConfig) {
	if f.catalog == "" && f.database == "" {
		f.catalog = cfg.Catalog
		f.database = cfg.Database
	}
	if f.toolsRepository == "" {
		f.toolsRepository = cfg.ToolsRepository
	}
	if f.timeout == 0 {
		f.timeout = cfg.Timeout
	}
}

// loadRegistry builds the fragment registry from a catalog file or, failing
// that, from the SQLite store.
func loadRegistry(ctx context.Context, catalogPath, dbPath string) (*fragments.StaticRegistry, error) {
	var (
		catalog *fragments.Catalog
		err     error
	)

	switch {
	case catalogPath != "":
		catalog, err = fragments.LoadCatalogFile(catalogPath)
		if err != nil {
			return nil, err
		}
	case dbPath != "":
		store, err := openStore(ctx, dbPath)
		if err != nil {
			return nil, err
		}
		defer store.Close()

		catalog, err = store.LoadCatalog(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load catalog from %s: %w", dbPath, err)
		}
	default:
		return nil, fmt.Errorf("a catalog is required: pass --catalog or --db, or set catalog in the config file")
	}

	registry, err := catalog.Registry()
	if err != nil {
		return nil, err
	}

	log.Debug().
		Int("fragments", registry.Len()).
		Str("catalog", catalogPath).
		Str("db", dbPath).
		Msg("Fragment registry loaded")

	return registry, nil
}

// openStore opens and migrates the SQLite catalog store at path.
func openStore(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// newEvaluator loads the registry named by f and returns an evaluator over it.
func newEvaluator(ctx context.Context, f *catalogFlags) (*evaluator.Evaluator, error) {
	registry, err := loadRegistry(ctx, f.catalog, f.database)
	if err != nil {
		return nil, err
	}

	return evaluator.NewEvaluator(&starlarkapi.Context{
		Registry:        registry,
		ToolsRepository: f.toolsRepository,
	}, f.timeout), nil
}

// parseDefines turns name=value pairs into evaluation inputs. Values are
// decoded as YAML scalars, so "n=3" is an int and "x=true" a bool.
func parseDefines(defines []string) (map[string]interface{}, error) {
	if len(defines) == 0 {
		return nil, nil
	}

	inputs := make(map[string]interface{}, len(defines))
	for _, d := range defines {
		name, raw, ok := strings.Cut(d, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --define %q: expected name=value", d)
		}

		var value interface{}
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil || value == nil {
			value = raw
		}
		inputs[name] = value
	}
	return inputs, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
