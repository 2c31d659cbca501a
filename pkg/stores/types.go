package stores

import (
	"context"
	"errors"
	"time"

	"github.com/confield/confield/pkg/fragments"
)

// ErrCatalogNotFound is returned when no catalog has been imported yet.
var ErrCatalogNotFound = errors.New("no catalog imported")

// ErrFragmentNotFound is returned when a fragment is not in the stored catalog.
var ErrFragmentNotFound = errors.New("fragment not found")

// FragmentSummary is one row of the stored catalog listing
type FragmentSummary struct {
	Name         string `json:"name"`
	Doc          string `json:"doc,omitempty"`
	Fields       int    `json:"fields"`
	PublicFields int    `json:"public_fields"`
}

// CatalogImport records one SaveCatalog call
type CatalogImport struct {
	ID         int64     `json:"id"`
	Source     string    `json:"source"`
	Version    string    `json:"version,omitempty"`
	Fragments  int       `json:"fragments"`
	ImportedAt time.Time `json:"imported_at"`
}

// Store defines the interface for catalog persistence
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Catalog operations
	SaveCatalog(ctx context.Context, source string, catalog *fragments.Catalog) error
	LoadCatalog(ctx context.Context) (*fragments.Catalog, error)
	GetFragment(ctx context.Context, name string) (*fragments.FragmentSpec, error)
	ListFragments(ctx context.Context) ([]FragmentSummary, error)
	ListImports(ctx context.Context, limit int) ([]CatalogImport, error)

	// Utility
	HealthCheck(ctx context.Context) error
}

var _ Store = (*SQLiteStore)(nil)
