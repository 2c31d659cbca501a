package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/confield/confield/pkg/fragments"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	// Every connection to :memory: opens a separate database.
	if cfg.Path == ":memory:" {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// SaveCatalog validates catalog and replaces the stored catalog with it in a
// single transaction.
func (s *SQLiteStore) SaveCatalog(ctx context.Context, source string, catalog *fragments.Catalog) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if catalog == nil {
		return fmt.Errorf("catalog is required")
	}
	if err := catalog.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fragment_fields`); err != nil {
		return fmt.Errorf("failed to clear fields: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM fragments`); err != nil {
		return fmt.Errorf("failed to clear fragments: %w", err)
	}

	now := time.Now().UTC()
	for i, frag := range catalog.Fragments {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO fragments (name, doc, position, created_at) VALUES (?, ?, ?, ?)`,
			frag.Name, frag.Doc, i, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert fragment %s: %w", frag.Name, err)
		}

		for j, f := range frag.Fields {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO fragment_fields
					(fragment, name, type, visibility, doc, default_label, default_in_tools_repository, position)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				frag.Name, f.Name, orDefault(f.Type, string(fragments.ValueTypeLabel)),
				orDefault(f.Visibility, string(fragments.VisibilityPublic)),
				f.Doc, f.DefaultLabel, f.DefaultInToolsRepository, j,
			)
			if err != nil {
				return fmt.Errorf("failed to insert field %s.%s: %w", frag.Name, f.Name, err)
			}
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO catalog_imports (source, version, fragments, imported_at) VALUES (?, ?, ?, ?)`,
		source, catalog.Version, len(catalog.Fragments), now,
	)
	if err != nil {
		return fmt.Errorf("failed to record import: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit catalog: %w", err)
	}

	return nil
}

// LoadCatalog reads the stored catalog back in import order. It returns
// ErrCatalogNotFound when nothing has been imported.
func (s *SQLiteStore) LoadCatalog(ctx context.Context) (*fragments.Catalog, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	imports, err := s.ListImports(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(imports) == 0 {
		return nil, ErrCatalogNotFound
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name, doc FROM fragments ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to list fragments: %w", err)
	}
	defer rows.Close()

	catalog := &fragments.Catalog{Version: imports[0].Version}
	for rows.Next() {
		var spec fragments.FragmentSpec
		if err := rows.Scan(&spec.Name, &spec.Doc); err != nil {
			return nil, fmt.Errorf("failed to scan fragment: %w", err)
		}
		catalog.Fragments = append(catalog.Fragments, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fragments: %w", err)
	}

	for i := range catalog.Fragments {
		fields, err := s.fields(ctx, catalog.Fragments[i].Name)
		if err != nil {
			return nil, err
		}
		catalog.Fragments[i].Fields = fields
	}

	return catalog, nil
}

// GetFragment returns one stored fragment with its fields
func (s *SQLiteStore) GetFragment(ctx context.Context, name string) (*fragments.FragmentSpec, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	spec := &fragments.FragmentSpec{}
	err := s.db.QueryRowContext(ctx, `SELECT name, doc FROM fragments WHERE name = ?`, name).
		Scan(&spec.Name, &spec.Doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrFragmentNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fragment: %w", err)
	}

	spec.Fields, err = s.fields(ctx, name)
	if err != nil {
		return nil, err
	}
	return spec, nil
}

func (s *SQLiteStore) fields(ctx context.Context, fragment string) ([]fragments.FieldSpec, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, type, visibility, doc, default_label, default_in_tools_repository
		FROM fragment_fields
		WHERE fragment = ?
		ORDER BY position`, fragment)
	if err != nil {
		return nil, fmt.Errorf("failed to list fields of %s: %w", fragment, err)
	}
	defer rows.Close()

	var fields []fragments.FieldSpec
	for rows.Next() {
		var f fragments.FieldSpec
		if err := rows.Scan(&f.Name, &f.Type, &f.Visibility, &f.Doc, &f.DefaultLabel, &f.DefaultInToolsRepository); err != nil {
			return nil, fmt.Errorf("failed to scan field: %w", err)
		}
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fields: %w", err)
	}

	return fields, nil
}

// ListFragments returns a summary of every stored fragment, sorted by name
func (s *SQLiteStore) ListFragments(ctx context.Context) ([]FragmentSummary, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.name, f.doc,
			COUNT(ff.name),
			COALESCE(SUM(CASE WHEN ff.visibility = 'public' THEN 1 ELSE 0 END), 0)
		FROM fragments f
		LEFT JOIN fragment_fields ff ON ff.fragment = f.name
		GROUP BY f.name, f.doc
		ORDER BY f.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list fragments: %w", err)
	}
	defer rows.Close()

	var summaries []FragmentSummary
	for rows.Next() {
		var fs FragmentSummary
		if err := rows.Scan(&fs.Name, &fs.Doc, &fs.Fields, &fs.PublicFields); err != nil {
			return nil, fmt.Errorf("failed to scan fragment summary: %w", err)
		}
		summaries = append(summaries, fs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fragments: %w", err)
	}

	return summaries, nil
}

// ListImports returns the most recent catalog imports, newest first
func (s *SQLiteStore) ListImports(ctx context.Context, limit int) ([]CatalogImport, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, version, fragments, imported_at
		FROM catalog_imports
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list imports: %w", err)
	}
	defer rows.Close()

	var imports []CatalogImport
	for rows.Next() {
		var ci CatalogImport
		if err := rows.Scan(&ci.ID, &ci.Source, &ci.Version, &ci.Fragments, &ci.ImportedAt); err != nil {
			return nil, fmt.Errorf("failed to scan import: %w", err)
		}
		imports = append(imports, ci)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating imports: %w", err)
	}

	return imports, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
