package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/confield/confield/pkg/fragments"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testCatalog() *fragments.Catalog {
	return &fragments.Catalog{
		Version: "2024.1",
		Fragments: []fragments.FragmentSpec{
			{
				Name: "cpp",
				Doc:  "C++ toolchain configuration",
				Fields: []fragments.FieldSpec{
					{Name: "compiler", Type: "string", Visibility: "public", Doc: "Compiler name"},
					{Name: "cc_toolchain", Type: "label", Visibility: "public", DefaultLabel: "//tools/cpp:current_cc_toolchain", DefaultInToolsRepository: true},
					{Name: "crosstool_top", Type: "label", Visibility: "private"},
				},
			},
			{
				Name: "apple",
				Fields: []fragments.FieldSpec{
					{Name: "xcode_version", Type: "string", Visibility: "public"},
				},
			},
		},
	}
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "catalog.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("expected health check to fail before Init")
	}

	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	// Migrating twice is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, table := range []string{"fragments", "fragment_fields", "catalog_imports"} {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

func TestSaveAndLoadCatalog(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.LoadCatalog(ctx); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected ErrCatalogNotFound, got %v", err)
	}

	want := testCatalog()
	if err := store.SaveCatalog(ctx, "catalog.yaml", want); err != nil {
		t.Fatalf("failed to save catalog: %v", err)
	}

	got, err := store.LoadCatalog(ctx)
	if err != nil {
		t.Fatalf("failed to load catalog: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("catalog mismatch (-want +got):\n%s", diff)
	}

	registry, err := got.Registry()
	if err != nil {
		t.Fatalf("stored catalog does not build a registry: %v", err)
	}
	if _, ok := registry.Lookup("cpp"); !ok {
		t.Error("expected cpp fragment in registry")
	}
}

func TestSaveCatalog_Replaces(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.SaveCatalog(ctx, "first.yaml", testCatalog()); err != nil {
		t.Fatalf("failed to save catalog: %v", err)
	}

	second := &fragments.Catalog{
		Version: "2024.2",
		Fragments: []fragments.FragmentSpec{
			{Name: "java", Fields: []fragments.FieldSpec{{Name: "javac", Type: "label", Visibility: "public"}}},
		},
	}
	if err := store.SaveCatalog(ctx, "second.cue", second); err != nil {
		t.Fatalf("failed to save catalog: %v", err)
	}

	summaries, err := store.ListFragments(ctx)
	if err != nil {
		t.Fatalf("failed to list fragments: %v", err)
	}
	want := []FragmentSummary{{Name: "java", Fields: 1, PublicFields: 1}}
	if diff := cmp.Diff(want, summaries); diff != "" {
		t.Errorf("fragments mismatch (-want +got):\n%s", diff)
	}

	imports, err := store.ListImports(ctx, 10)
	if err != nil {
		t.Fatalf("failed to list imports: %v", err)
	}
	if len(imports) != 2 || imports[0].Source != "second.cue" || imports[0].Version != "2024.2" {
		t.Errorf("unexpected imports: %+v", imports)
	}
}

func TestSaveCatalog_InvalidLeavesStoreUntouched(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.SaveCatalog(ctx, "good.yaml", testCatalog()); err != nil {
		t.Fatalf("failed to save catalog: %v", err)
	}

	bad := &fragments.Catalog{
		Fragments: []fragments.FragmentSpec{
			{Name: "cpp", Fields: []fragments.FieldSpec{{Name: "x", Type: "float"}}},
		},
	}
	if err := store.SaveCatalog(ctx, "bad.yaml", bad); err == nil {
		t.Fatal("expected validation error")
	}

	got, err := store.LoadCatalog(ctx)
	if err != nil {
		t.Fatalf("failed to load catalog: %v", err)
	}
	if diff := cmp.Diff(testCatalog(), got); diff != "" {
		t.Errorf("catalog changed after failed save (-want +got):\n%s", diff)
	}
}

func TestGetFragment(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.SaveCatalog(ctx, "catalog.yaml", testCatalog()); err != nil {
		t.Fatalf("failed to save catalog: %v", err)
	}

	spec, err := store.GetFragment(ctx, "cpp")
	if err != nil {
		t.Fatalf("failed to get fragment: %v", err)
	}
	if diff := cmp.Diff(testCatalog().Fragments[0], *spec); diff != "" {
		t.Errorf("fragment mismatch (-want +got):\n%s", diff)
	}

	if _, err := store.GetFragment(ctx, "java"); !errors.Is(err, ErrFragmentNotFound) {
		t.Errorf("expected ErrFragmentNotFound, got %v", err)
	}
}

func TestListFragments(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.SaveCatalog(ctx, "catalog.yaml", testCatalog()); err != nil {
		t.Fatalf("failed to save catalog: %v", err)
	}

	got, err := store.ListFragments(ctx)
	if err != nil {
		t.Fatalf("failed to list fragments: %v", err)
	}
	want := []FragmentSummary{
		{Name: "apple", Fields: 1, PublicFields: 1},
		{Name: "cpp", Doc: "C++ toolchain configuration", Fields: 3, PublicFields: 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("fragments mismatch (-want +got):\n%s", diff)
	}
}

func TestOperationsRequireInit(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	ctx := context.Background()

	if err := store.Migrate(ctx); err == nil {
		t.Error("expected Migrate to fail before Init")
	}
	if err := store.SaveCatalog(ctx, "x", testCatalog()); err == nil {
		t.Error("expected SaveCatalog to fail before Init")
	}
	if _, err := store.ListFragments(ctx); err == nil {
		t.Error("expected ListFragments to fail before Init")
	}
}
