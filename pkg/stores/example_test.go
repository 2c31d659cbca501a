package stores_test

import (
	"context"
	"fmt"
	"log"

	"github.com/confield/confield/pkg/fragments"
	"github.com/confield/confield/pkg/stores"
)

// ExampleNewSQLiteStore demonstrates creating and initializing a new SQLite store.
func ExampleNewSQLiteStore() {
	store, err := stores.NewSQLiteStore(stores.Config{
		Path: ":memory:", // Use in-memory database for example
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}
	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_SaveCatalog demonstrates importing a catalog and
// listing the stored fragments.
func ExampleSQLiteStore_SaveCatalog() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	catalog, err := fragments.ParseCatalogYAML([]byte(`
fragments:
  - name: cpp
    fields:
      - name: compiler
        type: string
      - name: cc_toolchain
        default_label: //tools/cpp:current_cc_toolchain
        default_in_tools_repository: true
`))
	if err != nil {
		log.Fatal(err)
	}

	if err := store.SaveCatalog(ctx, "catalog.yaml", catalog); err != nil {
		log.Fatal(err)
	}

	summaries, _ := store.ListFragments(ctx)
	for _, s := range summaries {
		fmt.Printf("%s: %d fields\n", s.Name, s.Fields)
	}
	// Output: cpp: 2 fields
}
