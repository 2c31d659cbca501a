package fragments

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

const catalogSchema = `
#Field: {
	// Field names are Starlark identifiers.
	name: string & =~"^[A-Za-z_][A-Za-z0-9_]*$"

	type?:       "label" | "label_list" | "string" | "string_list" | "bool" | "int"
	visibility?: "public" | "private"
	doc?:        string

	default_label?:               string
	default_in_tools_repository?: bool
}

#Fragment: {
	name:    string & =~"^[a-z][a-z0-9_]*$"
	doc?:    string
	fields?: [...#Field]
}

#Catalog: {
	version?:  string
	fragments: [...#Fragment]
}
`

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaVal  cue.Value
	schemaErr  error

	// cue.Context is not safe for concurrent use.
	schemaMu sync.Mutex
)

func catalogDefinition() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		root := schemaCtx.CompileString(catalogSchema, cue.Filename("catalog_schema.cue"))
		if err := root.Err(); err != nil {
			schemaErr = fmt.Errorf("failed to compile catalog schema: %w", err)
			return
		}
		schemaVal = root.LookupPath(cue.ParsePath("#Catalog"))
		schemaErr = schemaVal.Err()
	})
	return schemaCtx, schemaVal, schemaErr
}

// validateCatalogSchema unifies the catalog with the closed #Catalog
// definition.
func validateCatalogSchema(c *Catalog) error {
	ctx, schema, err := catalogDefinition()
	if err != nil {
		return err
	}

	schemaMu.Lock()
	defer schemaMu.Unlock()

	data := ctx.Encode(c)
	if err := data.Err(); err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}

	if err := schema.Unify(data).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("catalog schema validation failed: %w", err)
	}
	return nil
}
