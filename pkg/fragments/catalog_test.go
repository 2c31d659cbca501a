package fragments

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const testCatalogYAML = `
version: "1"
fragments:
  - name: cpp
    doc: C++ toolchain options
    fields:
      - name: compiler
        type: label
      - name: cc_toolchain
        type: label
        default_label: //tools/cpp:current_cc_toolchain
        default_in_tools_repository: true
      - name: internal_flags
        type: string_list
        visibility: private
  - name: apple
    fields:
      - name: xcode_config_label
`

const testCatalogCUE = `
version: "1"
fragments: [
	{
		name: "cpp"
		fields: [
			{name: "compiler", type: "label"},
			{name: "internal_flags", type: "string_list", visibility: "private"},
		]
	},
]
`

func TestParseCatalogYAML(t *testing.T) {
	c, err := ParseCatalogYAML([]byte(testCatalogYAML))
	if err != nil {
		t.Fatalf("ParseCatalogYAML() failed: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}

	reg, err := c.Registry()
	if err != nil {
		t.Fatalf("Registry() failed: %v", err)
	}
	if diff := cmp.Diff([]string{"apple", "cpp"}, reg.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}

	cpp, _ := reg.Lookup("cpp")
	f, ok := cpp.Field("cc_toolchain")
	if !ok {
		t.Fatal("expected cc_toolchain field")
	}
	if f.DefaultLabel != "//tools/cpp:current_cc_toolchain" || !f.DefaultInToolsRepository {
		t.Errorf("unexpected default label settings: %+v", f)
	}

	f, _ = cpp.Field("internal_flags")
	if f.Public() {
		t.Error("internal_flags should be private")
	}

	apple, _ := reg.Lookup("apple")
	f, _ = apple.Field("xcode_config_label")
	if f.Type != ValueTypeLabel {
		t.Errorf("expected default label type, got %s", f.Type)
	}
}

func TestLoadCatalogFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(yamlPath, []byte(testCatalogYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cuePath := filepath.Join(dir, "catalog.cue")
	if err := os.WriteFile(cuePath, []byte(testCatalogCUE), 0o644); err != nil {
		t.Fatal(err)
	}
	txtPath := filepath.Join(dir, "catalog.txt")
	if err := os.WriteFile(txtPath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	yc, err := LoadCatalogFile(yamlPath)
	if err != nil {
		t.Fatalf("LoadCatalogFile(yaml) failed: %v", err)
	}
	if len(yc.Fragments) != 2 {
		t.Errorf("expected 2 fragments from YAML, got %d", len(yc.Fragments))
	}

	cc, err := LoadCatalogFile(cuePath)
	if err != nil {
		t.Fatalf("LoadCatalogFile(cue) failed: %v", err)
	}
	want := []FieldSpec{
		{Name: "compiler", Type: "label"},
		{Name: "internal_flags", Type: "string_list", Visibility: "private"},
	}
	if diff := cmp.Diff(want, cc.Fragments[0].Fields); diff != "" {
		t.Errorf("CUE fields mismatch (-want +got):\n%s", diff)
	}
	if _, err := cc.Registry(); err != nil {
		t.Errorf("Registry() from CUE failed: %v", err)
	}

	if _, err := LoadCatalogFile(txtPath); err == nil {
		t.Error("expected error for unsupported extension")
	}
	if _, err := LoadCatalogFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCatalog_Validate(t *testing.T) {
	tests := []struct {
		name    string
		catalog Catalog
		wantErr string
	}{
		{
			name:    "no fragments",
			catalog: Catalog{},
			wantErr: "catalog validation failed",
		},
		{
			name: "missing field name",
			catalog: Catalog{Fragments: []FragmentSpec{
				{Name: "cpp", Fields: []FieldSpec{{Type: "label"}}},
			}},
			wantErr: "catalog validation failed",
		},
		{
			name: "bad value type",
			catalog: Catalog{Fragments: []FragmentSpec{
				{Name: "cpp", Fields: []FieldSpec{{Name: "compiler", Type: "float"}}},
			}},
			wantErr: "catalog validation failed",
		},
		{
			name: "fragment name rejected by schema",
			catalog: Catalog{Fragments: []FragmentSpec{
				{Name: "Cpp"},
			}},
			wantErr: "schema validation failed",
		},
		{
			name: "field name rejected by schema",
			catalog: Catalog{Fragments: []FragmentSpec{
				{Name: "cpp", Fields: []FieldSpec{{Name: "cc-toolchain"}}},
			}},
			wantErr: "schema validation failed",
		},
		{
			name: "tools repository without default label",
			catalog: Catalog{Fragments: []FragmentSpec{
				{Name: "cpp", Fields: []FieldSpec{{Name: "cc_toolchain", DefaultInToolsRepository: true}}},
			}},
			wantErr: "without default_label",
		},
		{
			name: "tools repository with absolute label",
			catalog: Catalog{Fragments: []FragmentSpec{
				{Name: "cpp", Fields: []FieldSpec{{
					Name:                     "cc_toolchain",
					DefaultLabel:             "@bazel_tools//tools/cpp:toolchain",
					DefaultInToolsRepository: true,
				}}},
			}},
			wantErr: "must be repository-relative",
		},
		{
			name: "valid",
			catalog: Catalog{Fragments: []FragmentSpec{
				{Name: "cpp", Fields: []FieldSpec{{Name: "compiler"}}},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.catalog.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestCatalog_DuplicateFragment(t *testing.T) {
	c := Catalog{Fragments: []FragmentSpec{{Name: "cpp"}, {Name: "cpp"}}}
	if _, err := c.Registry(); err == nil {
		t.Error("expected duplicate fragment error")
	}
}

func TestSpecOf_RoundTrip(t *testing.T) {
	c, err := ParseCatalogYAML([]byte(testCatalogYAML))
	if err != nil {
		t.Fatal(err)
	}
	reg, err := c.Registry()
	if err != nil {
		t.Fatal(err)
	}

	cpp, _ := reg.Lookup("cpp")
	spec := SpecOf(cpp)

	rebuilt, err := spec.FragmentType()
	if err != nil {
		t.Fatalf("FragmentType() failed: %v", err)
	}
	if diff := cmp.Diff(spec, SpecOf(rebuilt)); diff != "" {
		t.Errorf("spec mismatch (-want +got):\n%s", diff)
	}
}
