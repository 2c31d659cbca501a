package fragments

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Catalog is the on-disk description of the fragment types available to rule
// definitions. It is read once, before any rule definition is evaluated.
type Catalog struct {
	// Version is an optional catalog format or content version.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	// Fragments lists the fragment types.
	Fragments []FragmentSpec `json:"fragments" yaml:"fragments" validate:"required,dive"`
}

// FragmentSpec describes one fragment type in a Catalog.
type FragmentSpec struct {
	Name   string      `json:"name" yaml:"name" validate:"required"`
	Doc    string      `json:"doc,omitempty" yaml:"doc,omitempty"`
	Fields []FieldSpec `json:"fields,omitempty" yaml:"fields,omitempty" validate:"dive"`
}

// FieldSpec describes one field of a fragment type in a Catalog.
type FieldSpec struct {
	Name                     string `json:"name" yaml:"name" validate:"required"`
	Type                     string `json:"type,omitempty" yaml:"type,omitempty" validate:"omitempty,oneof=label label_list string string_list bool int"`
	Visibility               string `json:"visibility,omitempty" yaml:"visibility,omitempty" validate:"omitempty,oneof=public private"`
	Doc                      string `json:"doc,omitempty" yaml:"doc,omitempty"`
	DefaultLabel             string `json:"default_label,omitempty" yaml:"default_label,omitempty"`
	DefaultInToolsRepository bool   `json:"default_in_tools_repository,omitempty" yaml:"default_in_tools_repository,omitempty"`
}

var catalogValidator = validator.New()

// LoadCatalogFile reads a catalog from a YAML (.yaml, .yml) or CUE (.cue) file.
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseCatalogYAML(data)
	case ".cue":
		return ParseCatalogCUE(path, data)
	default:
		return nil, fmt.Errorf("unsupported catalog file type: %s", path)
	}
}

// ParseCatalogYAML decodes a catalog from YAML.
func ParseCatalogYAML(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
	}
	return &c, nil
}

// ParseCatalogCUE decodes a catalog from CUE source. The filename is only
// used for error positions.
func ParseCatalogCUE(filename string, data []byte) (*Catalog, error) {
	ctx := cuecontext.New()
	val := ctx.CompileBytes(data, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile catalog CUE: %w", err)
	}

	var c Catalog
	if err := val.Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to decode catalog CUE: %w", err)
	}
	return &c, nil
}

// Validate checks the catalog structure and its schema conformance.
func (c *Catalog) Validate() error {
	if err := catalogValidator.Struct(c); err != nil {
		return fmt.Errorf("catalog validation failed: %w", err)
	}
	if err := validateCatalogSchema(c); err != nil {
		return err
	}

	for _, frag := range c.Fragments {
		for _, f := range frag.Fields {
			if f.DefaultInToolsRepository && f.DefaultLabel == "" {
				return fmt.Errorf("fragment %s: field %s sets default_in_tools_repository without default_label", frag.Name, f.Name)
			}
			if f.DefaultInToolsRepository && !strings.HasPrefix(f.DefaultLabel, "//") {
				return fmt.Errorf("fragment %s: field %s default_label %q must be repository-relative (//pkg:target)", frag.Name, f.Name, f.DefaultLabel)
			}
		}
	}
	return nil
}

// Registry validates the catalog and builds an immutable registry from it.
func (c *Catalog) Registry() (*StaticRegistry, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	b := NewBuilder()
	for _, spec := range c.Fragments {
		ft, err := spec.FragmentType()
		if err != nil {
			return nil, err
		}
		if err := b.Add(ft); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}

// FragmentType converts the spec into a fragment type descriptor. Catalog
// fields use the generic accessor.
func (s FragmentSpec) FragmentType() (*FragmentType, error) {
	fields := make([]Field, 0, len(s.Fields))
	for _, f := range s.Fields {
		fields = append(fields, Field{
			Name:                     f.Name,
			Type:                     ValueType(f.Type),
			Visibility:               Visibility(f.Visibility),
			Doc:                      f.Doc,
			DefaultLabel:             f.DefaultLabel,
			DefaultInToolsRepository: f.DefaultInToolsRepository,
		})
	}
	return NewFragmentType(s.Name, s.Doc, fields...)
}

// SpecOf converts a fragment type back into its catalog form.
func SpecOf(ft *FragmentType) FragmentSpec {
	spec := FragmentSpec{Name: ft.Name(), Doc: ft.Doc()}
	for _, f := range ft.Fields() {
		spec.Fields = append(spec.Fields, FieldSpec{
			Name:                     f.Name,
			Type:                     string(f.Type),
			Visibility:               string(f.Visibility),
			Doc:                      f.Doc,
			DefaultLabel:             f.DefaultLabel,
			DefaultInToolsRepository: f.DefaultInToolsRepository,
		})
	}
	return spec
}
