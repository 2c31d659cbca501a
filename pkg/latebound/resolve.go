package latebound

import (
	"fmt"
	"math"

	"github.com/bazelbuild/buildtools/labels"
	"github.com/confield/confield/pkg/fragments"
	"gopkg.in/yaml.v3"
)

// Configuration gives access to the fragment instances of one build
// configuration.
type Configuration interface {
	Fragment(name string) (fragments.Instance, bool)
}

// MapConfiguration is a Configuration keyed by fragment name.
type MapConfiguration map[string]fragments.Instance

// Fragment implements Configuration.
func (m MapConfiguration) Fragment(name string) (fragments.Instance, bool) {
	inst, ok := m[name]
	return inst, ok
}

// NewConfiguration builds a MapConfiguration from instances.
func NewConfiguration(instances ...fragments.Instance) MapConfiguration {
	m := make(MapConfiguration, len(instances))
	for _, inst := range instances {
		m[inst.FragmentName()] = inst
	}
	return m
}

// configurationDocument is the YAML form of a configuration:
//
//	fragments:
//	  cpp:
//	    compiler: //tools/cpp:gcc
type configurationDocument struct {
	Fragments map[string]map[string]any `yaml:"fragments"`
}

// ParseConfigurationYAML decodes a configuration document into map-backed
// fragment instances.
func ParseConfigurationYAML(data []byte) (MapConfiguration, error) {
	var doc configurationDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse configuration YAML: %w", err)
	}

	cfg := make(MapConfiguration, len(doc.Fragments))
	for name, values := range doc.Fragments {
		cfg[name] = fragments.NewMapInstance(name, values)
	}
	return cfg, nil
}

// Resolve extracts the bound value from cfg. When the instance has no value
// the default label is used, if the field declares one. The value is checked
// against the declared field type; labels are returned in canonical form.
func (d *Default) Resolve(cfg Configuration) (any, error) {
	name := d.fragment.Name()

	inst, ok := cfg.Fragment(name)
	if !ok || inst == nil {
		return nil, fmt.Errorf("%w: %s", ErrFragmentNotConfigured, name)
	}
	if inst.FragmentName() != name {
		return nil, fmt.Errorf("%w: configuration supplied fragment %s for %s", ErrTypeMismatch, inst.FragmentName(), name)
	}

	v, ok := d.field.Get(inst)
	if !ok {
		if lbl, ok := d.DefaultLabel(); ok {
			return lbl.Format(), nil
		}
		return nil, fmt.Errorf("%w: %s.%s", ErrNoValue, name, d.field.Name)
	}

	out, err := coerce(d.field.Type, v)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", name, d.field.Name, err)
	}
	return out, nil
}

func coerce(t fragments.ValueType, v any) (any, error) {
	switch t {
	case fragments.ValueTypeLabel:
		s, ok := v.(string)
		if !ok || s == "" {
			return nil, mismatch(t, v)
		}
		return labels.Parse(s).Format(), nil

	case fragments.ValueTypeString:
		s, ok := v.(string)
		if !ok {
			return nil, mismatch(t, v)
		}
		return s, nil

	case fragments.ValueTypeLabelList, fragments.ValueTypeStringList:
		items, ok := stringSlice(v)
		if !ok {
			return nil, mismatch(t, v)
		}
		if t == fragments.ValueTypeLabelList {
			for i, s := range items {
				items[i] = labels.Parse(s).Format()
			}
		}
		return items, nil

	case fragments.ValueTypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, mismatch(t, v)
		}
		return b, nil

	case fragments.ValueTypeInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case uint64:
			if n <= math.MaxInt64 {
				return int64(n), nil
			}
		}
		return nil, mismatch(t, v)
	}
	return nil, fmt.Errorf("unknown value type %q", t)
}

func stringSlice(v any) ([]string, bool) {
	switch items := v.(type) {
	case []string:
		out := make([]string, len(items))
		copy(out, items)
		return out, true
	case []any:
		out := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func mismatch(t fragments.ValueType, v any) error {
	return fmt.Errorf("%w: want %s, got %T", ErrTypeMismatch, t, v)
}
