package evaluator

import (
	"context"
	"fmt"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/confield/confield/pkg/starlarkapi"
	"github.com/confield/confield/pkg/telemetry"
)

// maxOutputValues bounds the number of values converted for one global.
const maxOutputValues = 1 << 16

// cyclePlaceholder stands in for a list, dict or struct that contains itself.
const cyclePlaceholder = "<cycle>"

// outputOf converts the public globals of a module. Names starting with "_"
// and callables are skipped, as is any global too large to convert.
func outputOf(ctx context.Context, globals starlark.StringDict) map[string]interface{} {
	output := make(map[string]interface{})
	for name, val := range globals {
		if len(name) > 0 && name[0] == '_' {
			continue
		}
		if _, ok := val.(starlark.Callable); ok {
			continue
		}
		goVal, err := fromStarlarkValue(val)
		if err != nil {
			telemetry.FromContext(ctx).WithField("global", name).WithError(err).Debug("output skipped")
			continue
		}
		output[name] = goVal
	}
	return output
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []string:
		list := make([]starlark.Value, len(val))
		for i, s := range val {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			starlarkItem, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = starlarkItem
		}
		return starlark.NewList(list), nil
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		dict := starlark.NewDict(len(val))
		for _, k := range keys {
			starlarkVal, err := toStarlarkValue(val[k])
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), starlarkVal); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts a Starlark value to a Go value. A late-bound
// default becomes a map describing it, a value that contains itself is cut
// at the repeat, and values with no Go counterpart become their string form.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	c := &converter{active: make(map[starlark.Value]bool)}
	return c.convert(v)
}

type converter struct {
	active map[starlark.Value]bool
	count  int
}

// push marks v as being converted. It reports false if v is already on the
// current path.
func (c *converter) push(v starlark.Value) bool {
	if c.active[v] {
		return false
	}
	c.active[v] = true
	return true
}

func (c *converter) convert(v starlark.Value) (interface{}, error) {
	c.count++
	if c.count > maxOutputValues {
		return nil, fmt.Errorf("value exceeds %d elements", maxOutputValues)
	}

	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		if i, ok := val.Int64(); ok {
			return i, nil
		}
		return val.String(), nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlarkapi.Value:
		d := val.Default()
		return map[string]interface{}{
			"late_bound": d.FragmentName() + "." + d.FieldName(),
		}, nil
	case *starlark.List:
		if !c.push(val) {
			return cyclePlaceholder, nil
		}
		defer delete(c.active, val)

		list := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := c.convert(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case starlark.Tuple:
		list := make([]interface{}, len(val))
		for i, elem := range val {
			item, err := c.convert(elem)
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case *starlark.Dict:
		if !c.push(val) {
			return cyclePlaceholder, nil
		}
		defer delete(c.active, val)

		dict := make(map[string]interface{}, val.Len())
		for _, item := range val.Items() {
			value, err := c.convert(item[1])
			if err != nil {
				return nil, err
			}
			dict[dictKey(item[0])] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		if !c.push(val) {
			return cyclePlaceholder, nil
		}
		defer delete(c.active, val)

		dict := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := c.convert(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return v.String(), nil
	}
}

func dictKey(k starlark.Value) string {
	if s, ok := k.(starlark.String); ok {
		return string(s)
	}
	return k.String()
}
