package evaluator

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/confield/confield/pkg/starlarkapi"
)

// collectBindings finds every late-bound default reachable from globals
// through dicts, lists, tuples and structs. Each list, dict or struct is
// visited once, under the first path that reaches it.
func collectBindings(globals starlark.StringDict) []Binding {
	w := &walker{seen: make(map[starlark.Value]bool)}
	for _, name := range globals.Keys() {
		w.walk(name, name, globals[name])
	}
	out := w.out
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Path < out[j].Path
	})
	return out
}

type walker struct {
	seen map[starlark.Value]bool
	out  []Binding
}

// enter reports whether v is visited for the first time. Tuples are not
// tracked: they are immutable and reach a cycle only through a list or dict.
func (w *walker) enter(v starlark.Value) bool {
	if w.seen[v] {
		return false
	}
	w.seen[v] = true
	return true
}

func (w *walker) walk(path, attr string, v starlark.Value) {
	switch val := v.(type) {
	case *starlarkapi.Value:
		w.out = append(w.out, newBinding(path, attr, val))
	case *starlark.Dict:
		if !w.enter(val) {
			return
		}
		for _, item := range val.Items() {
			if key, ok := item[0].(starlark.String); ok {
				w.walk(path+"."+string(key), attrName(string(key), attr), item[1])
				continue
			}
			w.walk(fmt.Sprintf("%s[%s]", path, item[0].String()), attr, item[1])
		}
	case *starlark.List:
		if !w.enter(val) {
			return
		}
		for i := 0; i < val.Len(); i++ {
			w.walk(fmt.Sprintf("%s[%d]", path, i), attr, val.Index(i))
		}
	case starlark.Tuple:
		for i, elem := range val {
			w.walk(fmt.Sprintf("%s[%d]", path, i), attr, elem)
		}
	case *starlarkstruct.Struct:
		if !w.enter(val) {
			return
		}
		for _, name := range val.AttrNames() {
			field, err := val.Attr(name)
			if err != nil {
				continue
			}
			w.walk(path+"."+name, attrName(name, attr), field)
		}
	}
}

func attrName(key, parent string) string {
	if key == "default" {
		return parent
	}
	return key
}

func newBinding(path, attr string, v *starlarkapi.Value) Binding {
	d := v.Default()
	b := Binding{
		Path:            path,
		Attribute:       attr,
		Position:        v.Pos().String(),
		Fragment:        d.FragmentName(),
		Field:           d.FieldName(),
		ValueType:       string(d.ValueType()),
		ToolsRepository: d.ToolsRepository(),
		Pos:             v.Pos(),
		Default:         d,
	}
	if l, ok := d.DefaultLabel(); ok {
		b.DefaultLabel = l.Format()
	}
	if f, ok := d.FragmentType().Field(d.FieldName()); ok {
		b.DefaultInToolsRepository = f.DefaultInToolsRepository
	}
	return b
}
