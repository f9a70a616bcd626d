package directive

import (
	"fmt"
	"maps"
	"sort"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Scope holds the bindings visible to one document's directives. It starts
// as a copy of the shared globals, whose values are frozen so no document
// can mutate them, and collects the names bound by the document's Exec
// directives. Values bound by a document stay mutable for its later
// directives.
type Scope struct {
	Name string
	vars starlark.StringDict
}

// NewScope returns a document scope over the shared globals.
func NewScope(name string, globals starlark.StringDict) *Scope {
	vars := make(starlark.StringDict, len(globals))
	for k, v := range globals {
		v.Freeze()
		vars[k] = v
	}
	return &Scope{Name: name, vars: vars}
}

// Set binds name in the document's scope, shadowing any global.
func (s *Scope) Set(name string, v starlark.Value) {
	s.vars[name] = v
}

// SetGo converts v and binds it.
func (s *Scope) SetGo(name string, v any) error {
	sv, err := ToValue(v)
	if err != nil {
		return fmt.Errorf("binding %q: %w", name, err)
	}
	s.vars[name] = sv
	return nil
}

func (s *Scope) env() starlark.StringDict {
	return s.vars
}

// exec runs a parsed Exec body as a chunk of the document's module, so
// names bound by earlier directives can be rebound, updated in place or
// augmented. Bindings made by a failing chunk are discarded.
func (s *Scope) exec(thread *starlark.Thread, f *syntax.File) error {
	vars := maps.Clone(s.vars)
	if err := starlark.ExecREPLChunk(f, thread, vars); err != nil {
		return err
	}
	s.vars = vars
	return nil
}

// ToValue converts decoded configuration and metadata values into Starlark
// values. Maps become dicts with sorted keys.
func ToValue(v any) (starlark.Value, error) {
	switch x := v.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return x, nil
	case string:
		return starlark.String(x), nil
	case bool:
		return starlark.Bool(x), nil
	case int:
		return starlark.MakeInt(x), nil
	case int64:
		return starlark.MakeInt64(x), nil
	case uint64:
		return starlark.MakeUint64(x), nil
	case float64:
		return starlark.Float(x), nil
	case time.Time:
		return starlark.String(x.Format(time.RFC3339)), nil
	case []string:
		elems := make([]starlark.Value, len(x))
		for i, s := range x {
			elems[i] = starlark.String(s)
		}
		return starlark.NewList(elems), nil
	case []any:
		elems := make([]starlark.Value, len(x))
		for i, e := range x {
			sv, err := ToValue(e)
			if err != nil {
				return nil, err
			}
			elems[i] = sv
		}
		return starlark.NewList(elems), nil
	case map[string][]string:
		d := starlark.NewDict(len(x))
		for _, k := range sortedKeys(x) {
			lv, _ := ToValue(x[k])
			if err := d.SetKey(starlark.String(k), lv); err != nil {
				return nil, err
			}
		}
		return d, nil
	case map[string]any:
		d := starlark.NewDict(len(x))
		for _, k := range sortedKeys(x) {
			sv, err := ToValue(x[k])
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// Globals converts a map of configuration variables into frozen bindings.
func Globals(vars map[string]any) (starlark.StringDict, error) {
	out := make(starlark.StringDict, len(vars))
	for _, k := range sortedKeys(vars) {
		sv, err := ToValue(vars[k])
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", k, err)
		}
		sv.Freeze()
		out[k] = sv
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
