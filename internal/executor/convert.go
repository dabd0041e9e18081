package executor

import (
	"fmt"
	"sort"
	"time"

	"go.starlark.net/starlark"
)

// goToStarlark converts an argument value into its Starlark form. Maps and
// slices convert recursively; unrepresentable values degrade to their
// string rendering so a call never fails on conversion alone.
func goToStarlark(v any) starlark.Value {
	switch x := v.(type) {
	case nil:
		return starlark.None
	case bool:
		return starlark.Bool(x)
	case string:
		return starlark.String(x)
	case int:
		return starlark.MakeInt(x)
	case int32:
		return starlark.MakeInt64(int64(x))
	case int64:
		return starlark.MakeInt64(x)
	case float32:
		return starlark.Float(float64(x))
	case float64:
		return starlark.Float(x)
	case time.Time:
		return starlark.String(x.Format(time.RFC3339))
	case []byte:
		return starlark.String(string(x))
	case map[string]any:
		d := starlark.NewDict(len(x))
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			_ = d.SetKey(starlark.String(k), goToStarlark(x[k]))
		}
		return d
	case []map[string]any:
		elems := make([]starlark.Value, len(x))
		for i, e := range x {
			elems[i] = goToStarlark(e)
		}
		return starlark.NewList(elems)
	case []any:
		elems := make([]starlark.Value, len(x))
		for i, e := range x {
			elems[i] = goToStarlark(e)
		}
		return starlark.NewList(elems)
	default:
		return starlark.String(fmt.Sprintf("%v", x))
	}
}

// starlarkToGo converts a script result back into plain Go values suitable
// for JSON rendering and chain substitution.
func starlarkToGo(v starlark.Value) any {
	switch x := v.(type) {
	case starlark.NoneType:
		return nil
	case starlark.Bool:
		return bool(x)
	case starlark.String:
		return string(x)
	case starlark.Int:
		if i, ok := x.Int64(); ok {
			return i
		}
		return x.String()
	case starlark.Float:
		return float64(x)
	case *starlark.Dict:
		out := make(map[string]any, x.Len())
		for _, item := range x.Items() {
			key := item[0]
			if s, ok := key.(starlark.String); ok {
				out[string(s)] = starlarkToGo(item[1])
			} else {
				out[key.String()] = starlarkToGo(item[1])
			}
		}
		return out
	case *starlark.List:
		out := make([]any, 0, x.Len())
		it := x.Iterate()
		defer it.Done()
		var elem starlark.Value
		for it.Next(&elem) {
			out = append(out, starlarkToGo(elem))
		}
		return out
	case starlark.Tuple:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = starlarkToGo(e)
		}
		return out
	default:
		return v.String()
	}
}

// argsToDict builds the Starlark dict a tool's run function receives.
func argsToDict(arguments map[string]any) *starlark.Dict {
	d := starlark.NewDict(len(arguments))
	keys := make([]string, 0, len(arguments))
	for k := range arguments {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_ = d.SetKey(starlark.String(k), goToStarlark(arguments[k]))
	}
	return d
}

// dictToMap converts a Starlark dict argument (e.g. the args of a sub-call)
// into a Go map.
func dictToMap(d *starlark.Dict) map[string]any {
	out := make(map[string]any, d.Len())
	for _, item := range d.Items() {
		if s, ok := item[0].(starlark.String); ok {
			out[string(s)] = starlarkToGo(item[1])
		} else {
			out[item[0].String()] = starlarkToGo(item[1])
		}
	}
	return out
}
