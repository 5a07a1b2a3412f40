package serialization

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// flattenTree replaces every array in d with a reference object and returns
// the arrays in discovery order. Keys are visited in sorted order so the
// layout of a file is deterministic.
func flattenTree(d Dict) (any, []string, map[string]*tensor.RawTensor) {
	var order []string
	arrays := make(map[string]*tensor.RawTensor)
	var walk func(v any, path []string) any
	walk = func(v any, path []string) any {
		switch x := v.(type) {
		case *tensor.RawTensor:
			name := uniqueName(tensorName(path), arrays)
			arrays[name] = x
			order = append(order, name)
			return map[string]any{tensorRefKey: name}
		case Dict:
			return walkMap(x, path, walk)
		case map[string]any:
			return walkMap(Dict(x), path, walk)
		case []Dict:
			out := make([]any, len(x))
			for i, e := range x {
				out[i] = walk(e, childPath(path, strconv.Itoa(i)))
			}
			return out
		case []any:
			out := make([]any, len(x))
			for i, e := range x {
				out[i] = walk(e, childPath(path, strconv.Itoa(i)))
			}
			return out
		default:
			return v
		}
	}
	return walk(d, nil), order, arrays
}

func walkMap(d Dict, path []string, walk func(any, []string) any) map[string]any {
	out := make(map[string]any, len(d))
	for _, k := range d.Keys() {
		out[k] = walk(d[k], childPath(path, k))
	}
	return out
}

func childPath(path []string, key string) []string {
	p := make([]string, len(path), len(path)+1)
	copy(p, path)
	return append(p, key)
}

func tensorName(path []string) string {
	parts := make([]string, 0, len(path))
	for _, p := range path {
		p = strings.TrimPrefix(p, "@")
		p = strings.NewReplacer("/", "_", "\\", "_", "..", "_", "\x00", "").Replace(p)
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "value"
	}
	return strings.Join(parts, ".")
}

func uniqueName(name string, taken map[string]*tensor.RawTensor) string {
	if _, ok := taken[name]; !ok {
		return name
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d", name, i)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

// inflateTree is the inverse of flattenTree: reference objects are
// replaced with the arrays returned by load.
func inflateTree(v any, load func(name string) (*tensor.RawTensor, error)) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		if ref, ok := x[tensorRefKey]; ok && len(x) == 1 {
			name, ok := ref.(string)
			if !ok {
				return nil, fmt.Errorf("%w: tensor reference must be a string, got %T", ErrTypeMismatch, ref)
			}
			return load(name)
		}
		out := make(Dict, len(x))
		for k, e := range x {
			inflated, err := inflateTree(e, load)
			if err != nil {
				return nil, err
			}
			out[k] = inflated
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			inflated, err := inflateTree(e, load)
			if err != nil {
				return nil, err
			}
			out[i] = inflated
		}
		return out, nil
	default:
		return v, nil
	}
}
