package serialization

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// Reserved keys of a serialized component.
const (
	KeyClass     = "@class"
	KeyVersion   = "@version"
	KeyVariables = "@variables"
	KeyType      = "type"
)

// Dict is the backend-neutral serialized form of a component: a tree of
// maps, scalars, slices and *tensor.RawTensor arrays.
//
// Values decoded from JSON or YAML arrive as float64 and []any; the typed
// accessors accept those forms as well as the native Go types.
type Dict map[string]any

// Has reports whether key is present.
func (d Dict) Has(key string) bool {
	_, ok := d[key]
	return ok
}

// Get returns the raw value under key.
func (d Dict) Get(key string) (any, error) {
	v, ok := d[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingKey, key)
	}
	return v, nil
}

// Keys returns the keys in sorted order.
func (d Dict) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func typeErr(key string, want string, v any) error {
	return fmt.Errorf("%w: %q should be %s, got %T", ErrTypeMismatch, key, want, v)
}

// String returns the string under key.
func (d Dict) String(key string) (string, error) {
	v, err := d.Get(key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", typeErr(key, "a string", v)
	}
	return s, nil
}

// StringOr returns the string under key, or def when the key is absent.
func (d Dict) StringOr(key, def string) (string, error) {
	if !d.Has(key) || d[key] == nil {
		return def, nil
	}
	return d.String(key)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case int32:
		return int(x), true
	case uint64:
		return int(x), true
	default:
		f, ok := toFloat(v)
		if !ok || f != math.Trunc(f) {
			return 0, false
		}
		return int(f), true
	}
}

// Float returns the number under key.
func (d Dict) Float(key string) (float64, error) {
	v, err := d.Get(key)
	if err != nil {
		return 0, err
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, typeErr(key, "a number", v)
	}
	return f, nil
}

// FloatOr returns the number under key, or def when the key is absent.
func (d Dict) FloatOr(key string, def float64) (float64, error) {
	if !d.Has(key) || d[key] == nil {
		return def, nil
	}
	return d.Float(key)
}

// Int returns the integer under key.
func (d Dict) Int(key string) (int, error) {
	v, err := d.Get(key)
	if err != nil {
		return 0, err
	}
	i, ok := toInt(v)
	if !ok {
		return 0, typeErr(key, "an integer", v)
	}
	return i, nil
}

// IntOr returns the integer under key, or def when the key is absent.
func (d Dict) IntOr(key string, def int) (int, error) {
	if !d.Has(key) || d[key] == nil {
		return def, nil
	}
	return d.Int(key)
}

// Bool returns the boolean under key.
func (d Dict) Bool(key string) (bool, error) {
	v, err := d.Get(key)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, typeErr(key, "a bool", v)
	}
	return b, nil
}

// BoolOr returns the boolean under key, or def when the key is absent.
func (d Dict) BoolOr(key string, def bool) (bool, error) {
	if !d.Has(key) || d[key] == nil {
		return def, nil
	}
	return d.Bool(key)
}

// IntsValue converts a decoded list to []int.
func IntsValue(v any) ([]int, bool) {
	switch x := v.(type) {
	case []int:
		out := make([]int, len(x))
		copy(out, x)
		return out, true
	case []any:
		out := make([]int, len(x))
		for i, e := range x {
			n, ok := toInt(e)
			if !ok {
				return nil, false
			}
			out[i] = n
		}
		return out, true
	case []float64:
		out := make([]int, len(x))
		for i, e := range x {
			n, ok := toInt(e)
			if !ok {
				return nil, false
			}
			out[i] = n
		}
		return out, true
	default:
		return nil, false
	}
}

// Ints returns the integer list under key.
func (d Dict) Ints(key string) ([]int, error) {
	v, err := d.Get(key)
	if err != nil {
		return nil, err
	}
	out, ok := IntsValue(v)
	if !ok {
		return nil, typeErr(key, "a list of integers", v)
	}
	return out, nil
}

// IntsOr returns the integer list under key, or def when the key is absent.
func (d Dict) IntsOr(key string, def []int) ([]int, error) {
	if !d.Has(key) || d[key] == nil {
		return def, nil
	}
	return d.Ints(key)
}

// Floats returns the number list under key.
func (d Dict) Floats(key string) ([]float64, error) {
	v, err := d.Get(key)
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case []float64:
		out := make([]float64, len(x))
		copy(out, x)
		return out, nil
	case []any:
		out := make([]float64, len(x))
		for i, e := range x {
			f, ok := toFloat(e)
			if !ok {
				return nil, typeErr(key, "a list of numbers", v)
			}
			out[i] = f
		}
		return out, nil
	default:
		return nil, typeErr(key, "a list of numbers", v)
	}
}

// Strings returns the string list under key.
func (d Dict) Strings(key string) ([]string, error) {
	v, err := d.Get(key)
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case []string:
		out := make([]string, len(x))
		copy(out, x)
		return out, nil
	case []any:
		out := make([]string, len(x))
		for i, e := range x {
			s, ok := e.(string)
			if !ok {
				return nil, typeErr(key, "a list of strings", v)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, typeErr(key, "a list of strings", v)
	}
}

// StringsOr returns the string list under key, or def when absent or null.
func (d Dict) StringsOr(key string, def []string) ([]string, error) {
	if !d.Has(key) || d[key] == nil {
		return def, nil
	}
	return d.Strings(key)
}

// IntPairs returns a list of integer pairs such as exclude_types.
func (d Dict) IntPairs(key string) ([][2]int, error) {
	if !d.Has(key) || d[key] == nil {
		return nil, nil
	}
	v := d[key]
	switch x := v.(type) {
	case [][2]int:
		out := make([][2]int, len(x))
		copy(out, x)
		return out, nil
	case [][]int:
		out := make([][2]int, len(x))
		for i, p := range x {
			if len(p) != 2 {
				return nil, typeErr(key, "a list of pairs", v)
			}
			out[i] = [2]int{p[0], p[1]}
		}
		return out, nil
	case []any:
		out := make([][2]int, len(x))
		for i, e := range x {
			p, ok := IntsValue(e)
			if !ok || len(p) != 2 {
				return nil, typeErr(key, "a list of pairs", v)
			}
			out[i] = [2]int{p[0], p[1]}
		}
		return out, nil
	default:
		return nil, typeErr(key, "a list of pairs", v)
	}
}

// Dict returns the nested dictionary under key.
func (d Dict) Dict(key string) (Dict, error) {
	v, err := d.Get(key)
	if err != nil {
		return nil, err
	}
	out, ok := AsDict(v)
	if !ok {
		return nil, typeErr(key, "a dictionary", v)
	}
	return out, nil
}

// AsDict converts a decoded map to Dict.
func AsDict(v any) (Dict, bool) {
	switch x := v.(type) {
	case Dict:
		return x, true
	case map[string]any:
		return Dict(x), true
	default:
		return nil, false
	}
}

// Array returns the array under key.
func (d Dict) Array(key string) (*tensor.RawTensor, error) {
	v, err := d.Get(key)
	if err != nil {
		return nil, err
	}
	t, ok := v.(*tensor.RawTensor)
	if !ok {
		return nil, typeErr(key, "an array", v)
	}
	return t, nil
}

// ArrayOr returns the array under key, or nil when absent or null.
func (d Dict) ArrayOr(key string) (*tensor.RawTensor, error) {
	if !d.Has(key) || d[key] == nil {
		return nil, nil
	}
	return d.Array(key)
}

// Clone returns a deep copy. Arrays are copied as well.
func (d Dict) Clone() Dict {
	out := make(Dict, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case Dict:
		return x.Clone()
	case map[string]any:
		return Dict(x).Clone()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case []int:
		return append([]int(nil), x...)
	case []float64:
		return append([]float64(nil), x...)
	case []string:
		return append([]string(nil), x...)
	case [][2]int:
		return append([][2]int(nil), x...)
	case *tensor.RawTensor:
		return x.Clone()
	default:
		return v
	}
}

// CheckVersion verifies that the "@version" entry lies in
// [minVersion, maxVersion]. A missing entry counts as version 1.
func CheckVersion(d Dict, maxVersion, minVersion int) error {
	version, err := d.IntOr(KeyVersion, 1)
	if err != nil {
		return err
	}
	if version < minVersion || version > maxVersion {
		return fmt.Errorf("%w: current version is %d, but supported versions are %d to %d",
			ErrIncompatibleVersion, version, minVersion, maxVersion)
	}
	return nil
}

// CheckClass verifies the "@class" entry.
func CheckClass(d Dict, want string) error {
	got, err := d.String(KeyClass)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: expected %q, got %q", ErrClassMismatch, want, got)
	}
	return nil
}

// Variables returns the "@variables" sub-dictionary.
func (d Dict) Variables() (Dict, error) {
	return d.Dict(KeyVariables)
}
