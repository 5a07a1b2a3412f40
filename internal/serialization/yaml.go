package serialization

import (
	"bytes"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// EncodeYAML writes d as YAML. Arrays become
// {"@class": "np.ndarray", "dtype": "float64", "shape": [...], "value": [...]}
// with values flattened in row-major order.
func EncodeYAML(w io.Writer, d Dict) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(arraysToPlain(d)); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return enc.Close()
}

// DecodeYAML reads a tree written by EncodeYAML.
func DecodeYAML(r io.Reader) (Dict, error) {
	var raw map[string]any
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode yaml: %w", err)
	}
	v, err := plainToArrays(raw)
	if err != nil {
		return nil, err
	}
	d, ok := v.(Dict)
	if !ok {
		return nil, fmt.Errorf("%w: yaml root must be a dictionary", ErrTypeMismatch)
	}
	return d, nil
}

// MarshalYAML is EncodeYAML into a byte slice.
func MarshalYAML(d Dict) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeYAML(&buf, d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func arraysToPlain(v any) any {
	switch x := v.(type) {
	case *tensor.RawTensor:
		value := make([]float64, x.NumElements())
		copy(value, x.Data())
		return map[string]any{
			KeyClass:   ndarrayClassName,
			KeyVersion: 1,
			"dtype":    DTypeFloat64,
			"shape":    []int(x.Shape().Clone()),
			"value":    value,
		}
	case Dict:
		return arraysToPlain(map[string]any(x))
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = arraysToPlain(e)
		}
		return out
	case []Dict:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = arraysToPlain(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = arraysToPlain(e)
		}
		return out
	case [][2]int:
		out := make([][]int, len(x))
		for i, p := range x {
			out[i] = []int{p[0], p[1]}
		}
		return out
	default:
		return v
	}
}

func plainToArrays(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		if cls, _ := x[KeyClass].(string); cls == ndarrayClassName {
			return decodeNDArray(Dict(x))
		}
		out := make(Dict, len(x))
		for k, e := range x {
			converted, err := plainToArrays(e)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = converted
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			converted, err := plainToArrays(e)
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return out, nil
	default:
		return v, nil
	}
}

func decodeNDArray(d Dict) (*tensor.RawTensor, error) {
	dtype, err := d.StringOr("dtype", DTypeFloat64)
	if err != nil {
		return nil, err
	}
	if dtype != DTypeFloat64 {
		return nil, fmt.Errorf("%w: unsupported dtype %q", ErrTypeMismatch, dtype)
	}
	shape, err := d.Ints("shape")
	if err != nil {
		return nil, err
	}
	var value []float64
	if d["value"] != nil {
		value, err = d.Floats("value")
		if err != nil {
			return nil, err
		}
	}
	if value == nil {
		value = []float64{}
	}
	return tensor.FromSlice(value, shape...)
}
