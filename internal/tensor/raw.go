package tensor

import (
	"fmt"
	"math"
)

// RawTensor is the float64 array every backend computes on.
//
// Data is stored contiguously in row-major order. Reshape returns a view
// sharing the same buffer; Clone returns a deep copy.
type RawTensor struct {
	data   []float64
	shape  Shape
	stride []int
}

// NewRaw creates a zero-filled RawTensor with the given shape.
func NewRaw(shape Shape) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	return &RawTensor{
		data:   make([]float64, shape.NumElements()),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
	}, nil
}

// Zeros creates a zero-filled tensor. Panics on a negative dimension.
func Zeros(shape ...int) *RawTensor {
	t, err := NewRaw(Shape(shape))
	if err != nil {
		panic(err)
	}
	return t
}

// Full creates a tensor filled with value.
func Full(value float64, shape ...int) *RawTensor {
	t := Zeros(shape...)
	for i := range t.data {
		t.data[i] = value
	}
	return t
}

// FromSlice creates a tensor from a Go slice.
// The slice is copied into the tensor's memory.
func FromSlice(data []float64, shape ...int) (*RawTensor, error) {
	s := Shape(shape)
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if s.NumElements() != len(data) {
		return nil, fmt.Errorf("%w: shape %v requires %d elements, but got %d", ErrShapeMismatch, s, s.NumElements(), len(data))
	}
	t := Zeros(shape...)
	copy(t.data, data)
	return t, nil
}

// MustFromSlice is FromSlice that panics on error. Intended for literals in tests and tables.
func MustFromSlice(data []float64, shape ...int) *RawTensor {
	t, err := FromSlice(data, shape...)
	if err != nil {
		panic(err)
	}
	return t
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the tensor's memory strides.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return len(r.data)
}

// Ndim returns the number of dimensions.
func (r *RawTensor) Ndim() int {
	return len(r.shape)
}

// Dim returns the size of dimension i. Negative i counts from the end.
func (r *RawTensor) Dim(i int) int {
	if i < 0 {
		i += len(r.shape)
	}
	return r.shape[i]
}

// Data returns the underlying slice.
// WARNING: Modifications to the returned slice will modify the tensor.
func (r *RawTensor) Data() []float64 {
	return r.data
}

// Clone creates a deep copy of the tensor.
func (r *RawTensor) Clone() *RawTensor {
	if r == nil {
		return nil
	}
	out := &RawTensor{
		data:   make([]float64, len(r.data)),
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
	}
	copy(out.data, r.data)
	return out
}

// Reshape returns a view with a new shape. One dimension may be -1.
func (r *RawTensor) Reshape(shape ...int) (*RawTensor, error) {
	s, err := Shape(shape).Resolve(len(r.data))
	if err != nil {
		return nil, err
	}
	return &RawTensor{
		data:   r.data,
		shape:  s,
		stride: s.ComputeStrides(),
	}, nil
}

// MustReshape is Reshape that panics on error.
func (r *RawTensor) MustReshape(shape ...int) *RawTensor {
	out, err := r.Reshape(shape...)
	if err != nil {
		panic(err)
	}
	return out
}

func (r *RawTensor) offset(indices []int) int {
	if len(indices) != len(r.shape) {
		panic(fmt.Sprintf("expected %d indices, got %d", len(r.shape), len(indices)))
	}
	offset := 0
	for i, idx := range indices {
		if idx < 0 || idx >= r.shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d (size %d)", idx, i, r.shape[i]))
		}
		offset += idx * r.stride[i]
	}
	return offset
}

// At returns the element at the given indices.
// Panics if indices are out of bounds.
func (r *RawTensor) At(indices ...int) float64 {
	return r.data[r.offset(indices)]
}

// Set sets the element at the given indices.
// Panics if indices are out of bounds.
func (r *RawTensor) Set(value float64, indices ...int) {
	r.data[r.offset(indices)] = value
}

// CopyFrom copies src's data into r. Shapes must hold the same number of elements.
func (r *RawTensor) CopyFrom(src *RawTensor) error {
	if len(src.data) != len(r.data) {
		return fmt.Errorf("%w: copy %v into %v", ErrShapeMismatch, src.shape, r.shape)
	}
	copy(r.data, src.data)
	return nil
}

// Equal reports exact elementwise equality including shape.
func (r *RawTensor) Equal(other *RawTensor) bool {
	if r == nil || other == nil {
		return r == other
	}
	if !r.shape.Equal(other.shape) {
		return false
	}
	for i, v := range r.data {
		if v != other.data[i] {
			return false
		}
	}
	return true
}

// AllClose reports whether the tensors have the same shape and every pair of
// elements satisfies |a-b| <= atol + rtol*|b|.
func (r *RawTensor) AllClose(other *RawTensor, rtol, atol float64) bool {
	if !r.shape.Equal(other.shape) {
		return false
	}
	for i, a := range r.data {
		b := other.data[i]
		if math.Abs(a-b) > atol+rtol*math.Abs(b) {
			return false
		}
	}
	return true
}

// String returns a human-readable representation of the tensor.
func (r *RawTensor) String() string {
	return fmt.Sprintf("Tensor[float64]%v", r.shape)
}
