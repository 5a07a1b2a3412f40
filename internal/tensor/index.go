package tensor

import "fmt"

// IntTensor holds integer arrays: atom types, neighbor lists and
// extended-to-local index mappings. A value of -1 marks padding.
type IntTensor struct {
	data  []int
	shape Shape
}

// NewInt creates a tensor from data. The slice is copied.
func NewInt(data []int, shape ...int) (*IntTensor, error) {
	s := Shape(shape)
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if s.NumElements() != len(data) {
		return nil, fmt.Errorf("%w: shape %v requires %d elements, but got %d", ErrShapeMismatch, s, s.NumElements(), len(data))
	}
	out := &IntTensor{data: make([]int, len(data)), shape: s.Clone()}
	copy(out.data, data)
	return out, nil
}

// MustInt is NewInt that panics on error.
func MustInt(data []int, shape ...int) *IntTensor {
	t, err := NewInt(data, shape...)
	if err != nil {
		panic(err)
	}
	return t
}

// FullInt creates an integer tensor filled with value.
func FullInt(value int, shape ...int) *IntTensor {
	s := Shape(shape)
	if err := s.Validate(); err != nil {
		panic(err)
	}
	out := &IntTensor{data: make([]int, s.NumElements()), shape: s.Clone()}
	for i := range out.data {
		out.data[i] = value
	}
	return out
}

// Shape returns the tensor's shape.
func (t *IntTensor) Shape() Shape { return t.shape }

// Data returns the underlying slice.
func (t *IntTensor) Data() []int { return t.data }

// Dim returns the size of dimension i. Negative i counts from the end.
func (t *IntTensor) Dim(i int) int {
	if i < 0 {
		i += len(t.shape)
	}
	return t.shape[i]
}

// Clone returns a deep copy.
func (t *IntTensor) Clone() *IntTensor {
	if t == nil {
		return nil
	}
	out := &IntTensor{data: make([]int, len(t.data)), shape: t.shape.Clone()}
	copy(out.data, t.data)
	return out
}

// Reshape returns a view with a new shape. One dimension may be -1.
func (t *IntTensor) Reshape(shape ...int) (*IntTensor, error) {
	s, err := Shape(shape).Resolve(len(t.data))
	if err != nil {
		return nil, err
	}
	return &IntTensor{data: t.data, shape: s}, nil
}

// Row returns a view of frame f of a tensor with at least two dimensions.
func (t *IntTensor) Row(f int) []int {
	n := len(t.data) / t.shape[0]
	return t.data[f*n : (f+1)*n]
}

// String returns a human-readable representation of the tensor.
func (t *IntTensor) String() string {
	return fmt.Sprintf("Tensor[int]%v", t.shape)
}
