// Package autodiff implements automatic differentiation using the decorator pattern.
//
// AutodiffBackend wraps any Backend implementation and adds gradient tracking
// capabilities through a GradientTape. Parameters created with Variable are
// registered by name so their gradients can be looked up after Backward.
//
// Usage:
//
//	b := autodiff.New(cpu.New())
//	b.Tape().StartRecording()
//	w := b.Variable("w", tensor.MustFromSlice([]float64{2}, 1))
//	y := b.Mul(w, w)
//	grads := b.Gradients(y) // grads["w"] = 2w = 4
package autodiff

import (
	"sort"

	"github.com/Yi-FanLi/deepmd-kit/internal/autodiff/ops"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// AutodiffBackend wraps a Backend and adds automatic differentiation.
// It implements the tensor.Backend interface and records operations in a GradientTape.
//
// Type parameter B must satisfy the tensor.Backend interface.
type AutodiffBackend[B tensor.Backend] struct {
	inner  B             // Wrapped backend
	tape   *GradientTape // Records operations for backpropagation
	leaves map[string]*tensor.RawTensor
}

// New creates a new AutodiffBackend wrapping the given backend.
func New[B tensor.Backend](backend B) *AutodiffBackend[B] {
	return &AutodiffBackend[B]{
		inner:  backend,
		tape:   NewGradientTape(),
		leaves: make(map[string]*tensor.RawTensor),
	}
}

// Tape returns the gradient tape for manual control.
// Useful for:
//   - Starting/stopping recording
//   - Clearing tape between iterations
//   - Inspecting recorded operations
func (b *AutodiffBackend[B]) Tape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend for direct access.
func (b *AutodiffBackend[B]) Inner() B {
	return b.inner
}

// Name returns the backend name.
func (b *AutodiffBackend[B]) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

// Variable registers value as a named leaf of the graph.
// Registering the same name twice replaces the earlier leaf.
func (b *AutodiffBackend[B]) Variable(name string, value *tensor.RawTensor) *tensor.RawTensor {
	leaf := b.inner.Variable(name, value)
	if name != "" {
		b.leaves[name] = leaf
	}
	return leaf
}

// Leaf returns the tensor registered under name.
func (b *AutodiffBackend[B]) Leaf(name string) (*tensor.RawTensor, bool) {
	t, ok := b.leaves[name]
	return t, ok
}

// LeafNames returns the registered leaf names in sorted order.
func (b *AutodiffBackend[B]) LeafNames() []string {
	names := make([]string, 0, len(b.leaves))
	for n := range b.leaves {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Gradients runs Backward from output and returns the gradient of every
// named leaf that the output depends on.
func (b *AutodiffBackend[B]) Gradients(output *tensor.RawTensor) map[string]*tensor.RawTensor {
	grads := Backward(output, b)
	out := make(map[string]*tensor.RawTensor, len(b.leaves))
	for name, leaf := range b.leaves {
		if g, ok := grads[leaf]; ok {
			out[name] = g
		}
	}
	return out
}

// StopGradient returns a copy of t that is detached from the graph.
// Integer tensors never carry gradients; the copy keeps callers from
// mutating the neighbor list the tape may still reference.
func (b *AutodiffBackend[B]) StopGradient(t *tensor.IntTensor) *tensor.IntTensor {
	return t.Clone()
}

// Add performs element-wise addition and records the operation.
func (b *AutodiffBackend[B]) Add(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Add(a, c)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewAddOp(a, c, result))
	}
	return result
}

// Sub performs element-wise subtraction and records the operation.
func (b *AutodiffBackend[B]) Sub(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Sub(a, c)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewSubOp(a, c, result))
	}
	return result
}

// Mul performs element-wise multiplication and records the operation.
func (b *AutodiffBackend[B]) Mul(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Mul(a, c)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewMulOp(a, c, result))
	}
	return result
}

// MatMul performs matrix multiplication and records the operation.
func (b *AutodiffBackend[B]) MatMul(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.MatMul(a, c)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewMatMulOp(a, c, result))
	}
	return result
}

// Reshape reshapes a tensor and records the operation.
//
// Reshape must be recorded: the inner backend returns a new tensor and
// without a ReshapeOp the gradient would stop at the reshaped copy.
func (b *AutodiffBackend[B]) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	result := b.inner.Reshape(t, newShape)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewReshapeOp(t, result))
	}
	return result
}

// Transpose transposes a 2D tensor and records the operation.
func (b *AutodiffBackend[B]) Transpose(t *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Transpose(t)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewTransposeOp(t, result))
	}
	return result
}

// Concat concatenates tensors along dim and records the operation.
func (b *AutodiffBackend[B]) Concat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	result := b.inner.Concat(tensors, dim)
	if b.tape.IsRecording() {
		if dim < 0 {
			dim += result.Ndim()
		}
		inputs := make([]*tensor.RawTensor, len(tensors))
		copy(inputs, tensors)
		b.tape.Record(ops.NewConcatOp(inputs, result, dim))
	}
	return result
}

// SumDim sums along dim and records the operation.
func (b *AutodiffBackend[B]) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	result := b.inner.SumDim(x, dim, keepDim)
	if b.tape.IsRecording() {
		if dim < 0 {
			dim += x.Ndim()
		}
		b.tape.Record(ops.NewSumDimOp(x, result, dim, keepDim))
	}
	return result
}

// Activate applies fn element-wise and records the operation.
func (b *AutodiffBackend[B]) Activate(x *tensor.RawTensor, fn tensor.Activation) *tensor.RawTensor {
	result := b.inner.Activate(x, fn)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewActivationOp(x, result, fn))
	}
	return result
}
