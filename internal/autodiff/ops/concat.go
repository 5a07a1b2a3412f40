package ops

import "github.com/Yi-FanLi/deepmd-kit/internal/tensor"

// ConcatOp records a concatenation along dim. The backward pass slices
// the output gradient back into per-input pieces.
type ConcatOp struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
	dim    int
}

// NewConcatOp creates a new ConcatOp. dim must already be non-negative.
func NewConcatOp(inputs []*tensor.RawTensor, output *tensor.RawTensor, dim int) *ConcatOp {
	return &ConcatOp{inputs: inputs, output: output, dim: dim}
}

// Backward splits outputGrad along dim.
func (op *ConcatOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	shape := outputGrad.Shape()
	outer := 1
	for i := 0; i < op.dim; i++ {
		outer *= shape[i]
	}
	inner := 1
	for i := op.dim + 1; i < len(shape); i++ {
		inner *= shape[i]
	}
	rowLen := shape[op.dim] * inner

	grads := make([]*tensor.RawTensor, len(op.inputs))
	start := 0
	src := outputGrad.Data()
	for k, in := range op.inputs {
		g := tensor.Zeros(in.Shape()...)
		chunk := in.Shape()[op.dim] * inner
		dst := g.Data()
		for o := 0; o < outer; o++ {
			copy(dst[o*chunk:(o+1)*chunk], src[o*rowLen+start:o*rowLen+start+chunk])
		}
		start += chunk
		grads[k] = g
	}
	return grads
}

// Inputs returns the input tensors.
func (op *ConcatOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the output tensor.
func (op *ConcatOp) Output() *tensor.RawTensor {
	return op.output
}
