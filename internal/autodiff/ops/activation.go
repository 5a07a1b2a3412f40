package ops

import (
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// ActivationOp represents y = fn(x) for any tensor.Activation.
//
// grad_input = grad_output * fn'(x).
type ActivationOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
	fn     tensor.Activation
}

// NewActivationOp creates a new activation operation.
func NewActivationOp(input, output *tensor.RawTensor, fn tensor.Activation) *ActivationOp {
	return &ActivationOp{
		input:  input,
		output: output,
		fn:     fn,
	}
}

// Inputs returns the input tensors.
func (op *ActivationOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *ActivationOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes the gradient using the activation's derivative.
func (op *ActivationOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	deriv := tensor.Zeros(op.input.Shape()...)
	d := deriv.Data()
	for i, x := range op.input.Data() {
		d[i] = op.fn.Grad(x)
	}
	return []*tensor.RawTensor{backend.Mul(outputGrad, deriv)}
}
