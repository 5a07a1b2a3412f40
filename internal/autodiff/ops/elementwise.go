package ops

import "github.com/Yi-FanLi/deepmd-kit/internal/tensor"

type binaryKind int

const (
	kindAdd binaryKind = iota
	kindSub
	kindMul
)

// BinaryOp is an element-wise a+b, a-b or a*b with broadcasting. The
// gradient of each input is summed over the dimensions it was broadcast
// along, so a per-type bias [1, n] added to [nloc, n] rows gets the row sum.
type BinaryOp struct {
	kind   binaryKind
	inputs []*tensor.RawTensor // [a, b]
	output *tensor.RawTensor
}

// NewAddOp records output = a + b.
func NewAddOp(a, b, output *tensor.RawTensor) *BinaryOp {
	return &BinaryOp{kind: kindAdd, inputs: []*tensor.RawTensor{a, b}, output: output}
}

// NewSubOp records output = a - b.
func NewSubOp(a, b, output *tensor.RawTensor) *BinaryOp {
	return &BinaryOp{kind: kindSub, inputs: []*tensor.RawTensor{a, b}, output: output}
}

// NewMulOp records output = a * b.
func NewMulOp(a, b, output *tensor.RawTensor) *BinaryOp {
	return &BinaryOp{kind: kindMul, inputs: []*tensor.RawTensor{a, b}, output: output}
}

// Backward returns the gradients of a and b.
func (op *BinaryOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	a, b := op.inputs[0], op.inputs[1]
	ga, gb := outputGrad, outputGrad
	switch op.kind {
	case kindSub:
		gb = negate(outputGrad)
	case kindMul:
		ga = backend.Mul(outputGrad, b)
		gb = backend.Mul(outputGrad, a)
	}
	return []*tensor.RawTensor{
		reduceBroadcast(ga, a.Shape(), backend),
		reduceBroadcast(gb, b.Shape(), backend),
	}
}

// Inputs returns [a, b].
func (op *BinaryOp) Inputs() []*tensor.RawTensor { return op.inputs }

// Output returns the result.
func (op *BinaryOp) Output() *tensor.RawTensor { return op.output }
