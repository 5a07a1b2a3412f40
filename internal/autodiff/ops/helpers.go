package ops

import (
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// reduceBroadcast reduces a gradient tensor to match the target shape.
// This is necessary when broadcasting was used in the forward pass.
//
// Example:
//
//	Forward: a[3,1] + b[3,4] -> c[3,4]  (a was broadcast along dim 1)
//	Backward: grad_c[3,4] -> grad_a[3,1] (sum along dim 1)
func reduceBroadcast(grad *tensor.RawTensor, targetShape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	gradShape := grad.Shape()

	// If shapes already match, clone to avoid aliasing issues
	if gradShape.Equal(targetShape) {
		return grad.Clone()
	}

	// Sum leading dimensions the target does not have
	result := grad
	for i := 0; i < len(gradShape)-len(targetShape); i++ {
		result = backend.SumDim(result, 0, false)
	}

	// Now sum along dimensions where target is 1
	for i := 0; i < len(targetShape); i++ {
		if targetShape[i] == 1 && result.Shape()[i] > 1 {
			result = backend.SumDim(result, i, true)
		}
	}

	if !result.Shape().Equal(targetShape) {
		result = backend.Reshape(result, targetShape)
	}
	return result
}

// negate returns -t.
func negate(t *tensor.RawTensor) *tensor.RawTensor {
	out := tensor.Zeros(t.Shape()...)
	dst := out.Data()
	for i, v := range t.Data() {
		dst[i] = -v
	}
	return out
}
