package autodiff

import (
	"fmt"

	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// BackwardCapable is an interface for backends that support backward pass.
// AutodiffBackend implements this interface.
type BackwardCapable interface {
	tensor.Backend
	// GetTape returns the gradient tape for backward computation.
	GetTape() *GradientTape
}

// GetTape returns the gradient tape (implements BackwardCapable interface).
func (b *AutodiffBackend[B]) GetTape() *GradientTape {
	return b.tape
}

// Backward computes gradients of t using the backend's tape, seeding the
// output gradient with ones.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	x := backend.Variable("x", tensor.MustFromSlice([]float64{3}, 1))
//	y := backend.Mul(x, x) // y = x²
//	grads := autodiff.Backward(y, backend)
//	grads[x] // dy/dx = 6
func Backward(t *tensor.RawTensor, backend BackwardCapable) map[*tensor.RawTensor]*tensor.RawTensor {
	tape := backend.GetTape()
	if tape.NumOps() == 0 {
		panic("backward: no operations recorded (did you forget to call Tape().StartRecording()?)")
	}
	if t == nil {
		panic(fmt.Sprintf("backward: nil output on backend %s", backend.Name()))
	}
	return tape.Backward(t, tensor.Full(1, t.Shape()...), backend)
}
