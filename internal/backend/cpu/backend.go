// Package cpu implements the plain array backend.
//
// It performs every operation eagerly on float64 slices and never tracks
// gradients. It is the reference backend: the other backends decorate it.
package cpu

import (
	"fmt"

	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// CPUBackend implements tensor operations on CPU.
type CPUBackend struct{}

// New creates a new CPU backend.
func New() *CPUBackend {
	return &CPUBackend{}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Variable returns a private copy of value; plain arrays need no wrapping.
func (cpu *CPUBackend) Variable(_ string, value *tensor.RawTensor) *tensor.RawTensor {
	return value.Clone()
}

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return binaryOp("add", a, b, func(x, y float64) float64 { return x + y })
}

// Sub performs element-wise subtraction with broadcasting.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return binaryOp("sub", a, b, func(x, y float64) float64 { return x - y })
}

// Mul performs element-wise multiplication with broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return binaryOp("mul", a, b, func(x, y float64) float64 { return x * y })
}

// Activate applies fn element-wise.
func (cpu *CPUBackend) Activate(x *tensor.RawTensor, fn tensor.Activation) *tensor.RawTensor {
	result := tensor.Zeros(x.Shape()...)
	dst := result.Data()
	for i, v := range x.Data() {
		dst[i] = fn.Apply(v)
	}
	return result
}

func binaryOp(name string, a, b *tensor.RawTensor, f func(x, y float64) float64) *tensor.RawTensor {
	outShape, needsBroadcast, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	result := tensor.Zeros(outShape...)
	dst, ad, bd := result.Data(), a.Data(), b.Data()

	if !needsBroadcast {
		// Fast path: same shape
		for i := range dst {
			dst[i] = f(ad[i], bd[i])
		}
		return result
	}

	// Slow path: broadcasting required
	aStrides := broadcastStrides(a.Shape(), outShape)
	bStrides := broadcastStrides(b.Shape(), outShape)
	broadcastWalk(outShape, aStrides, bStrides, func(i, ia, ib int) {
		dst[i] = f(ad[ia], bd[ib])
	})
	return result
}
