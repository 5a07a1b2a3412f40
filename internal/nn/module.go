// Package nn implements the networks shared by descriptors and fittings.
//
// This package provides:
//   - NativeLayer: y = act(x @ w + b) * idt, with optional residual connection
//   - NativeNet: a stack of NativeLayer
//   - EmbeddingNet: the per-type-pair network of descriptors
//   - FittingNet: the per-type network of fitting heads
//   - NetworkCollection: networks indexed by atom type (or type pair)
//   - Parameter: named trainable arrays used by training backends
//
// Every array a network owns is converted with Backend.Variable exactly once,
// when the network is built or deserialized; evaluation goes through the
// same backend so that differentiable backends can record it.
package nn

import (
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// Module is the interface shared by every network.
type Module interface {
	// Forward computes the output for a 2D input [n, in].
	Forward(input *tensor.RawTensor) *tensor.RawTensor

	// Parameters returns the arrays owned by the module.
	Parameters() []*Parameter
}
