// Copyright 2025 DeePMD-kit developers. All rights reserved.
// Use of this source code is governed by an LGPL-3.0-or-later
// license that can be found in the LICENSE file.

// Package autodiff provides reverse-mode automatic differentiation.
//
// The backend wraps any other backend and records every operation on a
// gradient tape. Arrays converted with Variable become named leaves, so
// the gradient of a model output with respect to any network weight can
// be read by parameter name.
//
// Example:
//
//	b := autodiff.New(cpu.New())
//	b.Tape().StartRecording()
//	d, _ := descriptor.Deserialize(b, payload)
//	out, _ := d.Forward(coord, atype, nlist, nil)
//	grads := b.Gradients(b.SumDim(out.Descriptor, 2, false))
package autodiff

import (
	"github.com/Yi-FanLi/deepmd-kit/internal/autodiff"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// Backend is the autodiff-enabled backend.
type Backend[B tensor.Backend] = autodiff.AutodiffBackend[B]

// New creates a new autodiff backend wrapping the given backend.
func New[B tensor.Backend](backend B) *Backend[B] {
	return autodiff.New(backend)
}

// GradientTape records operations for automatic differentiation.
type GradientTape = autodiff.GradientTape

// NewGradientTape creates a new gradient tape.
func NewGradientTape() *GradientTape {
	return autodiff.NewGradientTape()
}

// BackwardCapable interface for backends that support backpropagation.
type BackwardCapable = autodiff.BackwardCapable

// Backward computes the gradient of t with respect to every tensor on the
// tape.
func Backward(t *tensor.RawTensor, backend BackwardCapable) map[*tensor.RawTensor]*tensor.RawTensor {
	return autodiff.Backward(t, backend)
}
