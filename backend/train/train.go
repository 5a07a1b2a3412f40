// Copyright 2025 DeePMD-kit developers. All rights reserved.
// Use of this source code is governed by an LGPL-3.0-or-later
// license that can be found in the LICENSE file.

// Package train provides the tensor-training backend: a gradient tape
// over the CPU backend whose named variables form a parameter store.
//
// Example:
//
//	b := train.New()
//	m, _ := atomicmodel.Deserialize(b, payload)
//	out, _ := m.Forward(coord, atype, box, nil, nil)
//	b.Backward(loss(out))
//	b.Step(1e-3)
package train

import (
	internaltrain "github.com/Yi-FanLi/deepmd-kit/internal/backend/train"
	"github.com/Yi-FanLi/deepmd-kit/tensor"
)

// Backend is the training backend.
type Backend = internaltrain.Backend

var (
	_ tensor.Backend         = (*Backend)(nil)
	_ tensor.GradientStopper = (*Backend)(nil)
)

// New returns a training backend that is already recording.
func New() *Backend {
	return internaltrain.New()
}
