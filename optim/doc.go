// Copyright 2025 DeePMD-kit developers. All rights reserved.
// Use of this source code is governed by an LGPL-3.0-or-later
// license that can be found in the LICENSE file.

// Package optim provides the optimizers of the training backend.
//
// # Overview
//
// This package contains:
//   - SGD: stochastic gradient descent with momentum
//   - Adam: adaptive moment estimation with bias correction
//   - Optimizer interface for custom optimizers
//
// Optimizers update the parameters of a train.Backend in place from the
// gradients its Backward stored on them.
//
// # Basic Usage
//
//	b := train.New()
//	m, _ := atomicmodel.Deserialize(b, payload)
//	opt := optim.NewAdam(b.Parameters(), optim.AdamConfig{LR: 1e-3})
//	for step := 0; step < nsteps; step++ {
//	    out, _ := m.Forward(coord, atype, box, nil, nil)
//	    b.Backward(loss(out))
//	    b.Apply(opt)
//	}
package optim
