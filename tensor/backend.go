// Copyright 2025 DeePMD-kit developers. All rights reserved.
// Use of this source code is governed by an LGPL-3.0-or-later
// license that can be found in the LICENSE file.

package tensor

import "github.com/Yi-FanLi/deepmd-kit/internal/tensor"

// Backend defines the interface that all compute backends must implement.
// Backends run the network arithmetic; the environment matrix, statistics
// and compression tables are plain Go shared by all of them.
//
// Implementations:
//   - backend/cpu: plain arrays
//   - autodiff: gradient tape over any backend
//   - backend/train: autodiff plus a parameter store updated by SGD
type Backend = tensor.Backend

// GradientStopper is implemented by backends that can detach an index
// tensor from the gradient graph.
type GradientStopper = tensor.GradientStopper
