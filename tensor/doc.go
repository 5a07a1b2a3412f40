// Copyright 2025 DeePMD-kit developers. All rights reserved.
// Use of this source code is governed by an LGPL-3.0-or-later
// license that can be found in the LICENSE file.

// Package tensor provides the arrays every DeePMD-kit component exchanges.
//
// # Overview
//
// Coordinates, environment matrices, network weights and per-atom outputs
// are float64 RawTensors; atom types, neighbor lists and ghost mappings are
// IntTensors in which -1 marks padding or a virtual atom. Shapes follow the
// frame-major layout of the model:
//   - coordinates: [nf, nall*3]
//   - atom types: [nf, nall]
//   - neighbor list: [nf, nloc, nnei]
//   - descriptor: [nf, nloc, dim_out]
//
// # Basic Usage
//
//	coord := tensor.MustFromSlice([]float64{0, 0, 0, 1, 0, 0}, 1, 6)
//	atype := tensor.MustInt([]int{0, 1}, 1, 2)
//
// Backends implement the numeric operations on RawTensors; see the backend
// and autodiff packages.
package tensor
