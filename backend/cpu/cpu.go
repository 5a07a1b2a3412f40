// Copyright 2025 DeePMD-kit developers. All rights reserved.
// Use of this source code is governed by an LGPL-3.0-or-later
// license that can be found in the LICENSE file.

package cpu

import (
	internalcpu "github.com/Yi-FanLi/deepmd-kit/internal/backend/cpu"
	"github.com/Yi-FanLi/deepmd-kit/tensor"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a new CPU backend.
func New() *Backend {
	return internalcpu.New()
}
