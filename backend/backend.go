// Copyright 2025 DeePMD-kit developers. All rights reserved.
// Use of this source code is governed by an LGPL-3.0-or-later
// license that can be found in the LICENSE file.

// Package backend selects compute backends by name.
//
// Names and aliases:
//   - "cpu", "numpy", "dp": plain arrays
//   - "autodiff", "jax": gradient tape
//   - "train", "pytorch": gradient tape plus parameter store
package backend

import (
	internalbackend "github.com/Yi-FanLi/deepmd-kit/internal/backend"
	"github.com/Yi-FanLi/deepmd-kit/tensor"
)

// Factory creates a fresh backend instance.
type Factory = internalbackend.Factory

// New returns a new backend registered under name.
func New(name string) (tensor.Backend, error) {
	return internalbackend.New(name)
}

// Names returns every registered backend name and alias.
func Names() []string {
	return internalbackend.Names()
}

// Register adds a backend under name and aliases. It panics when a name is
// taken.
func Register(name string, f Factory, aliases ...string) {
	internalbackend.Register(name, f, aliases...)
}
