// Copyright 2025 DeePMD-kit developers. All rights reserved.
// Use of this source code is governed by an LGPL-3.0-or-later
// license that can be found in the LICENSE file.

// Package atomicmodel composes a descriptor and fittings into an atomic
// model and reads and writes model files.
//
// Example:
//
//	m, err := atomicmodel.Load("water.dp", cpu.New())
//	out, err := m.Forward(coord, atype, box, nil, nil)
//	energy := out["energy"] // [nf, nloc, 1]
package atomicmodel

import (
	"github.com/Yi-FanLi/deepmd-kit/descriptor"
	"github.com/Yi-FanLi/deepmd-kit/fitting"
	"github.com/Yi-FanLi/deepmd-kit/internal/atomicmodel"
	"github.com/Yi-FanLi/deepmd-kit/internal/serialization"
	"github.com/Yi-FanLi/deepmd-kit/tensor"
)

// DPAtomicModel is a descriptor followed by fittings sharing its output.
type DPAtomicModel = atomicmodel.DPAtomicModel

// KeyMask names the per-atom mask among the outputs.
const KeyMask = atomicmodel.KeyMask

var (
	ErrIncompatible = atomicmodel.ErrIncompatible
	ErrNotSupported = atomicmodel.ErrNotSupported
)

// New composes d with fittings; the first fitting is the primary one.
func New(b tensor.Backend, d descriptor.Descriptor, fittings ...fitting.Fitting) (*DPAtomicModel, error) {
	return atomicmodel.New(b, d, fittings...)
}

// Deserialize rebuilds a model on backend b.
func Deserialize(b tensor.Backend, d map[string]any) (*DPAtomicModel, error) {
	return atomicmodel.Deserialize(b, serialization.Dict(d))
}

// Load reads a .dp or .yaml model file and rebuilds the model on b.
func Load(path string, b tensor.Backend) (*DPAtomicModel, error) {
	d, err := serialization.LoadModel(path)
	if err != nil {
		return nil, err
	}
	return atomicmodel.Deserialize(b, d)
}

// Save writes m to path in the format selected by the extension.
func Save(path string, m *DPAtomicModel) error {
	d, err := m.Serialize()
	if err != nil {
		return err
	}
	return serialization.SaveModel(path, d, serialization.WriteOptions{})
}
