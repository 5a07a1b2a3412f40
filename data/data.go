// Copyright 2025 DeePMD-kit developers. All rights reserved.
// Use of this source code is governed by an LGPL-3.0-or-later
// license that can be found in the LICENSE file.

// Package data provides the training data collaborators and the
// statistics cache location used by ComputeInputStats.
package data

import (
	"github.com/Yi-FanLi/deepmd-kit/internal/data"
	"github.com/Yi-FanLi/deepmd-kit/internal/dpath"
)

// Frame is one configuration of a System.
type Frame = data.Frame

// System is a set of atoms whose types stay fixed across frames.
type System = data.System

// DataSystem is a collection of systems sharing one type map.
type DataSystem = data.DataSystem

// MemorySystem is a System held in memory.
type MemorySystem = data.MemorySystem

// MemoryDataSystem is a DataSystem held in memory.
type MemoryDataSystem = data.MemoryDataSystem

// Sample is a batch of frames packed into arrays.
type Sample = data.Sample

// Sampler returns the samples statistics are computed from.
type Sampler = data.Sampler

// NewMemorySystem validates frames against atype.
func NewMemorySystem(atype []int, frames []Frame, noPBC bool) (*MemorySystem, error) {
	return data.NewMemorySystem(atype, frames, noPBC)
}

// NewMemoryDataSystem groups systems under typeMap.
func NewMemoryDataSystem(typeMap []string, systems ...System) (*MemoryDataSystem, error) {
	return data.NewMemoryDataSystem(typeMap, systems...)
}

// NewSampler packs up to nbatches batches of batchSize frames from every
// system. The packing happens once, on the first call.
func NewSampler(ds DataSystem, nbatches, batchSize int) Sampler {
	return data.NewSampler(ds, nbatches, batchSize)
}

// FromSamples wraps fixed samples in a Sampler.
func FromSamples(samples ...Sample) Sampler {
	return data.FromSamples(samples...)
}

// StatPath is a location inside a statistics cache.
type StatPath = dpath.Path

// Cache modes.
const (
	ReadWrite = dpath.ReadWrite
	ReadOnly  = dpath.ReadOnly
)

// NewStatPath opens the statistics cache rooted at dir.
func NewStatPath(dir string, mode dpath.Mode) *StatPath {
	return dpath.New(dir, mode)
}
