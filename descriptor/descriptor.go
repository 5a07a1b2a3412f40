// Copyright 2025 DeePMD-kit developers. All rights reserved.
// Use of this source code is governed by an LGPL-3.0-or-later
// license that can be found in the LICENSE file.

// Package descriptor provides the descriptor contract and the smooth
// edition descriptors.
//
// Descriptors are selected by the "type" of their configuration:
//   - "se_e2_a" (alias "se_a"): two-body embedding with angular information
//   - "se_e2_r" (alias "se_r"): two-body embedding of distances only
//   - "se_e3" (aliases "se_at", "se_a_3be"): three-body embedding
//
// Example:
//
//	d, err := descriptor.New(cpu.New(), map[string]any{
//	    "type": "se_e2_a", "rcut": 6.0, "rcut_smth": 0.5,
//	    "sel": []int{46, 92}, "neuron": []int{25, 50, 100}, "axis_neuron": 16,
//	})
//	err = d.ComputeInputStats(sampler, nil)
//	out, err := d.Forward(coordExt, atypeExt, nlist, mapping)
package descriptor

import (
	"github.com/Yi-FanLi/deepmd-kit/internal/descriptor"
	"github.com/Yi-FanLi/deepmd-kit/internal/serialization"
	"github.com/Yi-FanLi/deepmd-kit/tensor"
)

// Descriptor is the contract every descriptor implements.
type Descriptor = descriptor.Descriptor

// Output is the result of Descriptor.Forward.
type Output = descriptor.Output

// Plugin is the registry entry of a descriptor variant.
type Plugin = descriptor.Plugin

// Base supplies the default optional methods of a descriptor.
type Base = descriptor.Base

// Registered descriptor types.
const (
	TypeSeA = descriptor.TypeSeA
	TypeSeR = descriptor.TypeSeR
	TypeSeT = descriptor.TypeSeT
)

var (
	ErrStatsNotSupported       = descriptor.ErrStatsNotSupported
	ErrCompressionNotSupported = descriptor.ErrCompressionNotSupported
	ErrNotSupported            = descriptor.ErrNotSupported
	ErrStatisticsMissing       = descriptor.ErrStatisticsMissing
	ErrInvalidConfig           = descriptor.ErrInvalidConfig
	ErrCompressed              = descriptor.ErrCompressed
)

// New builds the descriptor selected by cfg["type"] on backend b.
func New(b tensor.Backend, cfg map[string]any) (Descriptor, error) {
	return descriptor.New(b, cfg)
}

// Deserialize rebuilds the descriptor selected by d["type"] on backend b.
func Deserialize(b tensor.Backend, d map[string]any) (Descriptor, error) {
	return descriptor.Deserialize(b, serialization.Dict(d))
}

// Register adds a descriptor variant under tag and aliases.
func Register(tag string, p Plugin, aliases ...string) {
	descriptor.Register(tag, p, aliases...)
}

// GetClassByType returns the plugin registered under tag.
func GetClassByType(tag string) (Plugin, error) {
	return descriptor.GetClassByType(tag)
}

// Types returns the registered tags and aliases.
func Types() []string {
	return descriptor.Types()
}

// DefaultCompression returns the default table extrapolation, strides and
// overflow check frequency of EnableCompression.
func DefaultCompression() (tableExtrapolate, tableStride1, tableStride2 float64, checkFrequency int) {
	return descriptor.DefaultCompression()
}
