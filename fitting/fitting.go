// Copyright 2025 DeePMD-kit developers. All rights reserved.
// Use of this source code is governed by an LGPL-3.0-or-later
// license that can be found in the LICENSE file.

// Package fitting provides the fitting contract and the fitting heads.
//
// Fittings are selected by the "type" of their configuration:
//   - "invar": any per-atom invariant named by var_name
//   - "ener": the atomic energy
//   - "dipole": a per-atom vector contracted with the descriptor rotation
//
// Example:
//
//	f, err := fitting.New(cpu.New(), map[string]any{
//	    "type": "ener", "ntypes": 2, "dim_descrpt": d.GetDimOut(),
//	})
//	out, err := f.Forward(fitting.Input{Descriptor: desc.Descriptor, Atype: atype})
package fitting

import (
	"github.com/Yi-FanLi/deepmd-kit/internal/fitting"
	"github.com/Yi-FanLi/deepmd-kit/internal/serialization"
	"github.com/Yi-FanLi/deepmd-kit/tensor"
)

// Fitting is the contract every fitting implements.
type Fitting = fitting.Fitting

// Input holds the arguments of Fitting.Forward.
type Input = fitting.Input

// OutputVariableDef describes one output of a fitting.
type OutputVariableDef = fitting.OutputVariableDef

// ValidationError reports an input with an unexpected shape.
type ValidationError = fitting.ValidationError

// Plugin is the registry entry of a fitting variant.
type Plugin = fitting.Plugin

// Registered fitting types.
const (
	TypeInvar  = fitting.TypeInvar
	TypeEner   = fitting.TypeEner
	TypeDipole = fitting.TypeDipole
)

// Variable keys of Set and Get.
const (
	KeyBiasAtomE    = fitting.KeyBiasAtomE
	KeyFparamAvg    = fitting.KeyFparamAvg
	KeyFparamInvStd = fitting.KeyFparamInvStd
	KeyAparamAvg    = fitting.KeyAparamAvg
	KeyAparamInvStd = fitting.KeyAparamInvStd
)

var (
	ErrInvalidConfig = fitting.ErrInvalidConfig
	ErrUnknownKey    = fitting.ErrUnknownKey
	ErrNotSupported  = fitting.ErrNotSupported
)

// New builds the fitting selected by cfg["type"] on backend b.
func New(b tensor.Backend, cfg map[string]any) (Fitting, error) {
	return fitting.New(b, cfg)
}

// Deserialize rebuilds the fitting selected by d["type"] on backend b.
func Deserialize(b tensor.Backend, d map[string]any) (Fitting, error) {
	return fitting.Deserialize(b, serialization.Dict(d))
}

// Register adds a fitting variant under tag and aliases.
func Register(tag string, p Plugin, aliases ...string) {
	fitting.Register(tag, p, aliases...)
}

// GetClassByType returns the plugin registered under tag.
func GetClassByType(tag string) (Plugin, error) {
	return fitting.GetClassByType(tag)
}

// Types returns the registered tags and aliases.
func Types() []string {
	return fitting.Types()
}
