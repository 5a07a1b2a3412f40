// Package data defines the training-data collaborators consumed by the
// statistics code: a data system is a list of systems, each a fixed set of
// typed atoms observed over a number of frames.
package data

import (
	"errors"
	"fmt"
)

// ErrInvalidSystem is returned when a system's arrays disagree in size.
var ErrInvalidSystem = errors.New("invalid data system")

// Frame is one configuration of a system.
type Frame struct {
	Coord  []float64 // [nloc*3]
	Box    []float64 // [9] row-major cell vectors, nil without periodic boundaries
	Fparam []float64 // [numb_fparam], nil when absent
	Aparam []float64 // [nloc*numb_aparam], nil when absent
}

// System is a set of atoms whose types stay fixed across frames.
type System interface {
	NumFrames() int
	// Atype returns the type index of every atom.
	Atype() []int
	Frame(i int) (Frame, error)
	// NoPBC reports whether the system has open boundaries.
	NoPBC() bool
}

// DataSystem is the training set seen by statistics and update_sel.
type DataSystem interface {
	TypeMap() []string
	Systems() []System
}

// MemorySystem is a System held in memory.
type MemorySystem struct {
	atype  []int
	frames []Frame
	noPBC  bool
}

// NewMemorySystem validates frames against atype and returns the system.
func NewMemorySystem(atype []int, frames []Frame, noPBC bool) (*MemorySystem, error) {
	nloc := len(atype)
	for i, f := range frames {
		if len(f.Coord) != 3*nloc {
			return nil, fmt.Errorf("%w: frame %d has %d coordinates for %d atoms", ErrInvalidSystem, i, len(f.Coord), nloc)
		}
		if !noPBC && len(f.Box) != 9 {
			return nil, fmt.Errorf("%w: frame %d needs a 9-element box", ErrInvalidSystem, i)
		}
		if i > 0 && (len(f.Fparam) != len(frames[0].Fparam) || len(f.Aparam) != len(frames[0].Aparam)) {
			return nil, fmt.Errorf("%w: frame %d has a different fparam/aparam size", ErrInvalidSystem, i)
		}
		if nloc > 0 && len(f.Aparam)%nloc != 0 {
			return nil, fmt.Errorf("%w: frame %d aparam size %d is not a multiple of %d atoms", ErrInvalidSystem, i, len(f.Aparam), nloc)
		}
	}
	return &MemorySystem{
		atype:  append([]int(nil), atype...),
		frames: frames,
		noPBC:  noPBC,
	}, nil
}

// NumFrames returns the number of frames.
func (s *MemorySystem) NumFrames() int { return len(s.frames) }

// Atype returns the atom types.
func (s *MemorySystem) Atype() []int { return s.atype }

// NoPBC reports whether the system has open boundaries.
func (s *MemorySystem) NoPBC() bool { return s.noPBC }

// Frame returns frame i.
func (s *MemorySystem) Frame(i int) (Frame, error) {
	if i < 0 || i >= len(s.frames) {
		return Frame{}, fmt.Errorf("frame %d out of range [0, %d)", i, len(s.frames))
	}
	return s.frames[i], nil
}

// MemoryDataSystem is a DataSystem held in memory.
type MemoryDataSystem struct {
	typeMap []string
	systems []System
}

// NewMemoryDataSystem groups systems under one type map. Every atom type
// must index into typeMap.
func NewMemoryDataSystem(typeMap []string, systems ...System) (*MemoryDataSystem, error) {
	for i, s := range systems {
		for _, t := range s.Atype() {
			if t < 0 || t >= len(typeMap) {
				return nil, fmt.Errorf("%w: system %d has atom type %d outside type map %v", ErrInvalidSystem, i, t, typeMap)
			}
		}
	}
	return &MemoryDataSystem{typeMap: append([]string(nil), typeMap...), systems: systems}, nil
}

// TypeMap returns the type names.
func (d *MemoryDataSystem) TypeMap() []string { return d.typeMap }

// Systems returns the systems.
func (d *MemoryDataSystem) Systems() []System { return d.systems }
