package env

import (
	"fmt"
	"sort"

	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// PairExcludeMask marks atom pairs whose interaction is removed.
// Exclusion is symmetric: excluding (a, b) also excludes (b, a).
type PairExcludeMask struct {
	ntypes   int
	pairs    [][2]int
	excluded map[[2]int]bool
}

// NewPairExcludeMask creates a mask over ntypes types.
func NewPairExcludeMask(ntypes int, pairs [][2]int) (*PairExcludeMask, error) {
	m := &PairExcludeMask{ntypes: ntypes, excluded: make(map[[2]int]bool)}
	for _, p := range pairs {
		if p[0] < 0 || p[0] >= ntypes || p[1] < 0 || p[1] >= ntypes {
			return nil, fmt.Errorf("exclude pair %v out of range for %d types", p, ntypes)
		}
		if m.excluded[p] {
			continue
		}
		m.excluded[p] = true
		m.excluded[[2]int{p[1], p[0]}] = true
		m.pairs = append(m.pairs, p)
	}
	return m, nil
}

// Ntypes returns the number of types.
func (m *PairExcludeMask) Ntypes() int { return m.ntypes }

// ExcludeTypes returns the excluded pairs as given, without duplicates.
func (m *PairExcludeMask) ExcludeTypes() [][2]int {
	return append([][2]int(nil), m.pairs...)
}

// Empty reports whether no pair is excluded.
func (m *PairExcludeMask) Empty() bool { return len(m.pairs) == 0 }

// Excluded reports whether the pair (a, b) is excluded.
func (m *PairExcludeMask) Excluded(a, b int) bool { return m.excluded[[2]int{a, b}] }

// Build returns a [nf, nloc, nnei] mask that is 0 where the center and
// neighbor types form an excluded pair and 1 elsewhere. Empty slots and
// virtual atoms are kept.
func (m *PairExcludeMask) Build(nlist, atypeExt *tensor.IntTensor) (*tensor.IntTensor, error) {
	nf, nloc, nnei := nlist.Dim(0), nlist.Dim(1), nlist.Dim(2)
	nall := atypeExt.Shape().NumElements() / max(nf, 1)
	out := tensor.FullInt(1, nf, nloc, nnei)
	if m.Empty() {
		return out, nil
	}
	types, nl, dst := atypeExt.Data(), nlist.Data(), out.Data()
	for f := 0; f < nf; f++ {
		for i := 0; i < nloc; i++ {
			ti := types[f*nall+i]
			for n := 0; n < nnei; n++ {
				row := (f*nloc+i)*nnei + n
				j := nl[row]
				if j < 0 || ti < 0 {
					continue
				}
				if j >= nall {
					return nil, fmt.Errorf("%w: neighbor index %d out of range [0, %d)", tensor.ErrShapeMismatch, j, nall)
				}
				if m.excluded[[2]int{ti, types[f*nall+j]}] {
					dst[row] = 0
				}
			}
		}
	}
	return out, nil
}

// Remap returns the mask for a new type list: mapping[i] is the old index
// of new type i or -1. Pairs involving dropped types are removed.
func (m *PairExcludeMask) Remap(mapping []int) *PairExcludeMask {
	oldToNew := make(map[int]int, len(mapping))
	for n, o := range mapping {
		if o >= 0 {
			oldToNew[o] = n
		}
	}
	var pairs [][2]int
	for _, p := range m.pairs {
		a, okA := oldToNew[p[0]]
		b, okB := oldToNew[p[1]]
		if okA && okB {
			pairs = append(pairs, [2]int{a, b})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})
	out, _ := NewPairExcludeMask(len(mapping), pairs)
	return out
}

// AtomExcludeMask marks atom types whose outputs are removed.
type AtomExcludeMask struct {
	ntypes   int
	types    []int
	excluded map[int]bool
}

// NewAtomExcludeMask creates a mask over ntypes types.
func NewAtomExcludeMask(ntypes int, types []int) (*AtomExcludeMask, error) {
	m := &AtomExcludeMask{ntypes: ntypes, excluded: make(map[int]bool)}
	for _, t := range types {
		if t < 0 || t >= ntypes {
			return nil, fmt.Errorf("exclude type %d out of range for %d types", t, ntypes)
		}
		if !m.excluded[t] {
			m.excluded[t] = true
			m.types = append(m.types, t)
		}
	}
	return m, nil
}

// ExcludeTypes returns the excluded types.
func (m *AtomExcludeMask) ExcludeTypes() []int { return append([]int(nil), m.types...) }

// Empty reports whether no type is excluded.
func (m *AtomExcludeMask) Empty() bool { return len(m.types) == 0 }

// Excluded reports whether type t is excluded.
func (m *AtomExcludeMask) Excluded(t int) bool { return m.excluded[t] }

// Build returns a mask shaped like atype that is 0 on excluded types and 1
// elsewhere.
func (m *AtomExcludeMask) Build(atype *tensor.IntTensor) *tensor.IntTensor {
	out := tensor.FullInt(1, atype.Shape()...)
	for i, t := range atype.Data() {
		if m.excluded[t] {
			out.Data()[i] = 0
		}
	}
	return out
}

// Remap returns the mask for a new type list, see PairExcludeMask.Remap.
func (m *AtomExcludeMask) Remap(mapping []int) *AtomExcludeMask {
	var types []int
	for n, o := range mapping {
		if o >= 0 && m.excluded[o] {
			types = append(types, n)
		}
	}
	out, _ := NewAtomExcludeMask(len(mapping), types)
	return out
}
