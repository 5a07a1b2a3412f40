package nlist

import (
	"fmt"
	"sort"

	"github.com/Yi-FanLi/deepmd-kit/internal/parallel"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// Builder builds neighbor lists with a fixed cutoff and selection.
type Builder struct {
	Rcut float64
	Sel  []int
	// DistinguishTypes splits each row into one block per neighbor type,
	// block t holding the Sel[t] nearest neighbors of type t. Otherwise
	// the row holds the sum(Sel) nearest neighbors of any type.
	DistinguishTypes bool
	Parallel         parallel.Config
}

// NewBuilder returns a Builder with the default parallel config.
func NewBuilder(rcut float64, sel []int, distinguishTypes bool) *Builder {
	return &Builder{
		Rcut:             rcut,
		Sel:              append([]int(nil), sel...),
		DistinguishTypes: distinguishTypes,
		Parallel:         parallel.DefaultConfig(),
	}
}

// Nsel returns the row width of the lists this builder produces.
func (b *Builder) Nsel() int {
	n := 0
	for _, s := range b.Sel {
		n += s
	}
	return n
}

type candidate struct {
	idx int
	rr  float64
}

// Build returns the neighbor list [nf, nloc, nsel] of the first nloc atoms
// of coord ([nf, nall*3]) among all nall atoms. Neighbors are sorted by
// distance; atoms beyond Rcut, virtual atoms (type < 0) and the atom itself
// are left out; empty slots hold -1. Rows of virtual local atoms are empty.
func (b *Builder) Build(coord *tensor.RawTensor, atype *tensor.IntTensor, nloc int) (*tensor.IntTensor, error) {
	nf, nall, err := frameCoords(coord)
	if err != nil {
		return nil, err
	}
	if atype.Shape().NumElements() != nf*nall {
		return nil, fmt.Errorf("%w: atype has %d entries for %d frames of %d atoms", tensor.ErrShapeMismatch, atype.Shape().NumElements(), nf, nall)
	}
	if nloc > nall {
		return nil, fmt.Errorf("%w: nloc %d exceeds nall %d", tensor.ErrShapeMismatch, nloc, nall)
	}
	if b.DistinguishTypes {
		for t := range b.Sel {
			if b.Sel[t] < 0 {
				return nil, fmt.Errorf("sel[%d] must not be negative", t)
			}
		}
	}
	nsel := b.Nsel()
	out := tensor.FullInt(-1, nf, nloc, nsel)
	rcut2 := b.Rcut * b.Rcut
	xs, types, dst := coord.Data(), atype.Data(), out.Data()

	parallel.ForAtoms(nf, nloc, func(f, i int) {
		ft := types[f*nall : (f+1)*nall]
		if ft[i] < 0 {
			return
		}
		fx := xs[f*nall*3 : (f+1)*nall*3]
		cands := make([]candidate, 0, nsel)
		for j := 0; j < nall; j++ {
			if j == i || ft[j] < 0 {
				continue
			}
			dx := fx[j*3] - fx[i*3]
			dy := fx[j*3+1] - fx[i*3+1]
			dz := fx[j*3+2] - fx[i*3+2]
			rr := dx*dx + dy*dy + dz*dz
			if rr > rcut2 {
				continue
			}
			cands = append(cands, candidate{idx: j, rr: rr})
		}
		sort.SliceStable(cands, func(p, q int) bool { return cands[p].rr < cands[q].rr })

		row := dst[(f*nloc+i)*nsel : (f*nloc+i+1)*nsel]
		if !b.DistinguishTypes {
			for k := 0; k < len(cands) && k < nsel; k++ {
				row[k] = cands[k].idx
			}
			return
		}
		offsets := make([]int, len(b.Sel))
		filled := make([]int, len(b.Sel))
		for t := 1; t < len(b.Sel); t++ {
			offsets[t] = offsets[t-1] + b.Sel[t-1]
		}
		for _, c := range cands {
			t := ft[c.idx]
			if t >= len(b.Sel) || filled[t] >= b.Sel[t] {
				continue
			}
			row[offsets[t]+filled[t]] = c.idx
			filled[t]++
		}
	}, b.Parallel)
	return out, nil
}

// ExtendAndBuild normalizes coord into box (when given), extends it with
// ghosts and builds the neighbor list of the local atoms.
func (b *Builder) ExtendAndBuild(coord *tensor.RawTensor, atype *tensor.IntTensor, box *tensor.RawTensor) (*Extended, *tensor.IntTensor, error) {
	if box != nil {
		var err error
		coord, err = NormalizeCoord(coord, box)
		if err != nil {
			return nil, nil, err
		}
	}
	ext, err := ExtendCoordWithGhosts(coord, atype, box, b.Rcut)
	if err != nil {
		return nil, nil, err
	}
	nl, err := b.Build(ext.Coord, ext.Atype, ext.Nloc)
	if err != nil {
		return nil, nil, err
	}
	return ext, nl, nil
}
