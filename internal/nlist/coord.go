package nlist

import (
	"fmt"
	"math"
	"sort"

	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// Extended holds local atoms followed by their ghost images.
type Extended struct {
	Coord   *tensor.RawTensor // [nf, nall*3]
	Atype   *tensor.IntTensor // [nf, nall]
	Mapping *tensor.IntTensor // [nf, nall], index of the local atom each entry images
	Nloc    int
}

// Nall returns the number of extended atoms per frame.
func (e *Extended) Nall() int { return e.Atype.Dim(1) }

func frameCoords(coord *tensor.RawTensor) (nf, nloc int, err error) {
	if coord.Ndim() < 2 {
		return 0, 0, fmt.Errorf("%w: coordinates need a frame axis, got %v", tensor.ErrShapeMismatch, coord.Shape())
	}
	nf = coord.Dim(0)
	per := coord.NumElements() / max(nf, 1)
	if per%3 != 0 {
		return 0, 0, fmt.Errorf("%w: %d coordinates per frame is not a multiple of 3", tensor.ErrShapeMismatch, per)
	}
	return nf, per / 3, nil
}

// NormalizeCoord wraps every atom of coord ([nf, nloc*3]) into its frame's
// periodic cell given by box ([nf, 9]).
func NormalizeCoord(coord, box *tensor.RawTensor) (*tensor.RawTensor, error) {
	nf, nloc, err := frameCoords(coord)
	if err != nil {
		return nil, err
	}
	if box.NumElements() != nf*9 {
		return nil, fmt.Errorf("%w: box has %d elements for %d frames", tensor.ErrShapeMismatch, box.NumElements(), nf)
	}
	out := tensor.Zeros(nf, nloc*3)
	src, dst := coord.Data(), out.Data()
	for f := 0; f < nf; f++ {
		c, err := cellFrom(box.Data()[f*9 : (f+1)*9])
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", f, err)
		}
		inv := c.inverse()
		for i := 0; i < nloc; i++ {
			o := (f*nloc + i) * 3
			w := c.wrap([3]float64{src[o], src[o+1], src[o+2]}, inv)
			copy(dst[o:o+3], w[:])
		}
	}
	return out, nil
}

// ghostShifts returns the integer image offsets needed to cover rcut in
// every frame, ordered by length with the zero shift first.
func ghostShifts(box *tensor.RawTensor, nf int, rcut float64) ([][3]int, error) {
	var nbuff [3]int
	for f := 0; f < nf; f++ {
		c, err := cellFrom(box.Data()[f*9 : (f+1)*9])
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", f, err)
		}
		for k, d := range c.faceDistances() {
			nbuff[k] = max(nbuff[k], int(math.Ceil(rcut/d)))
		}
	}
	var shifts [][3]int
	for i := -nbuff[0]; i <= nbuff[0]; i++ {
		for j := -nbuff[1]; j <= nbuff[1]; j++ {
			for k := -nbuff[2]; k <= nbuff[2]; k++ {
				shifts = append(shifts, [3]int{i, j, k})
			}
		}
	}
	norm := func(s [3]int) int { return s[0]*s[0] + s[1]*s[1] + s[2]*s[2] }
	sort.SliceStable(shifts, func(a, b int) bool { return norm(shifts[a]) < norm(shifts[b]) })
	return shifts, nil
}

// ExtendCoordWithGhosts appends periodic images of the local atoms that may
// fall within rcut of some local atom. Without a box the local atoms are
// returned unchanged. Every frame gets the same number of images.
func ExtendCoordWithGhosts(coord *tensor.RawTensor, atype *tensor.IntTensor, box *tensor.RawTensor, rcut float64) (*Extended, error) {
	nf, nloc, err := frameCoords(coord)
	if err != nil {
		return nil, err
	}
	if atype.Shape().NumElements() != nf*nloc {
		return nil, fmt.Errorf("%w: atype has %d entries for %d frames of %d atoms", tensor.ErrShapeMismatch, atype.Shape().NumElements(), nf, nloc)
	}
	if box == nil {
		mapping := tensor.FullInt(0, nf, nloc)
		for f := 0; f < nf; f++ {
			row := mapping.Row(f)
			for i := range row {
				row[i] = i
			}
		}
		flat, _ := atype.Reshape(nf, nloc)
		return &Extended{
			Coord:   coord.MustReshape(nf, nloc*3),
			Atype:   flat.Clone(),
			Mapping: mapping,
			Nloc:    nloc,
		}, nil
	}
	shifts, err := ghostShifts(box, nf, rcut)
	if err != nil {
		return nil, err
	}
	nall := len(shifts) * nloc
	extCoord := tensor.Zeros(nf, nall*3)
	extAtype := tensor.FullInt(0, nf, nall)
	mapping := tensor.FullInt(0, nf, nall)
	src, dst := coord.Data(), extCoord.Data()
	for f := 0; f < nf; f++ {
		c, _ := cellFrom(box.Data()[f*9 : (f+1)*9])
		types := atype.Data()[f*nloc : (f+1)*nloc]
		at, mp := extAtype.Row(f), mapping.Row(f)
		for s, shift := range shifts {
			vec := c.apply([3]float64{float64(shift[0]), float64(shift[1]), float64(shift[2])})
			for i := 0; i < nloc; i++ {
				e := s*nloc + i
				for k := 0; k < 3; k++ {
					dst[(f*nall+e)*3+k] = src[(f*nloc+i)*3+k] + vec[k]
				}
				at[e] = types[i]
				mp[e] = i
			}
		}
	}
	return &Extended{Coord: extCoord, Atype: extAtype, Mapping: mapping, Nloc: nloc}, nil
}
