// Package env computes the smooth environment matrix of every atom, the
// statistics used to normalize it and the type exclusion masks applied to
// atoms and atom pairs.
package env

import (
	"fmt"
	"math"

	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// SmoothWeight is the switching function of the environment matrix. It is
// 1 below rmin, 0 above rmax and a quintic polynomial in between with
// continuous first and second derivatives.
func SmoothWeight(r, rmin, rmax float64) float64 {
	if r <= rmin {
		return 1
	}
	if r >= rmax {
		return 0
	}
	u := (r - rmin) / (rmax - rmin)
	return u*u*u*(-6*u*u+15*u-10) + 1
}

// EnvMat builds environment matrices for a cutoff.
type EnvMat struct {
	Rcut       float64
	RcutSmth   float64
	Protection float64
}

// Result holds the outputs of EnvMat.Compute.
type Result struct {
	// Env is [nf, nloc, nnei, last] with last 4 (s, s*x/r, s*y/r, s*z/r)
	// or 1 when radial only, normalized by the statistics.
	Env *tensor.RawTensor
	// Diff is [nf, nloc, nnei, 3], the neighbor minus the center position,
	// zero on empty slots.
	Diff *tensor.RawTensor
	// Sw is [nf, nloc, nnei], the switch value, zero on empty slots.
	Sw *tensor.RawTensor
}

// Width returns the last dimension of the matrix.
func Width(radialOnly bool) int {
	if radialOnly {
		return 1
	}
	return 4
}

// Compute evaluates the environment matrix of the local atoms.
//
// coord is [nf, nall*3], atype [nf, nall], nlist [nf, nloc, nnei].
// davg and dstd are [ntypes, nnei, last]; rows are chosen by the center
// atom's type. Passing nil for both skips normalization. Rows of virtual
// centers (type < 0) are zero.
func (e EnvMat) Compute(coord *tensor.RawTensor, atype, nlist *tensor.IntTensor, davg, dstd *tensor.RawTensor, radialOnly bool) (*Result, error) {
	if nlist.Shape().Validate() != nil || len(nlist.Shape()) != 3 {
		return nil, fmt.Errorf("%w: nlist must be [nf, nloc, nnei], got %v", tensor.ErrShapeMismatch, nlist.Shape())
	}
	nf, nloc, nnei := nlist.Dim(0), nlist.Dim(1), nlist.Dim(2)
	if atype.Shape().NumElements()%max(nf, 1) != 0 {
		return nil, fmt.Errorf("%w: atype %v for %d frames", tensor.ErrShapeMismatch, atype.Shape(), nf)
	}
	nall := atype.Shape().NumElements() / max(nf, 1)
	if coord.NumElements() != nf*nall*3 {
		return nil, fmt.Errorf("%w: coord has %d elements, want %d", tensor.ErrShapeMismatch, coord.NumElements(), nf*nall*3)
	}
	if nloc > nall {
		return nil, fmt.Errorf("%w: nloc %d exceeds nall %d", tensor.ErrShapeMismatch, nloc, nall)
	}
	last := Width(radialOnly)
	if (davg == nil) != (dstd == nil) {
		return nil, fmt.Errorf("davg and dstd must both be given or both be nil")
	}
	if davg != nil {
		if davg.Ndim() != 3 || davg.Dim(1) != nnei || davg.Dim(2) != last || !davg.Shape().Equal(dstd.Shape()) {
			return nil, fmt.Errorf("%w: statistics %v / %v do not fit [ntypes, %d, %d]", tensor.ErrShapeMismatch, davg.Shape(), dstd.Shape(), nnei, last)
		}
	}

	env := tensor.Zeros(nf, nloc, nnei, last)
	diff := tensor.Zeros(nf, nloc, nnei, 3)
	sw := tensor.Zeros(nf, nloc, nnei)
	xs, types, nl := coord.Data(), atype.Data(), nlist.Data()
	ed, dd, sd := env.Data(), diff.Data(), sw.Data()

	for f := 0; f < nf; f++ {
		fx := xs[f*nall*3 : (f+1)*nall*3]
		for i := 0; i < nloc; i++ {
			ti := types[f*nall+i]
			if ti < 0 {
				continue
			}
			if davg != nil && ti >= davg.Dim(0) {
				return nil, fmt.Errorf("atom type %d has no statistics (ntypes %d)", ti, davg.Dim(0))
			}
			for n := 0; n < nnei; n++ {
				row := (f*nloc+i)*nnei + n
				out := ed[row*last : (row+1)*last]
				j := nl[row]
				if j >= nall {
					return nil, fmt.Errorf("%w: neighbor index %d out of range [0, %d)", tensor.ErrShapeMismatch, j, nall)
				}
				if j >= 0 {
					var d [3]float64
					rr := 0.0
					for k := 0; k < 3; k++ {
						d[k] = fx[j*3+k] - fx[i*3+k]
						dd[row*3+k] = d[k]
						rr += d[k] * d[k]
					}
					length := math.Sqrt(rr)
					w := SmoothWeight(length, e.RcutSmth, e.Rcut)
					sd[row] = w
					t0 := 1 / (length + e.Protection)
					out[0] = t0 * w
					if !radialOnly {
						inv2 := t0 * t0
						for k := 0; k < 3; k++ {
							out[k+1] = d[k] * inv2 * w
						}
					}
				}
				if davg != nil {
					base := (ti*nnei + n) * last
					for k := 0; k < last; k++ {
						out[k] = (out[k] - davg.Data()[base+k]) / dstd.Data()[base+k]
					}
				}
			}
		}
	}
	return &Result{Env: env, Diff: diff, Sw: sw}, nil
}
