package nlist

import (
	"fmt"
	"math"

	"github.com/Yi-FanLi/deepmd-kit/internal/data"
	"github.com/Yi-FanLi/deepmd-kit/internal/logging"
	"github.com/Yi-FanLi/deepmd-kit/internal/parallel"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// NeighborStat measures, over a data set, the shortest interatomic
// distance and the largest number of neighbors of each type found within
// rcut of any atom.
type NeighborStat struct {
	ntypes    int
	rcut      float64
	mixedType bool
	cfg       parallel.Config
}

// NewNeighborStat creates a NeighborStat. With mixedType all neighbor
// types are counted together.
func NewNeighborStat(ntypes int, rcut float64, mixedType bool) *NeighborStat {
	return &NeighborStat{ntypes: ntypes, rcut: rcut, mixedType: mixedType, cfg: parallel.DefaultConfig()}
}

// FrameStat is the result for one frame.
type FrameStat struct {
	MinDist2 float64 // squared distance of the closest pair, +Inf without pairs
	MaxNbor  []int   // per neighbor type (one entry when mixed)
}

func (s *NeighborStat) width() int {
	if s.mixedType {
		return 1
	}
	return s.ntypes
}

// Frames computes the statistics of every frame of coord ([nf, nloc*3]).
func (s *NeighborStat) Frames(coord *tensor.RawTensor, atype *tensor.IntTensor, box *tensor.RawTensor) ([]FrameStat, error) {
	if box != nil {
		var err error
		if coord, err = NormalizeCoord(coord, box); err != nil {
			return nil, err
		}
	}
	ext, err := ExtendCoordWithGhosts(coord, atype, box, s.rcut)
	if err != nil {
		return nil, err
	}
	nf, nloc, nall := ext.Coord.Dim(0), ext.Nloc, ext.Nall()
	width := s.width()
	rcut2 := s.rcut * s.rcut

	minDist := make([]float64, nf*nloc)
	counts := make([]int, nf*nloc*width)
	xs, types := ext.Coord.Data(), ext.Atype.Data()
	parallel.ForAtoms(nf, nloc, func(f, i int) {
		fx := xs[f*nall*3 : (f+1)*nall*3]
		ft := types[f*nall : (f+1)*nall]
		best := math.Inf(1)
		cnt := counts[(f*nloc+i)*width : (f*nloc+i+1)*width]
		for j := 0; j < nall; j++ {
			if j == i || ft[j] < 0 {
				continue
			}
			dx := fx[j*3] - fx[i*3]
			dy := fx[j*3+1] - fx[i*3+1]
			dz := fx[j*3+2] - fx[i*3+2]
			rr := dx*dx + dy*dy + dz*dz
			best = math.Min(best, rr)
			if rr > rcut2 {
				continue
			}
			if s.mixedType {
				cnt[0]++
			} else if ft[j] < width {
				cnt[ft[j]]++
			}
		}
		minDist[f*nloc+i] = best
	}, s.cfg)

	out := make([]FrameStat, nf)
	for f := range out {
		out[f] = FrameStat{MinDist2: math.Inf(1), MaxNbor: make([]int, width)}
		for i := 0; i < nloc; i++ {
			out[f].MinDist2 = math.Min(out[f].MinDist2, minDist[f*nloc+i])
			for t, c := range counts[(f*nloc+i)*width : (f*nloc+i+1)*width] {
				out[f].MaxNbor[t] = max(out[f].MaxNbor[t], c)
			}
		}
	}
	return out, nil
}

// Get runs the statistics over every frame of ds and returns the minimal
// neighbor distance and the maximal neighbor count per type.
func (s *NeighborStat) Get(ds data.DataSystem) (float64, []int, error) {
	minDist2 := math.Inf(1)
	maxNbor := make([]int, s.width())
	for si, sys := range ds.Systems() {
		samples, err := data.MakeStatInput(singleSystem{ds: ds, sys: sys}, max(sys.NumFrames(), 1), 1)
		if err != nil {
			return 0, nil, fmt.Errorf("system %d: %w", si, err)
		}
		for _, smp := range samples {
			stats, err := s.Frames(smp.Coord, smp.Atype, smp.Box)
			if err != nil {
				return 0, nil, fmt.Errorf("system %d: %w", si, err)
			}
			for _, st := range stats {
				minDist2 = math.Min(minDist2, st.MinDist2)
				for t, c := range st.MaxNbor {
					maxNbor[t] = max(maxNbor[t], c)
				}
			}
		}
	}
	minDist := math.Sqrt(minDist2)
	logging.L().Info("neighbor statistics done",
		logging.Float64("rcut", s.rcut),
		logging.Float64("min_nbor_dist", minDist),
		logging.Ints("max_nbor_size", maxNbor),
	)
	return minDist, maxNbor, nil
}

type singleSystem struct {
	ds  data.DataSystem
	sys data.System
}

func (s singleSystem) TypeMap() []string      { return s.ds.TypeMap() }
func (s singleSystem) Systems() []data.System { return []data.System{s.sys} }
