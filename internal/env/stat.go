package env

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/Yi-FanLi/deepmd-kit/internal/data"
	"github.com/Yi-FanLi/deepmd-kit/internal/dpath"
	"github.com/Yi-FanLi/deepmd-kit/internal/logging"
	"github.com/Yi-FanLi/deepmd-kit/internal/nlist"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// ErrNoStatistics is returned when statistics are requested before any
// were computed or loaded.
var ErrNoStatistics = errors.New("statistics have not been computed")

// Default values of StatItem.ComputeStd.
const (
	DefaultStd        = 1e-1
	DefaultProtection = 1e-2
)

// StatItem accumulates the count, sum and sum of squares of a quantity.
type StatItem struct {
	Number     float64
	Sum        float64
	SquaredSum float64
}

// Add returns the merged item.
func (s StatItem) Add(o StatItem) StatItem {
	return StatItem{Number: s.Number + o.Number, Sum: s.Sum + o.Sum, SquaredSum: s.SquaredSum + o.SquaredSum}
}

// ComputeAvg returns the mean, or def for an empty item.
func (s StatItem) ComputeAvg(def float64) float64 {
	if s.Number == 0 {
		return def
	}
	return s.Sum / s.Number
}

// ComputeStd returns the standard deviation, or def for an empty item.
// Values below protection are raised to protection.
func (s StatItem) ComputeStd(def, protection float64) float64 {
	if s.Number == 0 {
		return def
	}
	avg := s.Sum / s.Number
	val := math.Sqrt(math.Max(s.SquaredSum/s.Number-avg*avg, 0))
	if math.Abs(val) < protection {
		val = protection
	}
	return val
}

func (s StatItem) array() *tensor.RawTensor {
	return tensor.MustFromSlice([]float64{s.Number, s.Sum, s.SquaredSum}, 3)
}

func statItemFrom(t *tensor.RawTensor) (StatItem, error) {
	if t.NumElements() != 3 {
		return StatItem{}, fmt.Errorf("%w: a stat item has 3 values, got %v", tensor.ErrShapeMismatch, t.Shape())
	}
	d := t.Data()
	return StatItem{Number: d[0], Sum: d[1], SquaredSum: d[2]}, nil
}

// EnvMatStat gathers per-type statistics of the environment matrix of
// smooth-edition descriptors. For every center type t it tracks item
// "r_t" over the radial column and, unless radial only, item "a_t" over
// the three angular columns.
type EnvMatStat struct {
	envMat     EnvMat
	ntypes     int
	sel        []int
	radialOnly bool
	exclude    *PairExcludeMask
	stats      map[string]StatItem
}

// NewEnvMatStat creates an empty statistics accumulator. exclude may be nil.
func NewEnvMatStat(em EnvMat, ntypes int, sel []int, radialOnly bool, exclude *PairExcludeMask) *EnvMatStat {
	return &EnvMatStat{
		envMat:     em,
		ntypes:     ntypes,
		sel:        append([]int(nil), sel...),
		radialOnly: radialOnly,
		exclude:    exclude,
	}
}

func (s *EnvMatStat) nnei() int {
	n := 0
	for _, v := range s.sel {
		n += v
	}
	return n
}

// Stats returns the accumulated items, or nil before any computation.
func (s *EnvMatStat) Stats() map[string]StatItem {
	if s.stats == nil {
		return nil
	}
	out := make(map[string]StatItem, len(s.stats))
	for k, v := range s.stats {
		out[k] = v
	}
	return out
}

// SetStats replaces the accumulated items.
func (s *EnvMatStat) SetStats(stats map[string]StatItem) {
	s.stats = make(map[string]StatItem, len(stats))
	for k, v := range stats {
		s.stats[k] = v
	}
}

// Merge adds other's items to the accumulated ones.
func (s *EnvMatStat) Merge(other map[string]StatItem) {
	if s.stats == nil {
		s.stats = make(map[string]StatItem, len(other))
	}
	for k, v := range other {
		s.stats[k] = s.stats[k].Add(v)
	}
}

// Compute accumulates statistics over samples, building each sample's
// neighbor list with the descriptor's cutoff and selection.
func (s *EnvMatStat) Compute(samples []data.Sample) error {
	stats := make(map[string]StatItem)
	for t := 0; t < s.ntypes; t++ {
		stats["r_"+strconv.Itoa(t)] = StatItem{}
		if !s.radialOnly {
			stats["a_"+strconv.Itoa(t)] = StatItem{}
		}
	}
	builder := nlist.NewBuilder(s.envMat.Rcut, s.sel, true)
	last := Width(s.radialOnly)
	nnei := s.nnei()
	for si, smp := range samples {
		ext, nl, err := builder.ExtendAndBuild(smp.Coord, smp.Atype, smp.Box)
		if err != nil {
			return fmt.Errorf("sample %d: %w", si, err)
		}
		res, err := s.envMat.Compute(ext.Coord, ext.Atype, nl, nil, nil, s.radialOnly)
		if err != nil {
			return fmt.Errorf("sample %d: %w", si, err)
		}
		var keep []int
		if s.exclude != nil && !s.exclude.Empty() {
			mask, err := s.exclude.Build(nl, ext.Atype)
			if err != nil {
				return fmt.Errorf("sample %d: %w", si, err)
			}
			keep = mask.Data()
		}
		nf, nloc, nall := nl.Dim(0), nl.Dim(1), ext.Nall()
		em := res.Env.Data()
		for f := 0; f < nf; f++ {
			for i := 0; i < nloc; i++ {
				ti := ext.Atype.Data()[f*nall+i]
				if ti < 0 || ti >= s.ntypes {
					continue
				}
				r, a := "r_"+strconv.Itoa(ti), "a_"+strconv.Itoa(ti)
				ri, ai := stats[r], stats[a]
				for n := 0; n < nnei; n++ {
					row := (f*nloc+i)*nnei + n
					m := 1.0
					if keep != nil {
						m = float64(keep[row])
					}
					v := em[row*last] * m
					ri = ri.Add(StatItem{Number: 1, Sum: v, SquaredSum: v * v})
					if !s.radialOnly {
						for k := 1; k < 4; k++ {
							v := em[row*last+k] * m
							ai = ai.Add(StatItem{Number: 1, Sum: v, SquaredSum: v * v})
						}
					}
				}
				stats[r] = ri
				if !s.radialOnly {
					stats[a] = ai
				}
			}
		}
	}
	s.stats = stats
	return nil
}

// MeanStd returns davg and dstd ([ntypes, nnei, last]) from the
// accumulated statistics. Within a type every neighbor slot shares the
// same values; the angular mean is zero.
func (s *EnvMatStat) MeanStd(setDavgZero bool) (davg, dstd *tensor.RawTensor, err error) {
	if s.stats == nil {
		return nil, nil, ErrNoStatistics
	}
	last := Width(s.radialOnly)
	nnei := s.nnei()
	davg = tensor.Zeros(s.ntypes, nnei, last)
	dstd = tensor.Zeros(s.ntypes, nnei, last)
	for t := 0; t < s.ntypes; t++ {
		r := s.stats["r_"+strconv.Itoa(t)]
		avg := r.ComputeAvg(0)
		if setDavgZero {
			avg = 0
		}
		std := r.ComputeStd(DefaultStd, DefaultProtection)
		stdA := std
		if !s.radialOnly {
			stdA = s.stats["a_"+strconv.Itoa(t)].ComputeStd(DefaultStd, DefaultProtection)
		}
		for n := 0; n < nnei; n++ {
			base := (t*nnei + n) * last
			davg.Data()[base] = avg
			dstd.Data()[base] = std
			for k := 1; k < last; k++ {
				dstd.Data()[base+k] = stdA
			}
		}
	}
	return davg, dstd, nil
}

// Save writes every item to p as a three-element array.
func (s *EnvMatStat) Save(p *dpath.Path) error {
	if s.stats == nil {
		return ErrNoStatistics
	}
	keys := make([]string, 0, len(s.stats))
	for k := range s.stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := p.Join(k).SaveArray(s.stats[k].array()); err != nil {
			return err
		}
	}
	return nil
}

// Load reads items previously written by Save.
func (s *EnvMatStat) Load(p *dpath.Path) error {
	names, err := p.Children()
	if err != nil {
		return err
	}
	stats := make(map[string]StatItem, len(names))
	for _, name := range names {
		if !strings.HasPrefix(name, "r_") && !strings.HasPrefix(name, "a_") {
			continue
		}
		arr, err := p.Join(name).LoadArray()
		if err != nil {
			return err
		}
		item, err := statItemFrom(arr)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		stats[name] = item
	}
	s.stats = stats
	return nil
}

// LoadOrCompute loads the statistics from p when p exists; otherwise it
// calls sampler, computes them and saves them to p when p is not nil.
func (s *EnvMatStat) LoadOrCompute(sampler data.Sampler, p *dpath.Path) error {
	if p != nil && p.IsDir() {
		if err := s.Load(p); err != nil {
			return err
		}
		logging.L().Info("loaded descriptor statistics", logging.String("path", p.String()))
		return nil
	}
	samples, err := sampler()
	if err != nil {
		return fmt.Errorf("sample statistics input: %w", err)
	}
	if err := s.Compute(samples); err != nil {
		return err
	}
	logging.L().Info("computed descriptor statistics", logging.Int("samples", len(samples)))
	if p != nil {
		if err := s.Save(p); err != nil {
			return err
		}
	}
	return nil
}
