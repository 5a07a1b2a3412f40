package descriptor

import (
	"fmt"
	"math"

	"github.com/Yi-FanLi/deepmd-kit/internal/env"
	"github.com/Yi-FanLi/deepmd-kit/internal/logging"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// table tabulates one embedding network as piecewise quintic Hermite
// polynomials on a two-stride grid: stride1 on [lower, upper] and
// stride2 on [upper, max].
type table struct {
	lower, upper, max float64
	stride1, stride2  float64
	n1, n2            int
	ng                int
	coef              []float64 // [n1+n2, ng, 6]
}

// compression replaces embedding evaluation by table lookups.
type compression struct {
	tables         []*table
	checkFrequency int
	calls          int
}

// EnableCompression tabulates every embedding network. The statistics
// must be set. minNborDist is the smallest neighbor distance in the
// training data.
func (s *se) EnableCompression(minNborDist, tableExtrapolate, tableStride1, tableStride2 float64, checkFrequency int) error {
	if s.compress != nil {
		return ErrCompressed
	}
	if !s.stat.set {
		return ErrStatisticsMissing
	}
	if minNborDist <= 0 || tableExtrapolate < 1 || tableStride1 <= 0 || tableStride2 <= 0 {
		return configErr("compression needs min_nbor_dist > 0, extrapolate >= 1 and positive strides, got %g, %g, %g, %g",
			minNborDist, tableExtrapolate, tableStride1, tableStride2)
	}
	lower, upper := s.tableRange(minNborDist)
	c := &compression{
		tables:         make([]*table, s.embeddings.Len()),
		checkFrequency: checkFrequency,
	}
	for slot := range c.tables {
		net := s.embeddings.At(slot)
		if net == nil {
			continue
		}
		t, err := buildTable(net.Derivatives, net.OutDim(), lower, upper, tableExtrapolate, tableStride1, tableStride2)
		if err != nil {
			return fmt.Errorf("tabulate embedding %d: %w", slot, err)
		}
		c.tables[slot] = t
	}
	s.compress = c
	logging.L().Info("descriptor compressed",
		logging.String("type", s.typ),
		logging.Float64("lower", lower),
		logging.Float64("upper", upper),
		logging.Int("tables", len(c.tables)))
	return nil
}

// tableRange returns the interval covered by the embedding inputs for
// neighbors no closer than minNborDist.
func (s *se) tableRange(minNborDist float64) (lower, upper float64) {
	last := s.last()
	davg, dstd := s.stat.davg.Data(), s.stat.dstd.Data()
	sw := env.SmoothWeight(minNborDist, s.cfg.RcutSmth, s.cfg.Rcut)
	smax := sw / (minNborDist + s.cfg.EnvProtection)
	lower, upper = math.Inf(1), math.Inf(-1)
	for i := 0; i < len(davg); i += last {
		if s.typ == TypeSeT {
			std := math.Min(dstd[i+1], math.Min(dstd[i+2], dstd[i+3]))
			v := (smax / std) * (smax / std)
			lower = math.Min(lower, -v)
			upper = math.Max(upper, v)
			continue
		}
		lower = math.Min(lower, -davg[i]/dstd[i])
		upper = math.Max(upper, (smax-davg[i])/dstd[i])
	}
	return math.Floor(lower), math.Ceil(upper)
}

func buildTable(derivs func([]float64) (y, dy, d2y *tensor.RawTensor, err error), ng int, lower, upper, ext, stride1, stride2 float64) (*table, error) {
	t := &table{lower: lower, stride1: stride1, stride2: stride2, ng: ng}
	t.n1 = int(math.Ceil((upper-lower)/stride1 - 1e-9))
	if t.n1 < 1 {
		t.n1 = 1
	}
	t.upper = lower + float64(t.n1)*stride1
	if top := upper * ext; top > t.upper {
		t.n2 = int(math.Ceil((top-t.upper)/stride2 - 1e-9))
	}
	t.max = t.upper + float64(t.n2)*stride2

	xs := make([]float64, 0, t.n1+t.n2+1)
	for i := 0; i <= t.n1; i++ {
		xs = append(xs, lower+float64(i)*stride1)
	}
	for i := 1; i <= t.n2; i++ {
		xs = append(xs, t.upper+float64(i)*stride2)
	}
	y, dy, d2y, err := derivs(xs)
	if err != nil {
		return nil, err
	}
	yv, d1, d2 := y.Data(), dy.Data(), d2y.Data()
	nseg := t.n1 + t.n2
	t.coef = make([]float64, nseg*ng*6)
	for seg := 0; seg < nseg; seg++ {
		h := xs[seg+1] - xs[seg]
		for m := 0; m < ng; m++ {
			p0, p1 := seg*ng+m, (seg+1)*ng+m
			hermite(t.coef[(seg*ng+m)*6:(seg*ng+m+1)*6], h, yv[p0], yv[p1], d1[p0], d1[p1], d2[p0], d2[p1])
		}
	}
	return t, nil
}

// hermite writes the coefficients of the quintic matching value, first
// and second derivative at both ends of a segment of width h.
func hermite(c []float64, h, y0, y1, dy0, dy1, d2y0, d2y1 float64) {
	dy := y1 - y0
	h2 := h * h
	c[0] = y0
	c[1] = dy0
	c[2] = d2y0 / 2
	c[3] = (20*dy - (8*dy1+12*dy0)*h - (3*d2y0-d2y1)*h2) / (2 * h2 * h)
	c[4] = (-30*dy + (14*dy1+16*dy0)*h + (3*d2y0-2*d2y1)*h2) / (2 * h2 * h2)
	c[5] = (12*dy - 6*(dy1+dy0)*h - (d2y0-d2y1)*h2) / (2 * h2 * h2 * h)
}

// locate returns the segment of x and the offset into it. Inputs below
// lower are clamped to lower and inputs beyond max to max.
func (t *table) locate(x float64) (int, float64) {
	switch {
	case x < t.lower:
		return 0, 0
	case x < t.upper:
		idx := int((x - t.lower) / t.stride1)
		if idx >= t.n1 {
			idx = t.n1 - 1
		}
		return idx, x - t.lower - float64(idx)*t.stride1
	case x < t.max:
		idx := int((x - t.upper) / t.stride2)
		if idx >= t.n2 {
			idx = t.n2 - 1
		}
		return t.n1 + idx, x - t.upper - float64(idx)*t.stride2
	default:
		if t.n2 == 0 {
			return t.n1 - 1, t.stride1
		}
		return t.n1 + t.n2 - 1, t.stride2
	}
}

func (t *table) eval(xs []float64) *tensor.RawTensor {
	out := tensor.Zeros(len(xs), t.ng)
	dst := out.Data()
	for i, x := range xs {
		seg, dx := t.locate(x)
		row := dst[i*t.ng : (i+1)*t.ng]
		for m := range row {
			c := t.coef[(seg*t.ng+m)*6:]
			row[m] = c[0] + dx*(c[1]+dx*(c[2]+dx*(c[3]+dx*(c[4]+dx*c[5]))))
		}
	}
	return out
}

func (c *compression) eval(slot int, xs []float64) *tensor.RawTensor {
	t := c.tables[slot]
	if c.checkFrequency > 0 {
		c.calls++
		if c.calls%c.checkFrequency == 0 {
			c.check(slot, t, xs)
		}
	}
	return t.eval(xs)
}

func (c *compression) check(slot int, t *table, xs []float64) {
	below, above := 0, 0
	for _, x := range xs {
		switch {
		case x < t.lower:
			below++
		case x > t.max:
			above++
		}
	}
	if below+above > 0 {
		logging.L().Warn("embedding input out of the tabulated range",
			logging.Int("table", slot),
			logging.Int("below", below),
			logging.Int("above", above),
			logging.Float64("lower", t.lower),
			logging.Float64("max", t.max))
	}
}
