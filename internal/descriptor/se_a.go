package descriptor

import (
	"fmt"

	"github.com/Yi-FanLi/deepmd-kit/internal/serialization"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// TypeSeA is the registry tag of the angular two-body descriptor.
const TypeSeA = "se_e2_a"

const seAVersion = 2

// SeA is the smooth-edition descriptor built from the full environment
// matrix (s, s*x/r, s*y/r, s*z/r).
//
// The descriptor of atom i is G^T R R^T G' where G is the embedding of
// the radial column, R the environment matrix and G' the first
// axis_neuron columns of G.
type SeA struct {
	*se
}

// NewSeA builds an se_e2_a descriptor from a configuration.
func NewSeA(b tensor.Backend, d serialization.Dict) (*SeA, error) {
	cfg, err := parseSeConfig(d)
	if err != nil {
		return nil, err
	}
	if err := checkAxis(cfg); err != nil {
		return nil, err
	}
	s, err := newSe(b, TypeSeA, cfg, false, seANdim(cfg))
	if err != nil {
		return nil, err
	}
	return &SeA{se: s}, nil
}

// DeserializeSeA rebuilds an se_e2_a descriptor.
func DeserializeSeA(b tensor.Backend, d serialization.Dict) (*SeA, error) {
	cfg, err := parseSeConfig(d)
	if err != nil {
		return nil, err
	}
	s, err := deserializeSe(b, d, TypeSeA, seAVersion, false, seANdim(cfg))
	if err != nil {
		return nil, err
	}
	if err := checkAxis(s.cfg); err != nil {
		return nil, err
	}
	return &SeA{se: s}, nil
}

func seANdim(cfg seConfig) int {
	if cfg.TypeOneSide {
		return 1
	}
	return 2
}

func checkAxis(cfg seConfig) error {
	if cfg.AxisNeuron <= 0 || cfg.AxisNeuron > cfg.ng() {
		return configErr("axis_neuron must lie in [1, %d], got %d", cfg.ng(), cfg.AxisNeuron)
	}
	return nil
}

// GetDimOut returns neuron[-1] * axis_neuron.
func (d *SeA) GetDimOut() int { return d.cfg.ng() * d.cfg.AxisNeuron }

// Serialize returns the version 2 payload.
func (d *SeA) Serialize() (serialization.Dict, error) {
	out := d.serializeCommon(seAVersion)
	out["axis_neuron"] = d.cfg.AxisNeuron
	out["type_one_side"] = d.cfg.TypeOneSide
	return out, nil
}

// Forward computes the descriptor and the rotation matrix.
func (d *SeA) Forward(coordExt *tensor.RawTensor, atypeExt, nlist, mapping *tensor.IntTensor) (*Output, error) {
	nf, nloc, _, err := d.checkInputs(coordExt, atypeExt, nlist)
	if err != nil {
		return nil, err
	}
	em, res, err := d.environment(coordExt, atypeExt, nlist)
	if err != nil {
		return nil, err
	}
	b := d.backend
	nfl := nf * nloc
	nnei := d.cfg.nnei()
	ng := d.cfg.ng()
	ntypes := d.cfg.ntypes()
	sec := d.sections()
	centers := localTypes(atypeExt, nf, nloc)

	var grd [4]*tensor.RawTensor
	for ti := 0; ti < ntypes; ti++ {
		if d.cfg.TypeOneSide && ti > 0 {
			break
		}
		for tj := 0; tj < ntypes; tj++ {
			sz := d.cfg.Sel[tj]
			if sz == 0 {
				continue
			}
			slot := tj
			center := -1
			if !d.cfg.TypeOneSide {
				slot = ti*ntypes + tj
				center = ti
			}
			cols := gatherBlock(em, centers, center, nfl, nnei, 4, sec[tj], sz)
			gg, err := d.embed(slot, cols[0])
			if err != nil {
				return nil, err
			}
			for k := 0; k < 4; k++ {
				trd := tensor.MustFromSlice(cols[k], nfl*sz, 1)
				part := b.SumDim(b.Reshape(b.Mul(gg, trd), tensor.Shape{nfl, sz, ng}), 1, false)
				grd[k] = accumulate(b, grd[k], part)
			}
		}
	}
	inv := scalar(1 / float64(nnei))
	for k := range grd {
		if grd[k] == nil {
			grd[k] = tensor.Zeros(nfl, ng)
		}
		if nnei > 0 {
			grd[k] = b.Mul(grd[k], inv)
		}
	}

	axis := d.cfg.AxisNeuron
	selector := tensor.Zeros(ng, axis)
	for i := 0; i < axis; i++ {
		selector.Set(1, i, i)
	}
	var grrg *tensor.RawTensor
	for k := 0; k < 4; k++ {
		g1 := b.MatMul(grd[k], selector)
		outer := b.Mul(b.Reshape(grd[k], tensor.Shape{nfl, ng, 1}), b.Reshape(g1, tensor.Shape{nfl, 1, axis}))
		grrg = accumulate(b, grrg, outer)
	}
	rot := b.Concat([]*tensor.RawTensor{
		b.Reshape(grd[1], tensor.Shape{nfl, ng, 1}),
		b.Reshape(grd[2], tensor.Shape{nfl, ng, 1}),
		b.Reshape(grd[3], tensor.Shape{nfl, ng, 1}),
	}, 2)
	return &Output{
		Descriptor: b.Reshape(grrg, tensor.Shape{nf, nloc, ng * axis}),
		Rot:        b.Reshape(rot, tensor.Shape{nf, nloc, ng, 3}),
		Sw:         res.Sw,
	}, nil
}

// localTypes returns the types of the nloc local atoms of every frame,
// flattened to [nf*nloc].
func localTypes(atypeExt *tensor.IntTensor, nf, nloc int) []int {
	out := make([]int, 0, nf*nloc)
	for f := 0; f < nf; f++ {
		out = append(out, atypeExt.Row(f)[:nloc]...)
	}
	return out
}

// gatherBlock copies the neighbor block [start, start+sz) of every local
// atom out of the environment matrix em ([nfl, nnei, last]). It returns
// one column per component, each of length nfl*sz. When center is not
// negative, rows of atoms of any other type stay zero.
func gatherBlock(em []float64, centers []int, center, nfl, nnei, last, start, sz int) [][]float64 {
	cols := make([][]float64, last)
	for k := range cols {
		cols[k] = make([]float64, nfl*sz)
	}
	for a := 0; a < nfl; a++ {
		if center >= 0 && centers[a] != center {
			continue
		}
		for j := 0; j < sz; j++ {
			src := (a*nnei + start + j) * last
			dst := a*sz + j
			for k := 0; k < last; k++ {
				cols[k][dst] = em[src+k]
			}
		}
	}
	return cols
}

func init() {
	Register(TypeSeA, Plugin{
		New: func(b tensor.Backend, cfg serialization.Dict) (Descriptor, error) {
			return NewSeA(b, cfg)
		},
		Deserialize: func(b tensor.Backend, d serialization.Dict) (Descriptor, error) {
			return DeserializeSeA(b, d)
		},
		UpdateSel: updateSel,
	}, "se_a")
}

var _ Descriptor = (*SeA)(nil)

func errVariant(op string, typ string) error {
	return fmt.Errorf("%w: %s is not available for %s", ErrNotSupported, op, typ)
}
