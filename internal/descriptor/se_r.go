package descriptor

import (
	"github.com/Yi-FanLi/deepmd-kit/internal/serialization"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// TypeSeR is the registry tag of the radial two-body descriptor.
const TypeSeR = "se_e2_r"

const seRVersion = 2

// SeR is the smooth-edition descriptor that uses only the radial column
// s(r) of the environment matrix. The descriptor is the average embedding
// of all neighbors.
type SeR struct {
	*se
}

// NewSeR builds an se_e2_r descriptor from a configuration.
func NewSeR(b tensor.Backend, d serialization.Dict) (*SeR, error) {
	cfg, err := parseSeConfig(d)
	if err != nil {
		return nil, err
	}
	if !cfg.TypeOneSide {
		return nil, errVariant("type_one_side=false", TypeSeR)
	}
	s, err := newSe(b, TypeSeR, cfg, true, 1)
	if err != nil {
		return nil, err
	}
	return &SeR{se: s}, nil
}

// DeserializeSeR rebuilds an se_e2_r descriptor.
func DeserializeSeR(b tensor.Backend, d serialization.Dict) (*SeR, error) {
	s, err := deserializeSe(b, d, TypeSeR, seRVersion, true, 1)
	if err != nil {
		return nil, err
	}
	return &SeR{se: s}, nil
}

// GetDimOut returns neuron[-1].
func (d *SeR) GetDimOut() int { return d.cfg.ng() }

// Serialize returns the version 2 payload.
func (d *SeR) Serialize() (serialization.Dict, error) {
	out := d.serializeCommon(seRVersion)
	out["type_one_side"] = true
	return out, nil
}

// Forward computes the descriptor. Rot is nil.
func (d *SeR) Forward(coordExt *tensor.RawTensor, atypeExt, nlist, mapping *tensor.IntTensor) (*Output, error) {
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
	sec := d.sections()

	var sum *tensor.RawTensor
	for tj, sz := range d.cfg.Sel {
		if sz == 0 {
			continue
		}
		cols := gatherBlock(em, nil, -1, nfl, nnei, 1, sec[tj], sz)
		gg, err := d.embed(tj, cols[0])
		if err != nil {
			return nil, err
		}
		sum = accumulate(b, sum, b.SumDim(b.Reshape(gg, tensor.Shape{nfl, sz, ng}), 1, false))
	}
	if sum == nil {
		sum = tensor.Zeros(nfl, ng)
	} else {
		sum = b.Mul(sum, scalar(1/float64(nnei)))
	}
	return &Output{
		Descriptor: b.Reshape(sum, tensor.Shape{nf, nloc, ng}),
		Sw:         res.Sw,
	}, nil
}

func init() {
	Register(TypeSeR, Plugin{
		New: func(b tensor.Backend, cfg serialization.Dict) (Descriptor, error) {
			return NewSeR(b, cfg)
		},
		Deserialize: func(b tensor.Backend, d serialization.Dict) (Descriptor, error) {
			return DeserializeSeR(b, d)
		},
		UpdateSel: updateSel,
	}, "se_r")
}

var _ Descriptor = (*SeR)(nil)
