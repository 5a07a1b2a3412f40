package fitting

import (
	"github.com/Yi-FanLi/deepmd-kit/internal/serialization"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// TypeDipole is the registry tag of the dipole head.
const TypeDipole = "dipole"

const dipoleVersion = 2

// Dipole fits a per-atom dipole vector. The networks output
// embedding_width weights that contract the rotation matrix Gr of the
// descriptor:
//
//	dipole[i] = sum_m out[i, m] * Gr[i, m, :]
type Dipole struct {
	*general
	rDifferentiable bool
	cDifferentiable bool
}

// NewDipole builds a dipole fitting. embedding_width must equal the
// descriptor's dim_emb.
func NewDipole(b tensor.Backend, d serialization.Dict) (*Dipole, error) {
	cfg, rd, cd, err := parseDipoleConfig(d)
	if err != nil {
		return nil, err
	}
	g, err := newGeneral(b, TypeDipole, cfg)
	if err != nil {
		return nil, err
	}
	return &Dipole{general: g, rDifferentiable: rd, cDifferentiable: cd}, nil
}

func parseDipoleConfig(d serialization.Dict) (cfg config, rd, cd bool, err error) {
	width, err := d.Int("embedding_width")
	if err != nil {
		return cfg, false, false, invalidConfig(err)
	}
	if rd, err = d.BoolOr("r_differentiable", true); err != nil {
		return cfg, false, false, invalidConfig(err)
	}
	if cd, err = d.BoolOr("c_differentiable", true); err != nil {
		return cfg, false, false, invalidConfig(err)
	}
	if cd && !rd {
		return cfg, false, false, configErr("c_differentiable requires r_differentiable")
	}
	cfg, err = parseConfig(d, "dipole", width)
	return cfg, rd, cd, err
}

// DeserializeDipole rebuilds a dipole fitting.
func DeserializeDipole(b tensor.Backend, d serialization.Dict) (*Dipole, error) {
	cfg, rd, cd, err := parseDipoleConfig(d)
	if err != nil {
		return nil, err
	}
	g, err := deserializeGeneral(b, d, TypeDipole, dipoleVersion, cfg)
	if err != nil {
		return nil, err
	}
	return &Dipole{general: g, rDifferentiable: rd, cDifferentiable: cd}, nil
}

// GetDimOut returns 3.
func (f *Dipole) GetDimOut() int { return 3 }

// OutputDef returns the reducible three-component output "dipole".
func (f *Dipole) OutputDef() []OutputVariableDef {
	return []OutputVariableDef{{
		Name:            "dipole",
		Shape:           []int{3},
		Reducible:       true,
		RDifferentiable: f.rDifferentiable,
		CDifferentiable: f.cDifferentiable,
	}}
}

// Forward returns {"dipole": [nf, nloc, 3]}. in.Gr is required.
func (f *Dipole) Forward(in Input) (map[string]*tensor.RawTensor, error) {
	nf, nloc, err := f.validate(in)
	if err != nil {
		return nil, err
	}
	m := f.cfg.NetOut
	if in.Gr == nil || !in.Gr.Shape().Equal(tensor.Shape{nf, nloc, m, 3}) {
		return nil, invalid("input gr", "want shape [%d, %d, %d, 3]", nf, nloc, m)
	}
	b := f.backend
	nfl := nf * nloc
	out := f.compute(in, nf, nloc)
	gr := b.Reshape(in.Gr, tensor.Shape{nfl, m, 3})
	dip := b.SumDim(b.Mul(b.Reshape(out, tensor.Shape{nfl, m, 1}), gr), 1, false)
	return map[string]*tensor.RawTensor{
		"dipole": b.Reshape(dip, tensor.Shape{nf, nloc, 3}),
	}, nil
}

// Serialize returns the version 2 payload.
func (f *Dipole) Serialize() (serialization.Dict, error) {
	out := f.serializeCommon(dipoleVersion)
	delete(out, "dim_out")
	out["embedding_width"] = f.cfg.NetOut
	out["r_differentiable"] = f.rDifferentiable
	out["c_differentiable"] = f.cDifferentiable
	return out, nil
}

func init() {
	Register(TypeDipole, Plugin{
		New: func(b tensor.Backend, cfg serialization.Dict) (Fitting, error) {
			return NewDipole(b, cfg)
		},
		Deserialize: func(b tensor.Backend, d serialization.Dict) (Fitting, error) {
			return DeserializeDipole(b, d)
		},
	})
}

var _ Fitting = (*Dipole)(nil)
