package fitting

import (
	"github.com/Yi-FanLi/deepmd-kit/internal/serialization"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// Registry tags of the invariant heads.
const (
	TypeInvar = "invar"
	TypeEner  = "ener"
)

const invarVersion = 2

// Invar fits a rotation invariant per-atom property named var_name with
// dim_out components.
type Invar struct {
	*general
}

// NewInvar builds an invar fitting. var_name and dim_out are required.
func NewInvar(b tensor.Backend, d serialization.Dict) (*Invar, error) {
	cfg, err := parseInvarConfig(d, TypeInvar)
	if err != nil {
		return nil, err
	}
	g, err := newGeneral(b, TypeInvar, cfg)
	if err != nil {
		return nil, err
	}
	return &Invar{general: g}, nil
}

// NewEner builds the energy head: an invar fitting with var_name
// "energy" and dim_out 1.
func NewEner(b tensor.Backend, d serialization.Dict) (*Invar, error) {
	cfg, err := parseInvarConfig(d, TypeEner)
	if err != nil {
		return nil, err
	}
	g, err := newGeneral(b, TypeEner, cfg)
	if err != nil {
		return nil, err
	}
	return &Invar{general: g}, nil
}

func parseInvarConfig(d serialization.Dict, typ string) (config, error) {
	if typ == TypeEner {
		return parseConfig(d, "energy", 1)
	}
	varName, err := d.String("var_name")
	if err != nil {
		return config{}, invalidConfig(err)
	}
	dimOut, err := d.Int("dim_out")
	if err != nil {
		return config{}, invalidConfig(err)
	}
	return parseConfig(d, varName, dimOut)
}

// DeserializeInvar rebuilds an invar or ener fitting.
func DeserializeInvar(b tensor.Backend, d serialization.Dict) (*Invar, error) {
	typ, err := d.String(serialization.KeyType)
	if err != nil {
		return nil, err
	}
	if typ != TypeEner {
		typ = TypeInvar
	}
	cfg, err := parseInvarConfig(d, TypeInvar)
	if err != nil {
		return nil, err
	}
	g, err := deserializeGeneral(b, d, typ, invarVersion, cfg)
	if err != nil {
		return nil, err
	}
	return &Invar{general: g}, nil
}

// GetVarName returns the output name.
func (f *Invar) GetVarName() string { return f.cfg.VarName }

// GetDimOut returns the number of output components.
func (f *Invar) GetDimOut() int { return f.cfg.NetOut }

// OutputDef returns the single reducible output var_name.
func (f *Invar) OutputDef() []OutputVariableDef {
	diff := f.cfg.VarName == "energy"
	return []OutputVariableDef{{
		Name:            f.cfg.VarName,
		Shape:           []int{f.cfg.NetOut},
		Reducible:       true,
		RDifferentiable: diff,
		CDifferentiable: diff,
	}}
}

// Forward returns {var_name: [nf, nloc, dim_out]}.
func (f *Invar) Forward(in Input) (map[string]*tensor.RawTensor, error) {
	nf, nloc, err := f.validate(in)
	if err != nil {
		return nil, err
	}
	out := f.compute(in, nf, nloc)
	return map[string]*tensor.RawTensor{
		f.cfg.VarName: f.backend.Reshape(out, tensor.Shape{nf, nloc, f.cfg.NetOut}),
	}, nil
}

// Serialize returns the version 2 payload.
func (f *Invar) Serialize() (serialization.Dict, error) {
	return f.serializeCommon(invarVersion), nil
}

func init() {
	deserialize := func(b tensor.Backend, d serialization.Dict) (Fitting, error) {
		return DeserializeInvar(b, d)
	}
	Register(TypeInvar, Plugin{
		New: func(b tensor.Backend, cfg serialization.Dict) (Fitting, error) {
			return NewInvar(b, cfg)
		},
		Deserialize: deserialize,
	})
	Register(TypeEner, Plugin{
		New: func(b tensor.Backend, cfg serialization.Dict) (Fitting, error) {
			return NewEner(b, cfg)
		},
		Deserialize: deserialize,
	})
}

var _ Fitting = (*Invar)(nil)
