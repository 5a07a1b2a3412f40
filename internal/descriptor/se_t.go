package descriptor

import (
	"github.com/Yi-FanLi/deepmd-kit/internal/serialization"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// TypeSeT is the registry tag of the three-body descriptor.
const TypeSeT = "se_e3"

const seTVersion = 2

// SeT is the smooth-edition three-body descriptor. For every pair of
// neighbors j, k of atom i it embeds the angular product
// (r_ij . r_ik) of the normalized environment rows and weights the
// embedding by the same product.
//
// Embeddings are indexed by the neighbor type pair (ti, tj); only pairs
// with ti <= tj are evaluated.
type SeT struct {
	*se
}

// NewSeT builds an se_e3 descriptor from a configuration.
func NewSeT(b tensor.Backend, d serialization.Dict) (*SeT, error) {
	cfg, err := parseSeConfig(d)
	if err != nil {
		return nil, err
	}
	s, err := newSe(b, TypeSeT, cfg, false, 2)
	if err != nil {
		return nil, err
	}
	return &SeT{se: s}, nil
}

// DeserializeSeT rebuilds an se_e3 descriptor.
func DeserializeSeT(b tensor.Backend, d serialization.Dict) (*SeT, error) {
	s, err := deserializeSe(b, d, TypeSeT, seTVersion, false, 2)
	if err != nil {
		return nil, err
	}
	return &SeT{se: s}, nil
}

// GetDimOut returns neuron[-1].
func (d *SeT) GetDimOut() int { return d.cfg.ng() }

// Serialize returns the version 2 payload.
func (d *SeT) Serialize() (serialization.Dict, error) {
	return d.serializeCommon(seTVersion), nil
}

// Forward computes the descriptor. Rot is nil.
func (d *SeT) Forward(coordExt *tensor.RawTensor, atypeExt, nlist, mapping *tensor.IntTensor) (*Output, error) {
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
	ng := d.cfg.ng()
	ntypes := d.cfg.ntypes()

	var sum *tensor.RawTensor
	for ti := 0; ti < ntypes; ti++ {
		for tj := ti; tj < ntypes; tj++ {
			si, sj := d.cfg.Sel[ti], d.cfg.Sel[tj]
			if si == 0 || sj == 0 {
				continue
			}
			envij := d.angularProducts(em, nfl, ti, tj)
			gg, err := d.embed(ti*ntypes+tj, envij)
			if err != nil {
				return nil, err
			}
			weighted := b.Mul(gg, tensor.MustFromSlice(envij, len(envij), 1))
			part := b.SumDim(b.Reshape(weighted, tensor.Shape{nfl, si * sj, ng}), 1, false)
			part = b.Mul(part, scalar(1/float64(si*sj)))
			sum = accumulate(b, sum, part)
		}
	}
	if sum == nil {
		sum = tensor.Zeros(nfl, ng)
	}
	return &Output{
		Descriptor: b.Reshape(sum, tensor.Shape{nf, nloc, ng}),
		Sw:         res.Sw,
	}, nil
}

// angularProducts returns env_ij[a, j, k] = sum_m R[a, j, m] R[a, k, m]
// over the three angular columns, flattened to [nfl*si*sj], for neighbor
// j in block ti and k in block tj.
func (d *SeT) angularProducts(em []float64, nfl, ti, tj int) []float64 {
	nnei := d.cfg.nnei()
	sec := d.sections()
	si, sj := d.cfg.Sel[ti], d.cfg.Sel[tj]
	out := make([]float64, nfl*si*sj)
	for a := 0; a < nfl; a++ {
		for j := 0; j < si; j++ {
			rj := em[(a*nnei+sec[ti]+j)*4:]
			for k := 0; k < sj; k++ {
				rk := em[(a*nnei+sec[tj]+k)*4:]
				out[(a*si+j)*sj+k] = rj[1]*rk[1] + rj[2]*rk[2] + rj[3]*rk[3]
			}
		}
	}
	return out
}

func init() {
	Register(TypeSeT, Plugin{
		New: func(b tensor.Backend, cfg serialization.Dict) (Descriptor, error) {
			return NewSeT(b, cfg)
		},
		Deserialize: func(b tensor.Backend, d serialization.Dict) (Descriptor, error) {
			return DeserializeSeT(b, d)
		},
		UpdateSel: updateSel,
	}, "se_at", "se_a_3be")
}

var _ Descriptor = (*SeT)(nil)
