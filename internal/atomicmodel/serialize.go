package atomicmodel

import (
	"fmt"

	"github.com/Yi-FanLi/deepmd-kit/internal/descriptor"
	"github.com/Yi-FanLi/deepmd-kit/internal/fitting"
	"github.com/Yi-FanLi/deepmd-kit/internal/serialization"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

const (
	modelClass   = "Model"
	modelType    = "standard"
	modelVersion = 2
)

// Serialize returns the model payload. Fittings after the first are stored
// under "extra_fittings".
func (m *DPAtomicModel) Serialize() (serialization.Dict, error) {
	desc, err := m.descriptor.Serialize()
	if err != nil {
		return nil, fmt.Errorf("descriptor: %w", err)
	}
	fits := make([]any, 0, len(m.fittings))
	for i, f := range m.fittings {
		d, err := f.Serialize()
		if err != nil {
			return nil, fmt.Errorf("fitting %d: %w", i, err)
		}
		fits = append(fits, d)
	}
	pairs := make([]any, 0)
	for _, p := range m.pairExclude.ExcludeTypes() {
		pairs = append(pairs, []int{p[0], p[1]})
	}
	out := serialization.Dict{
		serialization.KeyClass:     modelClass,
		serialization.KeyType:      modelType,
		serialization.KeyVersion:   modelVersion,
		"type_map":                 m.GetTypeMap(),
		"descriptor":               desc,
		"fitting":                  fits[0],
		"atom_exclude_types":       m.atomExclude.ExcludeTypes(),
		"pair_exclude_types":       pairs,
		"data_stat_protect":        m.StatProtection,
		serialization.KeyVariables: serialization.Dict{},
	}
	if len(fits) > 1 {
		out["extra_fittings"] = fits[1:]
	}
	return out, nil
}

// Deserialize rebuilds a model on backend b.
func Deserialize(b tensor.Backend, d serialization.Dict) (*DPAtomicModel, error) {
	if err := serialization.CheckClass(d, modelClass); err != nil {
		return nil, err
	}
	if err := serialization.CheckVersion(d, modelVersion, 1); err != nil {
		return nil, err
	}
	typ, err := d.StringOr(serialization.KeyType, modelType)
	if err != nil {
		return nil, err
	}
	if typ != modelType {
		return nil, fmt.Errorf("%w: model type %q", ErrNotSupported, typ)
	}

	dd, err := d.Dict("descriptor")
	if err != nil {
		return nil, err
	}
	desc, err := descriptor.Deserialize(b, dd)
	if err != nil {
		return nil, fmt.Errorf("descriptor: %w", err)
	}

	payloads := []any{d["fitting"]}
	if d.Has("extra_fittings") && d["extra_fittings"] != nil {
		extra, ok := d["extra_fittings"].([]any)
		if !ok {
			return nil, fmt.Errorf("%w: key %q must be a list, got %T", serialization.ErrTypeMismatch, "extra_fittings", d["extra_fittings"])
		}
		payloads = append(payloads, extra...)
	}
	fits := make([]fitting.Fitting, 0, len(payloads))
	for i, p := range payloads {
		fd, ok := serialization.AsDict(p)
		if !ok {
			return nil, fmt.Errorf("%w: fitting %d is %T, want a dictionary", serialization.ErrTypeMismatch, i, p)
		}
		f, err := fitting.Deserialize(b, fd)
		if err != nil {
			return nil, fmt.Errorf("fitting %d: %w", i, err)
		}
		fits = append(fits, f)
	}

	m, err := New(b, desc, fits...)
	if err != nil {
		return nil, err
	}
	if tm, err := d.StringsOr("type_map", nil); err != nil {
		return nil, err
	} else if tm != nil {
		m.typeMap = tm
	}
	atomExcl, err := d.IntsOr("atom_exclude_types", nil)
	if err != nil {
		return nil, err
	}
	if err := m.ReinitAtomExclude(atomExcl); err != nil {
		return nil, err
	}
	pairExcl, err := d.IntPairs("pair_exclude_types")
	if err != nil {
		return nil, err
	}
	if err := m.ReinitPairExclude(pairExcl); err != nil {
		return nil, err
	}
	if m.StatProtection, err = d.FloatOr("data_stat_protect", DefaultStatProtection); err != nil {
		return nil, err
	}
	return m, nil
}
