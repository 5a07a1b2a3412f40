// Package atomicmodel composes a descriptor with one or more fittings into
// an atomic model that maps an extended neighborhood to per-atom outputs.
package atomicmodel

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Yi-FanLi/deepmd-kit/internal/data"
	"github.com/Yi-FanLi/deepmd-kit/internal/descriptor"
	"github.com/Yi-FanLi/deepmd-kit/internal/dpath"
	"github.com/Yi-FanLi/deepmd-kit/internal/env"
	"github.com/Yi-FanLi/deepmd-kit/internal/fitting"
	"github.com/Yi-FanLi/deepmd-kit/internal/logging"
	"github.com/Yi-FanLi/deepmd-kit/internal/nlist"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// KeyMask names the per-atom mask in the output of ForwardCommonAtomic.
const KeyMask = "mask"

// DefaultStatProtection is the smallest standard deviation used for
// fitting input statistics.
const DefaultStatProtection = 1e-2

var (
	// ErrIncompatible is returned when the components of a model disagree.
	ErrIncompatible = errors.New("incompatible model components")

	// ErrNotSupported is returned for unsupported model operations.
	ErrNotSupported = errors.New("not supported")
)

// DPAtomicModel is a descriptor followed by fittings sharing its output.
type DPAtomicModel struct {
	backend    tensor.Backend
	descriptor descriptor.Descriptor
	fittings   []fitting.Fitting
	typeMap    []string

	atomExclude *env.AtomExcludeMask
	pairExclude *env.PairExcludeMask

	// StatProtection bounds the fitting input standard deviations.
	StatProtection float64
}

// New composes d with fittings. The first fitting is the primary one; every
// fitting must consume the descriptor output and output names must be
// unique.
func New(b tensor.Backend, d descriptor.Descriptor, fittings ...fitting.Fitting) (*DPAtomicModel, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: no descriptor", ErrIncompatible)
	}
	if len(fittings) == 0 {
		return nil, fmt.Errorf("%w: no fitting", ErrIncompatible)
	}
	seen := map[string]bool{KeyMask: true}
	for i, f := range fittings {
		if f.GetDimDescrpt() != d.GetDimOut() {
			return nil, fmt.Errorf("%w: fitting %d expects descriptor dim %d, descriptor %q gives %d",
				ErrIncompatible, i, f.GetDimDescrpt(), d.Type(), d.GetDimOut())
		}
		if f.GetNtypes() != d.GetNtypes() {
			return nil, fmt.Errorf("%w: fitting %d has %d types, descriptor has %d",
				ErrIncompatible, i, f.GetNtypes(), d.GetNtypes())
		}
		for _, def := range f.OutputDef() {
			if seen[def.Name] {
				return nil, fmt.Errorf("%w: duplicate output %q", ErrIncompatible, def.Name)
			}
			seen[def.Name] = true
		}
	}
	typeMap := d.GetTypeMap()
	if typeMap == nil {
		typeMap = fittings[0].GetTypeMap()
	}
	m := &DPAtomicModel{
		backend:        b,
		descriptor:     d,
		fittings:       fittings,
		typeMap:        append([]string(nil), typeMap...),
		StatProtection: DefaultStatProtection,
	}
	if err := m.ReinitAtomExclude(nil); err != nil {
		return nil, err
	}
	if err := m.ReinitPairExclude(nil); err != nil {
		return nil, err
	}
	return m, nil
}

// ReinitAtomExclude replaces the atom types whose outputs are zeroed.
func (m *DPAtomicModel) ReinitAtomExclude(types []int) error {
	mask, err := env.NewAtomExcludeMask(m.GetNtypes(), types)
	if err != nil {
		return fmt.Errorf("atom_exclude_types: %w", err)
	}
	m.atomExclude = mask
	return nil
}

// ReinitPairExclude replaces the type pairs dropped from the neighbor list.
func (m *DPAtomicModel) ReinitPairExclude(pairs [][2]int) error {
	mask, err := env.NewPairExcludeMask(m.GetNtypes(), pairs)
	if err != nil {
		return fmt.Errorf("pair_exclude_types: %w", err)
	}
	m.pairExclude = mask
	return nil
}

// Descriptor returns the descriptor.
func (m *DPAtomicModel) Descriptor() descriptor.Descriptor { return m.descriptor }

// Fittings returns the fittings, primary first.
func (m *DPAtomicModel) Fittings() []fitting.Fitting { return m.fittings }

func (m *DPAtomicModel) GetRcut() float64 { return m.descriptor.GetRcut() }

func (m *DPAtomicModel) GetSel() []int { return m.descriptor.GetSel() }

func (m *DPAtomicModel) GetNsel() int { return m.descriptor.GetNsel() }

func (m *DPAtomicModel) GetNtypes() int { return m.descriptor.GetNtypes() }

func (m *DPAtomicModel) GetTypeMap() []string { return append([]string(nil), m.typeMap...) }

func (m *DPAtomicModel) MixedTypes() bool { return m.descriptor.MixedTypes() }

func (m *DPAtomicModel) GetDimFparam() int { return m.fittings[0].GetDimFparam() }

func (m *DPAtomicModel) GetDimAparam() int { return m.fittings[0].GetDimAparam() }

// AtomExcludeTypes returns the atom types whose outputs are zeroed.
func (m *DPAtomicModel) AtomExcludeTypes() []int { return m.atomExclude.ExcludeTypes() }

// PairExcludeTypes returns the type pairs dropped from the neighbor list.
func (m *DPAtomicModel) PairExcludeTypes() [][2]int { return m.pairExclude.ExcludeTypes() }

// GetSelType returns the types that produce outputs.
func (m *DPAtomicModel) GetSelType() []int {
	var out []int
	for t := 0; t < m.GetNtypes(); t++ {
		if !m.atomExclude.Excluded(t) {
			out = append(out, t)
		}
	}
	return out
}

// OutputDef returns the output definitions of all fittings.
func (m *DPAtomicModel) OutputDef() []fitting.OutputVariableDef {
	var out []fitting.OutputVariableDef
	for _, f := range m.fittings {
		out = append(out, f.OutputDef()...)
	}
	return out
}

// EnableCompression tabulates the descriptor embeddings.
func (m *DPAtomicModel) EnableCompression(minNborDist, tableExtrapolate, tableStride1, tableStride2 float64, checkFrequency int) error {
	return m.descriptor.EnableCompression(minNborDist, tableExtrapolate, tableStride1, tableStride2, checkFrequency)
}

// ForwardCommonAtomic evaluates the model on an extended region.
//
// coordExt is [nf, nall*3], atypeExt and mapping are [nf, nall] and nlist
// is [nf, nloc, nnei]. Atoms with a negative type are virtual: they take
// type 0 inside the descriptor and their outputs are zero. The result maps
// every fitting output to [nf, nloc, dim] plus KeyMask, a [nf, nloc] array
// that is 1 on real atoms.
func (m *DPAtomicModel) ForwardCommonAtomic(coordExt *tensor.RawTensor, atypeExt, nl, mapping *tensor.IntTensor, fparam, aparam *tensor.RawTensor) (map[string]*tensor.RawTensor, error) {
	if s, ok := m.backend.(tensor.GradientStopper); ok {
		nl = s.StopGradient(nl)
	}
	if len(nl.Shape()) != 3 {
		return nil, fmt.Errorf("%w: nlist must be [nf, nloc, nnei], got %v", tensor.ErrShapeMismatch, nl.Shape())
	}
	nf, nloc := nl.Dim(0), nl.Dim(1)
	if len(atypeExt.Shape()) != 2 || atypeExt.Dim(0) != nf || atypeExt.Dim(1) < nloc {
		return nil, fmt.Errorf("%w: atype %v does not extend nlist %v", tensor.ErrShapeMismatch, atypeExt.Shape(), nl.Shape())
	}
	nall := atypeExt.Dim(1)

	atype := tensor.FullInt(0, nf, nloc)
	safe := atypeExt.Clone()
	for f := 0; f < nf; f++ {
		copy(atype.Row(f), atypeExt.Row(f)[:nloc])
	}
	for i, t := range safe.Data() {
		if t < 0 {
			safe.Data()[i] = 0
		}
	}

	if !m.pairExclude.Empty() {
		keep, err := m.pairExclude.Build(nl, safe)
		if err != nil {
			return nil, err
		}
		nl = nl.Clone()
		for i, k := range keep.Data() {
			if k == 0 {
				nl.Data()[i] = -1
			}
		}
	}

	out, err := m.descriptor.Forward(coordExt, safe, nl, mapping)
	if err != nil {
		return nil, fmt.Errorf("descriptor %s: %w", m.descriptor.Type(), err)
	}

	mask := tensor.Zeros(nf, nloc)
	excl := m.atomExclude.Build(atype).Data()
	for i, t := range atype.Data() {
		if t >= 0 && excl[i] == 1 {
			mask.Data()[i] = 1
		}
	}
	col := mask.MustReshape(nf, nloc, 1)

	result := map[string]*tensor.RawTensor{KeyMask: mask}
	in := fitting.Input{
		Descriptor: out.Descriptor,
		Atype:      atype,
		Gr:         out.Rot,
		G2:         out.G2,
		H2:         out.H2,
		Fparam:     fparam,
		Aparam:     aparam,
	}
	for _, f := range m.fittings {
		ret, err := f.Forward(in)
		if err != nil {
			return nil, fmt.Errorf("fitting %s: %w", f.Type(), err)
		}
		for name, v := range ret {
			result[name] = m.backend.Mul(v, col)
		}
	}
	logging.L().Debug("atomic model forward",
		logging.Int("nframes", nf),
		logging.Int("nloc", nloc),
		logging.Int("nall", nall))
	return result, nil
}

// Forward builds the extended region and neighbor list of local
// coordinates ([nf, nloc*3]) and evaluates the model. box is [nf, 9] or
// nil for open boundaries.
func (m *DPAtomicModel) Forward(coord *tensor.RawTensor, atype *tensor.IntTensor, box, fparam, aparam *tensor.RawTensor) (map[string]*tensor.RawTensor, error) {
	b := nlist.NewBuilder(m.GetRcut(), m.GetSel(), !m.MixedTypes())
	ext, nl, err := b.ExtendAndBuild(coord, atype, box)
	if err != nil {
		return nil, fmt.Errorf("build neighbor list: %w", err)
	}
	return m.ForwardCommonAtomic(ext.Coord, ext.Atype, nl, ext.Mapping, fparam, aparam)
}

// ComputeOrLoadStat computes the descriptor statistics, or loads them from
// path when cached there, then the fitting input statistics. The sampler
// is invoked at most once.
func (m *DPAtomicModel) ComputeOrLoadStat(sampler data.Sampler, path *dpath.Path) error {
	merged := once(sampler)
	if err := m.descriptor.ComputeInputStats(merged, path); err != nil && !errors.Is(err, descriptor.ErrStatsNotSupported) {
		return fmt.Errorf("descriptor statistics: %w", err)
	}
	for _, f := range m.fittings {
		if err := f.ComputeInputStats(merged, m.StatProtection); err != nil {
			return fmt.Errorf("fitting statistics: %w", err)
		}
	}
	return nil
}

func once(s data.Sampler) data.Sampler {
	var (
		done    bool
		samples []data.Sample
		err     error
	)
	return func() ([]data.Sample, error) {
		if !done {
			samples, err = s()
			done = true
		}
		return samples, err
	}
}

// ChangeTypeMap moves the model onto typeMap. Types new to the model take
// their statistics and biases from donor when it knows them.
func (m *DPAtomicModel) ChangeTypeMap(typeMap []string, donor *DPAtomicModel) error {
	if len(m.typeMap) == 0 {
		return fmt.Errorf("%w: type map change needs a type_map", ErrNotSupported)
	}
	// every component must accept the change before any of them is touched
	if m.descriptor.GetTypeMap() == nil {
		return fmt.Errorf("descriptor: %w: type map change needs a type_map", ErrNotSupported)
	}
	for i, f := range m.fittings {
		if f.GetTypeMap() == nil {
			return fmt.Errorf("fitting %d: %w: type map change needs a type_map", i, ErrNotSupported)
		}
	}
	var donorDesc descriptor.Descriptor
	if donor != nil {
		donorDesc = donor.descriptor
	}
	if err := m.descriptor.ChangeTypeMap(typeMap, donorDesc); err != nil {
		return fmt.Errorf("descriptor: %w", err)
	}
	for i, f := range m.fittings {
		var donorFit fitting.Fitting
		if donor != nil && i < len(donor.fittings) {
			donorFit = donor.fittings[i]
		}
		if err := f.ChangeTypeMap(typeMap, donorFit); err != nil {
			return fmt.Errorf("fitting %d: %w", i, err)
		}
	}

	index := make(map[string]int, len(m.typeMap))
	for i, name := range m.typeMap {
		index[name] = i
	}
	mapping := make([]int, len(typeMap))
	for i, name := range typeMap {
		mapping[i] = -1
		if o, ok := index[name]; ok {
			mapping[i] = o
		}
	}
	m.atomExclude = m.atomExclude.Remap(mapping)
	m.pairExclude = m.pairExclude.Remap(mapping)
	m.typeMap = append([]string(nil), typeMap...)
	return nil
}

// OutputNames returns the sorted fitting output names.
func (m *DPAtomicModel) OutputNames() []string {
	var names []string
	for _, def := range m.OutputDef() {
		names = append(names, def.Name)
	}
	sort.Strings(names)
	return names
}
