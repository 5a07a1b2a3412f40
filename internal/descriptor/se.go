package descriptor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/Yi-FanLi/deepmd-kit/internal/env"
	"github.com/Yi-FanLi/deepmd-kit/internal/nn"
	"github.com/Yi-FanLi/deepmd-kit/internal/serialization"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

const (
	variablePrefix  = "descriptor"
	embeddingsName  = variablePrefix + ".embeddings"
	descriptorClass = "Descriptor"
)

// statState holds the normalization statistics. ShareParams makes two
// descriptors point at the same statState.
type statState struct {
	davg    *tensor.RawTensor // [ntypes, nnei, last]
	dstd    *tensor.RawTensor
	set     bool
	envStat *env.EnvMatStat
}

// se is the state and behavior shared by the smooth-edition descriptors.
type se struct {
	Base
	typ        string
	cfg        seConfig
	radialOnly bool
	backend    tensor.Backend
	embeddings *nn.NetworkCollection
	stat       *statState
	emask      *env.PairExcludeMask
	compress   *compression
}

func newSe(b tensor.Backend, typ string, cfg seConfig, radialOnly bool, ndim int) (*se, error) {
	s := &se{typ: typ, cfg: cfg, radialOnly: radialOnly, backend: b}
	if err := s.reinitExclude(); err != nil {
		return nil, err
	}
	coll, err := nn.NewNetworkCollection(ndim, cfg.ntypes(), nn.EmbeddingNetworkType)
	if err != nil {
		return nil, err
	}
	for i := 0; i < coll.Len(); i++ {
		net, err := s.freshEmbedding(i)
		if err != nil {
			return nil, err
		}
		coll.SetAt(i, net)
	}
	s.embeddings = coll
	s.stat = &statState{}
	s.resetStats()
	return s, nil
}

func (s *se) freshEmbedding(slot int) (nn.Network, error) {
	return nn.NewEmbeddingNet(s.backend, embeddingsName+".networks."+strconv.Itoa(slot), nn.EmbeddingNetConfig{
		InDim:      1,
		Neuron:     s.cfg.Neuron,
		Activation: s.cfg.Activation,
		ResnetDt:   s.cfg.ResnetDt,
		Precision:  s.cfg.Precision,
		Bias:       true,
		Seed:       nn.ChildSeed(s.cfg.Seed, slot),
	})
}

func (s *se) reinitExclude() error {
	m, err := env.NewPairExcludeMask(s.cfg.ntypes(), s.cfg.ExcludeTypes)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	s.emask = m
	return nil
}

func (s *se) last() int { return env.Width(s.radialOnly) }

// resetStats sets the identity normalization without marking the
// statistics as set.
func (s *se) resetStats() {
	nt, nnei, last := s.cfg.ntypes(), s.cfg.nnei(), s.last()
	s.assignStats(tensor.Zeros(nt, nnei, last), tensor.Full(1, nt, nnei, last))
	s.stat.set = false
}

func (s *se) assignStats(davg, dstd *tensor.RawTensor) {
	s.stat.davg = s.backend.Variable(variablePrefix+".davg", davg)
	s.stat.dstd = s.backend.Variable(variablePrefix+".dstd", dstd)
	s.stat.set = true
}

func (s *se) envMat() env.EnvMat {
	return env.EnvMat{Rcut: s.cfg.Rcut, RcutSmth: s.cfg.RcutSmth, Protection: s.cfg.EnvProtection}
}

// Type returns the registry tag.
func (s *se) Type() string { return s.typ }

// GetRcut returns the cutoff radius.
func (s *se) GetRcut() float64 { return s.cfg.Rcut }

// GetRcutSmth returns the radius where the smooth switch starts.
func (s *se) GetRcutSmth() float64 { return s.cfg.RcutSmth }

// GetSel returns the number of selected neighbors of each type.
func (s *se) GetSel() []int { return append([]int(nil), s.cfg.Sel...) }

// GetNsel returns the total number of selected neighbors.
func (s *se) GetNsel() int { return s.cfg.nnei() }

// GetNnei returns the neighbor-list width.
func (s *se) GetNnei() int { return s.cfg.nnei() }

// GetNtypes returns the number of atom types.
func (s *se) GetNtypes() int { return s.cfg.ntypes() }

// GetTypeMap returns the type names, or nil when unset.
func (s *se) GetTypeMap() []string {
	if s.cfg.TypeMap == nil {
		return nil
	}
	return append([]string(nil), s.cfg.TypeMap...)
}

// GetDimEmb returns the width of the embedding output.
func (s *se) GetDimEmb() int { return s.cfg.ng() }

// MixedTypes returns false: neighbor lists are split by type.
func (s *se) MixedTypes() bool { return false }

// GetEnvProtection returns the distance floor of the environment matrix.
func (s *se) GetEnvProtection() float64 { return s.cfg.EnvProtection }

// GetStats returns the statistics items behind davg and dstd.
func (s *se) GetStats() (map[string]env.StatItem, error) {
	if s.stat.envStat == nil {
		return nil, fmt.Errorf("%w: %w", ErrStatisticsMissing, env.ErrNoStatistics)
	}
	return s.stat.envStat.Stats(), nil
}

// Parameters returns the embedding network parameters.
func (s *se) Parameters() []*nn.Parameter {
	return s.embeddings.Parameters()
}

// SetStatMeanAndStddev installs mean and stddev ([ntypes, nnei, last]).
func (s *se) SetStatMeanAndStddev(mean, stddev *tensor.RawTensor) error {
	want := tensor.Shape{s.cfg.ntypes(), s.cfg.nnei(), s.last()}
	if mean == nil || stddev == nil || !mean.Shape().Equal(want) || !stddev.Shape().Equal(want) {
		return fmt.Errorf("%w: statistics must both have shape %v", tensor.ErrShapeMismatch, want)
	}
	s.assignStats(mean.Clone(), stddev.Clone())
	return nil
}

// GetStatMeanAndStddev returns copies of the mean and stddev.
func (s *se) GetStatMeanAndStddev() (*tensor.RawTensor, *tensor.RawTensor, error) {
	if !s.stat.set {
		return nil, nil, ErrStatisticsMissing
	}
	return s.stat.davg.Clone(), s.stat.dstd.Clone(), nil
}

// Hash identifies the configuration the statistics depend on.
func (s *se) Hash() string {
	h := sha256.New()
	// writes to a hash.Hash never fail
	fmt.Fprintf(h, "type=%s rcut=%v rcut_smth=%v sel=%v ntypes=%d exclude_types=%v env_protection=%v radial_only=%t",
		s.typ, s.cfg.Rcut, s.cfg.RcutSmth, s.cfg.Sel, s.cfg.ntypes(),
		s.emask.ExcludeTypes(), s.cfg.EnvProtection, s.radialOnly)
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:])
}

// serializeCommon returns the payload fields shared by every variant.
func (s *se) serializeCommon(version int) serialization.Dict {
	return serialization.Dict{
		serialization.KeyClass:   descriptorClass,
		serialization.KeyType:    s.typ,
		serialization.KeyVersion: version,
		"rcut":                   s.cfg.Rcut,
		"rcut_smth":              s.cfg.RcutSmth,
		"sel":                    s.GetSel(),
		"neuron":                 append([]int(nil), s.cfg.Neuron...),
		"resnet_dt":              s.cfg.ResnetDt,
		"exclude_types":          excludeTypesValue(s.emask.ExcludeTypes()),
		"env_protection":         s.cfg.EnvProtection,
		"set_davg_zero":          s.cfg.SetDavgZero,
		"activation_function":    s.cfg.Activation,
		"precision":              "float64",
		"trainable":              s.cfg.Trainable,
		"seed":                   seedValue(s.cfg.Seed),
		"type_map":               typeMapValue(s.cfg.TypeMap),
		"embeddings":             s.embeddings.Serialize(),
		"env_mat": serialization.Dict{
			"rcut":       s.cfg.Rcut,
			"rcut_smth":  s.cfg.RcutSmth,
			"protection": s.cfg.EnvProtection,
		},
		serialization.KeyVariables: serialization.Dict{
			"davg": s.stat.davg.Clone(),
			"dstd": s.stat.dstd.Clone(),
		},
	}
}

// deserializeSe restores the shared state from a payload. The payload's
// statistics count as set.
func deserializeSe(b tensor.Backend, d serialization.Dict, typ string, maxVersion int, radialOnly bool, ndim int) (*se, error) {
	if err := serialization.CheckVersion(d, maxVersion, 1); err != nil {
		return nil, err
	}
	if err := serialization.CheckClass(d, descriptorClass); err != nil {
		return nil, err
	}
	cfg, err := parseSeConfig(d)
	if err != nil {
		return nil, err
	}
	vars, err := d.Variables()
	if err != nil {
		return nil, err
	}
	davg, err := vars.Array("davg")
	if err != nil {
		return nil, err
	}
	dstd, err := vars.Array("dstd")
	if err != nil {
		return nil, err
	}
	embD, err := d.Dict("embeddings")
	if err != nil {
		return nil, err
	}
	coll, err := nn.DeserializeNetworkCollection(b, embeddingsName, embD)
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}
	if coll.Ndim() != ndim || coll.Ntypes() != cfg.ntypes() {
		return nil, fmt.Errorf("%w: embeddings hold ndim %d over %d types, want ndim %d over %d",
			serialization.ErrTypeMismatch, coll.Ndim(), coll.Ntypes(), ndim, cfg.ntypes())
	}
	s := &se{typ: typ, cfg: cfg, radialOnly: radialOnly, backend: b, embeddings: coll, stat: &statState{}}
	if err := s.reinitExclude(); err != nil {
		return nil, err
	}
	if err := s.SetStatMeanAndStddev(davg, dstd); err != nil {
		return nil, err
	}
	return s, nil
}

// checkInputs validates the Forward arguments and returns nf, nloc, nall.
func (s *se) checkInputs(coord *tensor.RawTensor, atype, nlist *tensor.IntTensor) (nf, nloc, nall int, err error) {
	if !s.stat.set {
		return 0, 0, 0, ErrStatisticsMissing
	}
	if len(nlist.Shape()) != 3 {
		return 0, 0, 0, fmt.Errorf("%w: nlist must be [nf, nloc, nnei], got %v", tensor.ErrShapeMismatch, nlist.Shape())
	}
	nf, nloc = nlist.Dim(0), nlist.Dim(1)
	if nlist.Dim(2) != s.cfg.nnei() {
		return 0, 0, 0, fmt.Errorf("%w: nlist has %d neighbors per atom, descriptor selects %d", tensor.ErrShapeMismatch, nlist.Dim(2), s.cfg.nnei())
	}
	if nf == 0 || atype.Shape().NumElements()%nf != 0 {
		return 0, 0, 0, fmt.Errorf("%w: atype %v does not match %d frames", tensor.ErrShapeMismatch, atype.Shape(), nf)
	}
	nall = atype.Shape().NumElements() / nf
	if coord.NumElements() != nf*nall*3 {
		return 0, 0, 0, fmt.Errorf("%w: extended coordinates have %d values, want %d", tensor.ErrShapeMismatch, coord.NumElements(), nf*nall*3)
	}
	if nloc > nall {
		return 0, 0, 0, fmt.Errorf("%w: nloc %d exceeds nall %d", tensor.ErrShapeMismatch, nloc, nall)
	}
	return nf, nloc, nall, nil
}

// environment computes the normalized environment matrix with excluded
// pairs zeroed. It returns the matrix data and the env result.
func (s *se) environment(coord *tensor.RawTensor, atype, nlist *tensor.IntTensor) ([]float64, *env.Result, error) {
	res, err := s.envMat().Compute(coord, atype, nlist, s.stat.davg, s.stat.dstd, s.radialOnly)
	if err != nil {
		return nil, nil, err
	}
	mask, err := s.emask.Build(nlist, atype)
	if err != nil {
		return nil, nil, err
	}
	em := res.Env.Data()
	last := s.last()
	for row, m := range mask.Data() {
		if m == 0 {
			for k := 0; k < last; k++ {
				em[row*last+k] = 0
			}
		}
	}
	return em, res, nil
}

// sections returns the start offset of every type block in a row.
func (s *se) sections() []int {
	sec := make([]int, len(s.cfg.Sel)+1)
	for i, n := range s.cfg.Sel {
		sec[i+1] = sec[i] + n
	}
	return sec
}

// embed evaluates embedding slot on the column x ([len(x), 1]).
func (s *se) embed(slot int, x []float64) (*tensor.RawTensor, error) {
	if s.compress != nil {
		return s.compress.eval(slot, x), nil
	}
	net := s.embeddings.At(slot)
	if net == nil {
		return nil, fmt.Errorf("embedding network %d is missing", slot)
	}
	return net.Forward(tensor.MustFromSlice(x, len(x), 1)), nil
}

func accumulate(b tensor.Backend, acc, x *tensor.RawTensor) *tensor.RawTensor {
	if acc == nil {
		return x
	}
	return b.Add(acc, x)
}

func scalar(v float64) *tensor.RawTensor {
	return tensor.Full(v, 1)
}
