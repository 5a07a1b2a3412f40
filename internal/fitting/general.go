package fitting

import (
	"fmt"
	"math"
	"strconv"

	"github.com/Yi-FanLi/deepmd-kit/internal/data"
	"github.com/Yi-FanLi/deepmd-kit/internal/env"
	"github.com/Yi-FanLi/deepmd-kit/internal/logging"
	"github.com/Yi-FanLi/deepmd-kit/internal/nn"
	"github.com/Yi-FanLi/deepmd-kit/internal/serialization"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

const fittingClass = "Fitting"

// Variable keys accepted by Set and Get.
const (
	KeyBiasAtomE    = "bias_atom_e"
	KeyFparamAvg    = "fparam_avg"
	KeyFparamInvStd = "fparam_inv_std"
	KeyAparamAvg    = "aparam_avg"
	KeyAparamInvStd = "aparam_inv_std"
)

var variableKeys = []string{KeyBiasAtomE, KeyFparamAvg, KeyFparamInvStd, KeyAparamAvg, KeyAparamInvStd}

type config struct {
	VarName         string
	Ntypes          int
	DimDescrpt      int
	NetOut          int
	Neuron          []int
	ResnetDt        bool
	NumbFparam      int
	NumbAparam      int
	MixedTypes      bool
	ExcludeTypes    []int
	Activation      string
	Precision       string
	Trainable       bool
	UseAparamAsMask bool
	Seed            *int64
	TypeMap         []string
}

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
}

func invalidConfig(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
}

// parseConfig reads the keys shared by every fitting. varName and netOut
// are supplied by the variant; a "var_name" or "dim_out" key overrides
// them when the variant allows it.
func parseConfig(d serialization.Dict, varName string, netOut int) (config, error) {
	c := config{VarName: varName, NetOut: netOut}
	var err error
	if c.Ntypes, err = d.Int("ntypes"); err != nil {
		return c, invalidConfig(err)
	}
	if c.DimDescrpt, err = d.Int("dim_descrpt"); err != nil {
		return c, invalidConfig(err)
	}
	if c.Neuron, err = d.IntsOr("neuron", []int{120, 120, 120}); err != nil {
		return c, invalidConfig(err)
	}
	if c.ResnetDt, err = d.BoolOr("resnet_dt", true); err != nil {
		return c, invalidConfig(err)
	}
	if c.NumbFparam, err = d.IntOr("numb_fparam", 0); err != nil {
		return c, invalidConfig(err)
	}
	if c.NumbAparam, err = d.IntOr("numb_aparam", 0); err != nil {
		return c, invalidConfig(err)
	}
	if c.MixedTypes, err = d.BoolOr("mixed_types", true); err != nil {
		return c, invalidConfig(err)
	}
	if c.ExcludeTypes, err = d.IntsOr("exclude_types", nil); err != nil {
		return c, invalidConfig(err)
	}
	if c.Activation, err = d.StringOr("activation_function", "tanh"); err != nil {
		return c, invalidConfig(err)
	}
	if c.Precision, err = d.StringOr("precision", "default"); err != nil {
		return c, invalidConfig(err)
	}
	if c.Trainable, err = d.BoolOr("trainable", true); err != nil {
		return c, invalidConfig(err)
	}
	if c.UseAparamAsMask, err = d.BoolOr("use_aparam_as_mask", false); err != nil {
		return c, invalidConfig(err)
	}
	if d.Has("seed") && d["seed"] != nil {
		seed, err := d.Int("seed")
		if err != nil {
			return c, invalidConfig(err)
		}
		s := int64(seed)
		c.Seed = &s
	}
	if c.TypeMap, err = d.StringsOr("type_map", nil); err != nil {
		return c, invalidConfig(err)
	}
	return c, c.validate()
}

func (c config) validate() error {
	switch {
	case c.Ntypes <= 0:
		return configErr("ntypes must be positive, got %d", c.Ntypes)
	case c.DimDescrpt <= 0:
		return configErr("dim_descrpt must be positive, got %d", c.DimDescrpt)
	case c.NetOut <= 0:
		return configErr("dim_out must be positive, got %d", c.NetOut)
	case c.NumbFparam < 0 || c.NumbAparam < 0:
		return configErr("numb_fparam and numb_aparam must not be negative")
	case c.TypeMap != nil && len(c.TypeMap) != c.Ntypes:
		return configErr("type_map %v has %d types but ntypes is %d", c.TypeMap, len(c.TypeMap), c.Ntypes)
	}
	for _, n := range c.Neuron {
		if n <= 0 {
			return configErr("neuron sizes must be positive, got %v", c.Neuron)
		}
	}
	if err := nn.CheckPrecision(c.Precision); err != nil {
		return invalidConfig(err)
	}
	return nil
}

// inDim is the width of the network input.
func (c config) inDim() int {
	n := c.DimDescrpt + c.NumbFparam
	if !c.UseAparamAsMask {
		n += c.NumbAparam
	}
	return n
}

func (c config) ndim() int {
	if c.MixedTypes {
		return 0
	}
	return 1
}

// general is the fitting core shared by every variant: input
// normalization, per-type or shared networks, bias and exclusion.
type general struct {
	typ     string
	cfg     config
	backend tensor.Backend
	nets    *nn.NetworkCollection
	emask   *env.AtomExcludeMask
	vars    map[string]*tensor.RawTensor
}

func (g *general) prefix() string { return "fitting." + g.cfg.VarName }

func (g *general) netsName() string { return g.prefix() + ".nets" }

func newGeneral(b tensor.Backend, typ string, cfg config) (*general, error) {
	g := &general{typ: typ, cfg: cfg, backend: b, vars: make(map[string]*tensor.RawTensor)}
	if err := g.reinitExclude(); err != nil {
		return nil, err
	}
	nets, err := nn.NewNetworkCollection(cfg.ndim(), cfg.Ntypes, nn.FittingNetworkType)
	if err != nil {
		return nil, err
	}
	for i := 0; i < nets.Len(); i++ {
		net, err := g.freshNet(i)
		if err != nil {
			return nil, err
		}
		nets.SetAt(i, net)
	}
	g.nets = nets
	g.setVar(KeyBiasAtomE, tensor.Zeros(cfg.Ntypes, cfg.NetOut))
	g.setVar(KeyFparamAvg, tensor.Zeros(cfg.NumbFparam))
	g.setVar(KeyFparamInvStd, tensor.Full(1, cfg.NumbFparam))
	g.setVar(KeyAparamAvg, tensor.Zeros(cfg.NumbAparam))
	g.setVar(KeyAparamInvStd, tensor.Full(1, cfg.NumbAparam))
	return g, nil
}

func (g *general) freshNet(slot int) (nn.Network, error) {
	return nn.NewFittingNet(g.backend, g.netsName()+".networks."+strconv.Itoa(slot), nn.FittingNetConfig{
		InDim:      g.cfg.inDim(),
		OutDim:     g.cfg.NetOut,
		Neuron:     g.cfg.Neuron,
		Activation: g.cfg.Activation,
		ResnetDt:   g.cfg.ResnetDt,
		Precision:  g.cfg.Precision,
		BiasOut:    true,
		Seed:       nn.ChildSeed(g.cfg.Seed, slot),
	})
}

func (g *general) reinitExclude() error {
	m, err := env.NewAtomExcludeMask(g.cfg.Ntypes, g.cfg.ExcludeTypes)
	if err != nil {
		return invalidConfig(err)
	}
	g.emask = m
	return nil
}

func (g *general) setVar(key string, v *tensor.RawTensor) {
	g.vars[key] = g.backend.Variable(g.prefix()+"."+key, v)
}

func (g *general) varShape(key string) tensor.Shape {
	switch key {
	case KeyBiasAtomE:
		return tensor.Shape{g.cfg.Ntypes, g.cfg.NetOut}
	case KeyFparamAvg, KeyFparamInvStd:
		return tensor.Shape{g.cfg.NumbFparam}
	default:
		return tensor.Shape{g.cfg.NumbAparam}
	}
}

// Type returns the registry tag.
func (g *general) Type() string { return g.typ }

// GetDimDescrpt returns the expected descriptor width.
func (g *general) GetDimDescrpt() int { return g.cfg.DimDescrpt }

// GetDimFparam returns numb_fparam.
func (g *general) GetDimFparam() int { return g.cfg.NumbFparam }

// GetDimAparam returns numb_aparam.
func (g *general) GetDimAparam() int { return g.cfg.NumbAparam }

// GetNtypes returns the number of atom types.
func (g *general) GetNtypes() int { return g.cfg.Ntypes }

// GetTypeMap returns the type names, or nil when unset.
func (g *general) GetTypeMap() []string {
	if g.cfg.TypeMap == nil {
		return nil
	}
	return append([]string(nil), g.cfg.TypeMap...)
}

// MixedTypes reports whether one network serves all types.
func (g *general) MixedTypes() bool { return g.cfg.MixedTypes }

// GetSelType returns the types that are not excluded.
func (g *general) GetSelType() []int {
	var out []int
	for t := 0; t < g.cfg.Ntypes; t++ {
		if !g.emask.Excluded(t) {
			out = append(out, t)
		}
	}
	return out
}

// Parameters returns the network parameters.
func (g *general) Parameters() []*nn.Parameter { return g.nets.Parameters() }

// Set replaces a variable. The shape must match.
func (g *general) Set(key string, value *tensor.RawTensor) error {
	if _, ok := g.vars[key]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return g.assign(key, value)
}

func (g *general) assign(key string, value *tensor.RawTensor) error {
	if want := g.varShape(key); value == nil || !value.Shape().Equal(want) {
		return fmt.Errorf("%w: %s must have shape %v", tensor.ErrShapeMismatch, key, want)
	}
	g.setVar(key, value.Clone())
	return nil
}

// Get returns a copy of a variable.
func (g *general) Get(key string) (*tensor.RawTensor, error) {
	v, ok := g.vars[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return v.Clone(), nil
}

// ComputeInputStats computes the mean and inverse standard deviation of
// fparam over all frames and of aparam over all atoms.
func (g *general) ComputeInputStats(merged data.Sampler, protection float64) error {
	if g.cfg.NumbFparam == 0 && g.cfg.NumbAparam == 0 {
		return nil
	}
	samples, err := merged()
	if err != nil {
		return fmt.Errorf("sample statistics input: %w", err)
	}
	if g.cfg.NumbFparam > 0 {
		var rows []*tensor.RawTensor
		for i, s := range samples {
			if s.Fparam == nil {
				return fmt.Errorf("sample %d has no fparam", i)
			}
			rows = append(rows, s.Fparam)
		}
		avg, inv, err := columnStats(rows, g.cfg.NumbFparam, protection)
		if err != nil {
			return fmt.Errorf("fparam: %w", err)
		}
		g.setVar(KeyFparamAvg, avg)
		g.setVar(KeyFparamInvStd, inv)
	}
	if g.cfg.NumbAparam > 0 {
		var rows []*tensor.RawTensor
		for i, s := range samples {
			if s.Aparam == nil {
				return fmt.Errorf("sample %d has no aparam", i)
			}
			rows = append(rows, s.Aparam)
		}
		avg, inv, err := columnStats(rows, g.cfg.NumbAparam, protection)
		if err != nil {
			return fmt.Errorf("aparam: %w", err)
		}
		g.setVar(KeyAparamAvg, avg)
		g.setVar(KeyAparamInvStd, inv)
	}
	logging.L().Info("fitting input statistics computed",
		logging.String("var_name", g.cfg.VarName),
		logging.Int("samples", len(samples)))
	return nil
}

// columnStats treats every array as rows of width n and returns the
// column means and inverse standard deviations.
func columnStats(arrays []*tensor.RawTensor, n int, protection float64) (*tensor.RawTensor, *tensor.RawTensor, error) {
	sum := make([]float64, n)
	sq := make([]float64, n)
	count := 0
	for _, a := range arrays {
		if a.NumElements()%n != 0 || a.Dim(-1) != n {
			return nil, nil, fmt.Errorf("%w: trailing dimension %d, want %d", tensor.ErrShapeMismatch, a.Dim(-1), n)
		}
		d := a.Data()
		for r := 0; r < len(d)/n; r++ {
			for c := 0; c < n; c++ {
				v := d[r*n+c]
				sum[c] += v
				sq[c] += v * v
			}
			count++
		}
	}
	if count == 0 {
		return nil, nil, fmt.Errorf("no rows to compute statistics from")
	}
	avg := tensor.Zeros(n)
	inv := tensor.Zeros(n)
	for c := 0; c < n; c++ {
		m := sum[c] / float64(count)
		std := math.Sqrt(math.Max(sq[c]/float64(count)-m*m, 0))
		if std < protection {
			std = protection
		}
		avg.Data()[c] = m
		inv.Data()[c] = 1 / std
	}
	return avg, inv, nil
}

// validate checks the input shapes and returns nf and nloc.
func (g *general) validate(in Input) (nf, nloc int, err error) {
	if in.Descriptor == nil || in.Descriptor.Ndim() != 3 {
		return 0, 0, invalid("input descriptor", "want [nf, nloc, %d]", g.cfg.DimDescrpt)
	}
	nf, nloc = in.Descriptor.Dim(0), in.Descriptor.Dim(1)
	if nd := in.Descriptor.Dim(2); nd != g.cfg.DimDescrpt {
		return 0, 0, invalid("input descriptor", "get an input descriptor of dim %d, which is not consistent with %d", nd, g.cfg.DimDescrpt)
	}
	if in.Atype == nil || !in.Atype.Shape().Equal(tensor.Shape{nf, nloc}) {
		return 0, 0, invalid("input atype", "want shape [%d, %d]", nf, nloc)
	}
	if nfp := g.cfg.NumbFparam; nfp > 0 {
		if in.Fparam == nil {
			return 0, 0, invalid("input fparam", "fparam is required since numb_fparam is %d", nfp)
		}
		if in.Fparam.Dim(-1) != nfp || in.Fparam.NumElements() != nf*nfp {
			return 0, 0, invalid("input fparam", "get an input fparam of dim %d, which is not consistent with %d", in.Fparam.Dim(-1), nfp)
		}
	}
	if nap := g.cfg.NumbAparam; nap > 0 {
		if in.Aparam == nil {
			return 0, 0, invalid("input aparam", "aparam is required since numb_aparam is %d", nap)
		}
		if in.Aparam.Dim(-1) != nap || in.Aparam.NumElements() != nf*nloc*nap {
			return 0, 0, invalid("input aparam", "get an input aparam of dim %d, which is not consistent with %d", in.Aparam.Dim(-1), nap)
		}
	}
	return nf, nloc, nil
}

// normalized returns (x - avg) * invStd as [rows, n].
func (g *general) normalized(x *tensor.RawTensor, rows, n int, avgKey, invKey string) *tensor.RawTensor {
	b := g.backend
	x = b.Reshape(x, tensor.Shape{rows, n})
	avg := b.Reshape(g.vars[avgKey], tensor.Shape{1, n})
	inv := b.Reshape(g.vars[invKey], tensor.Shape{1, n})
	return b.Mul(b.Sub(x, avg), inv)
}

// compute runs the networks and returns [nf*nloc, net_out] with the bias
// added and excluded atoms zeroed.
func (g *general) compute(in Input, nf, nloc int) *tensor.RawTensor {
	b := g.backend
	nfl := nf * nloc
	xx := b.Reshape(in.Descriptor, tensor.Shape{nfl, g.cfg.DimDescrpt})
	if nfp := g.cfg.NumbFparam; nfp > 0 {
		fp := g.normalized(in.Fparam, nf, nfp, KeyFparamAvg, KeyFparamInvStd)
		tiled := b.Add(b.Reshape(fp, tensor.Shape{nf, 1, nfp}), tensor.Zeros(nf, nloc, nfp))
		xx = b.Concat([]*tensor.RawTensor{xx, b.Reshape(tiled, tensor.Shape{nfl, nfp})}, 1)
	}
	if nap := g.cfg.NumbAparam; nap > 0 && !g.cfg.UseAparamAsMask {
		ap := g.normalized(in.Aparam, nfl, nap, KeyAparamAvg, KeyAparamInvStd)
		xx = b.Concat([]*tensor.RawTensor{xx, ap}, 1)
	}

	atype := in.Atype.Data()
	var out *tensor.RawTensor
	if g.cfg.MixedTypes {
		out = g.nets.At(0).Forward(xx)
	} else {
		for t := 0; t < g.cfg.Ntypes; t++ {
			mask := tensor.Zeros(nfl, 1)
			found := false
			for i, at := range atype {
				if at == t {
					mask.Data()[i] = 1
					found = true
				}
			}
			if !found {
				continue
			}
			part := b.Mul(g.nets.At(t).Forward(xx), mask)
			if out == nil {
				out = part
			} else {
				out = b.Add(out, part)
			}
		}
		if out == nil {
			out = tensor.Zeros(nfl, g.cfg.NetOut)
		}
	}

	// bias rows, zero for virtual atoms
	bias := g.vars[KeyBiasAtomE].Data()
	rows := tensor.Zeros(nfl, g.cfg.NetOut)
	for i, at := range atype {
		if at >= 0 && at < g.cfg.Ntypes {
			copy(rows.Data()[i*g.cfg.NetOut:(i+1)*g.cfg.NetOut], bias[at*g.cfg.NetOut:(at+1)*g.cfg.NetOut])
		}
	}
	out = b.Add(out, rows)

	if !g.emask.Empty() {
		keep := tensor.Zeros(nfl, 1)
		for i, m := range g.emask.Build(in.Atype).Data() {
			keep.Data()[i] = float64(m)
		}
		out = b.Mul(out, keep)
	}
	return out
}

// serializeCommon returns the payload fields shared by every variant.
func (g *general) serializeCommon(version int) serialization.Dict {
	vars := serialization.Dict{}
	for _, k := range variableKeys {
		vars[k] = g.vars[k].Clone()
	}
	var seed any
	if g.cfg.Seed != nil {
		seed = int(*g.cfg.Seed)
	}
	var typeMap any
	if g.cfg.TypeMap != nil {
		typeMap = append([]string(nil), g.cfg.TypeMap...)
	}
	return serialization.Dict{
		serialization.KeyClass:     fittingClass,
		serialization.KeyType:      g.typ,
		serialization.KeyVersion:   version,
		"var_name":                 g.cfg.VarName,
		"ntypes":                   g.cfg.Ntypes,
		"dim_descrpt":              g.cfg.DimDescrpt,
		"neuron":                   append([]int(nil), g.cfg.Neuron...),
		"resnet_dt":                g.cfg.ResnetDt,
		"numb_fparam":              g.cfg.NumbFparam,
		"numb_aparam":              g.cfg.NumbAparam,
		"dim_out":                  g.cfg.NetOut,
		"mixed_types":              g.cfg.MixedTypes,
		"exclude_types":            g.emask.ExcludeTypes(),
		"activation_function":      g.cfg.Activation,
		"precision":                "float64",
		"trainable":                g.cfg.Trainable,
		"use_aparam_as_mask":       g.cfg.UseAparamAsMask,
		"seed":                     seed,
		"type_map":                 typeMap,
		"nets":                     g.nets.Serialize(),
		serialization.KeyVariables: vars,
	}
}

// deserializeGeneral restores the shared state of a payload.
func deserializeGeneral(b tensor.Backend, d serialization.Dict, typ string, maxVersion int, cfg config) (*general, error) {
	if err := serialization.CheckVersion(d, maxVersion, 1); err != nil {
		return nil, err
	}
	if err := serialization.CheckClass(d, fittingClass); err != nil {
		return nil, err
	}
	g := &general{typ: typ, cfg: cfg, backend: b, vars: make(map[string]*tensor.RawTensor)}
	if err := g.reinitExclude(); err != nil {
		return nil, err
	}
	netsD, err := d.Dict("nets")
	if err != nil {
		return nil, err
	}
	nets, err := nn.DeserializeNetworkCollection(b, g.netsName(), netsD)
	if err != nil {
		return nil, fmt.Errorf("nets: %w", err)
	}
	if nets.Ndim() != cfg.ndim() || nets.Ntypes() != cfg.Ntypes {
		return nil, fmt.Errorf("%w: nets hold ndim %d over %d types, want ndim %d over %d",
			serialization.ErrTypeMismatch, nets.Ndim(), nets.Ntypes(), cfg.ndim(), cfg.Ntypes)
	}
	g.nets = nets
	vars, err := d.Variables()
	if err != nil {
		return nil, err
	}
	for _, k := range variableKeys {
		v, err := vars.Array(k)
		if err != nil {
			return nil, err
		}
		if err := g.assign(k, v); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// ChangeTypeMap remaps bias rows, per-type networks and exclusions onto
// typeMap. Biases of new types come from donor when it knows the type,
// else they are zero.
func (g *general) ChangeTypeMap(typeMap []string, donor Fitting) error {
	if g.cfg.TypeMap == nil {
		return fmt.Errorf("%w: type map change needs a type_map", ErrNotSupported)
	}
	index := make(map[string]int, len(g.cfg.TypeMap))
	for i, name := range g.cfg.TypeMap {
		index[name] = i
	}
	donorIndex := map[string]int{}
	var donorBias []float64
	if donor != nil {
		for i, name := range donor.GetTypeMap() {
			donorIndex[name] = i
		}
		if v, err := donor.Get(KeyBiasAtomE); err == nil && v.Dim(-1) == g.cfg.NetOut {
			donorBias = v.Data()
		}
	}

	nt, width := len(typeMap), g.cfg.NetOut
	mapping := make([]int, nt)
	oldBias := g.vars[KeyBiasAtomE].Data()
	bias := tensor.Zeros(nt, width)
	for i, name := range typeMap {
		mapping[i] = -1
		if o, ok := index[name]; ok {
			mapping[i] = o
			copy(bias.Data()[i*width:(i+1)*width], oldBias[o*width:(o+1)*width])
		} else if o, ok := donorIndex[name]; ok && donorBias != nil {
			copy(bias.Data()[i*width:(i+1)*width], donorBias[o*width:(o+1)*width])
		}
	}

	cfg := g.cfg
	cfg.Ntypes = nt
	cfg.TypeMap = append([]string(nil), typeMap...)
	fresh := *g
	fresh.cfg = cfg
	// a shared network (ndim 0) is carried over as is; the collection
	// still has to be rebuilt over the new type count
	nets, err := g.nets.Remap(mapping, func(types []int) (nn.Network, error) {
		return fresh.freshNet(types[0])
	})
	if err != nil {
		return err
	}

	g.cfg = cfg
	g.nets = nets
	g.emask = g.emask.Remap(mapping)
	g.cfg.ExcludeTypes = g.emask.ExcludeTypes()
	g.setVar(KeyBiasAtomE, bias)
	return nil
}
