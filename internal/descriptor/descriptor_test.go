package descriptor_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yi-FanLi/deepmd-kit/internal/autodiff"
	"github.com/Yi-FanLi/deepmd-kit/internal/backend/cpu"
	"github.com/Yi-FanLi/deepmd-kit/internal/data"
	"github.com/Yi-FanLi/deepmd-kit/internal/descriptor"
	"github.com/Yi-FanLi/deepmd-kit/internal/dpath"
	"github.com/Yi-FanLi/deepmd-kit/internal/nlist"
	"github.com/Yi-FanLi/deepmd-kit/internal/plugin"
	"github.com/Yi-FanLi/deepmd-kit/internal/serialization"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// fourAtoms is an open-boundary frame with two oxygens and two hydrogens.
func fourAtoms() (*tensor.RawTensor, *tensor.IntTensor) {
	coord := tensor.MustFromSlice([]float64{
		0, 0, 0,
		1.1, 0.2, 0,
		-0.3, 1.0, 0.4,
		0.5, -0.6, 1.2,
	}, 1, 12)
	atype := tensor.MustInt([]int{0, 1, 1, 0}, 1, 4)
	return coord, atype
}

func buildNlist(t *testing.T, d descriptor.Descriptor) *tensor.IntTensor {
	t.Helper()
	coord, atype := fourAtoms()
	nl, err := nlist.NewBuilder(d.GetRcut(), d.GetSel(), !d.MixedTypes()).Build(coord, atype, 4)
	require.NoError(t, err)
	return nl
}

func config(typ string) serialization.Dict {
	cfg := serialization.Dict{
		"type":      typ,
		"rcut":      4.0,
		"rcut_smth": 0.5,
		"sel":       []int{3, 3},
		"neuron":    []int{4, 8},
		"seed":      1,
		"type_map":  []string{"O", "H"},
	}
	if typ == descriptor.TypeSeA {
		cfg["axis_neuron"] = 4
	}
	return cfg
}

func sampler(calls *int) data.Sampler {
	coord, atype := fourAtoms()
	return func() ([]data.Sample, error) {
		if calls != nil {
			*calls++
		}
		return []data.Sample{{Coord: coord, Atype: atype}}, nil
	}
}

func newWithStats(t *testing.T, b tensor.Backend, typ string) descriptor.Descriptor {
	t.Helper()
	d, err := descriptor.New(b, config(typ))
	require.NoError(t, err)
	require.NoError(t, d.ComputeInputStats(sampler(nil), nil))
	return d
}

func forward(t *testing.T, d descriptor.Descriptor) *descriptor.Output {
	t.Helper()
	coord, atype := fourAtoms()
	out, err := d.Forward(coord, atype, buildNlist(t, d), nil)
	require.NoError(t, err)
	return out
}

var allTypes = []string{descriptor.TypeSeA, descriptor.TypeSeR, descriptor.TypeSeT}

func TestRegistry(t *testing.T) {
	tags := descriptor.Types()
	for _, typ := range allTypes {
		assert.Contains(t, tags, typ)
	}
	for alias, want := range map[string]string{
		"se_a": descriptor.TypeSeA, "se_r": descriptor.TypeSeR,
		"se_at": descriptor.TypeSeT, "se_a_3be": descriptor.TypeSeT,
	} {
		cfg := config(want)
		cfg["type"] = alias
		d, err := descriptor.New(cpu.New(), cfg)
		require.NoError(t, err, alias)
		assert.Equal(t, want, d.Type())
	}

	_, err := descriptor.New(cpu.New(), serialization.Dict{"type": "se_atten_v9"})
	assert.ErrorIs(t, err, plugin.ErrPluginNotFound)
	var nf *plugin.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "descriptor", nf.Family)

	_, err = descriptor.New(cpu.New(), serialization.Dict{"rcut": 4.0})
	assert.ErrorIs(t, err, plugin.ErrMissingType)
}

func TestAccessors(t *testing.T) {
	d, err := descriptor.New(cpu.New(), config(descriptor.TypeSeA))
	require.NoError(t, err)
	assert.Equal(t, 4.0, d.GetRcut())
	assert.Equal(t, 0.5, d.GetRcutSmth())
	assert.Equal(t, []int{3, 3}, d.GetSel())
	assert.Equal(t, 6, d.GetNsel())
	assert.Equal(t, 6, d.GetNnei())
	assert.Equal(t, 2, d.GetNtypes())
	assert.Equal(t, []string{"O", "H"}, d.GetTypeMap())
	assert.Equal(t, 32, d.GetDimOut())
	assert.Equal(t, 8, d.GetDimEmb())
	assert.False(t, d.MixedTypes())
	assert.False(t, d.HasMessagePassing())
	assert.False(t, d.NeedSortedNlistForLower())
	assert.Equal(t, 0.0, d.GetEnvProtection())
}

func TestInvalidConfig(t *testing.T) {
	cfg := config(descriptor.TypeSeA)
	cfg["sel"] = "auto"
	_, err := descriptor.New(cpu.New(), cfg)
	assert.ErrorIs(t, err, descriptor.ErrInvalidConfig)

	cfg = config(descriptor.TypeSeA)
	cfg["rcut_smth"] = 5.0
	_, err = descriptor.New(cpu.New(), cfg)
	assert.ErrorIs(t, err, descriptor.ErrInvalidConfig)

	cfg = config(descriptor.TypeSeA)
	cfg["axis_neuron"] = 9
	_, err = descriptor.New(cpu.New(), cfg)
	assert.ErrorIs(t, err, descriptor.ErrInvalidConfig)

	cfg = config(descriptor.TypeSeR)
	cfg["type_one_side"] = false
	_, err = descriptor.New(cpu.New(), cfg)
	assert.ErrorIs(t, err, descriptor.ErrNotSupported)
}

func TestForward_StatisticsMissing(t *testing.T) {
	for _, typ := range allTypes {
		d, err := descriptor.New(cpu.New(), config(typ))
		require.NoError(t, err)
		coord, atype := fourAtoms()
		_, err = d.Forward(coord, atype, buildNlist(t, d), nil)
		assert.ErrorIs(t, err, descriptor.ErrStatisticsMissing, typ)
		_, _, err = d.GetStatMeanAndStddev()
		assert.ErrorIs(t, err, descriptor.ErrStatisticsMissing, typ)
	}
}

func TestForward_Shapes(t *testing.T) {
	for _, typ := range allTypes {
		d := newWithStats(t, cpu.New(), typ)
		out := forward(t, d)
		assert.Equal(t, tensor.Shape{1, 4, d.GetDimOut()}, out.Descriptor.Shape(), typ)
		assert.Equal(t, tensor.Shape{1, 4, d.GetNsel()}, out.Sw.Shape(), typ)
		for _, v := range out.Descriptor.Data() {
			require.False(t, math.IsNaN(v), typ)
		}
		if typ == descriptor.TypeSeA {
			require.NotNil(t, out.Rot)
			assert.Equal(t, tensor.Shape{1, 4, 8, 3}, out.Rot.Shape())
		} else {
			assert.Nil(t, out.Rot)
		}
	}
}

func TestForward_NlistWidthMismatch(t *testing.T) {
	d := newWithStats(t, cpu.New(), descriptor.TypeSeA)
	coord, atype := fourAtoms()
	nl := tensor.FullInt(-1, 1, 4, 5)
	_, err := d.Forward(coord, atype, nl, nil)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestSeA_TypeOneSideFalse(t *testing.T) {
	cfg := config(descriptor.TypeSeA)
	cfg["type_one_side"] = false
	d, err := descriptor.New(cpu.New(), cfg)
	require.NoError(t, err)
	require.NoError(t, d.ComputeInputStats(sampler(nil), nil))
	out := forward(t, d)
	assert.Equal(t, tensor.Shape{1, 4, 32}, out.Descriptor.Shape())

	payload, err := d.Serialize()
	require.NoError(t, err)
	emb, err := payload.Dict("embeddings")
	require.NoError(t, err)
	assert.Equal(t, 2, emb["ndim"])
}

func TestForward_PermutationInvariant(t *testing.T) {
	// swapping the two hydrogens swaps their descriptor rows
	d := newWithStats(t, cpu.New(), descriptor.TypeSeA)
	coord, atype := fourAtoms()
	out := forward(t, d)

	c := coord.Data()
	swapped := tensor.MustFromSlice(append(append(append(append([]float64{}, c[0:3]...), c[6:9]...), c[3:6]...), c[9:12]...), 1, 12)
	nl, err := nlist.NewBuilder(4, []int{3, 3}, true).Build(swapped, atype, 4)
	require.NoError(t, err)
	out2, err := d.Forward(swapped, atype, nl, nil)
	require.NoError(t, err)

	dim := d.GetDimOut()
	row := func(o *descriptor.Output, i int) []float64 { return o.Descriptor.Data()[i*dim : (i+1)*dim] }
	assert.InDeltaSlice(t, row(out, 1), row(out2, 2), 1e-10)
	assert.InDeltaSlice(t, row(out, 0), row(out2, 0), 1e-10)
}

func TestSerialize_RoundTrip(t *testing.T) {
	for _, typ := range allTypes {
		d := newWithStats(t, cpu.New(), typ)
		payload, err := d.Serialize()
		require.NoError(t, err)
		assert.Equal(t, "Descriptor", payload[serialization.KeyClass])
		assert.Equal(t, typ, payload[serialization.KeyType])
		assert.Equal(t, 2, payload[serialization.KeyVersion])

		back, err := descriptor.Deserialize(cpu.New(), payload)
		require.NoError(t, err, typ)
		assert.Equal(t, d.GetSel(), back.GetSel())
		assert.Equal(t, d.Hash(), back.Hash())

		again, err := back.Serialize()
		require.NoError(t, err)
		assert.Equal(t, payload["sel"], again["sel"])
		assert.Equal(t, payload["neuron"], again["neuron"])

		want, got := forward(t, d), forward(t, back)
		assert.True(t, want.Descriptor.AllClose(got.Descriptor, 0, 1e-12), typ)
	}
}

func TestDeserialize_Errors(t *testing.T) {
	d := newWithStats(t, cpu.New(), descriptor.TypeSeA)
	payload, err := d.Serialize()
	require.NoError(t, err)

	wrong := payload.Clone()
	wrong[serialization.KeyVersion] = 3
	_, err = descriptor.Deserialize(cpu.New(), wrong)
	assert.ErrorIs(t, err, serialization.ErrIncompatibleVersion)

	wrong = payload.Clone()
	wrong[serialization.KeyClass] = "Fitting"
	_, err = descriptor.Deserialize(cpu.New(), wrong)
	assert.ErrorIs(t, err, serialization.ErrClassMismatch)
}

func TestCrossBackend(t *testing.T) {
	for _, typ := range allTypes {
		d := newWithStats(t, cpu.New(), typ)
		payload, err := d.Serialize()
		require.NoError(t, err)

		ad := autodiff.New(cpu.New())
		other, err := descriptor.Deserialize(ad, payload)
		require.NoError(t, err)
		want, got := forward(t, d), forward(t, other)
		assert.True(t, want.Descriptor.AllClose(got.Descriptor, 0, 1e-12), typ)
	}
}

func TestGradient_FiniteDifference(t *testing.T) {
	base := newWithStats(t, cpu.New(), descriptor.TypeSeA)
	payload, err := base.Serialize()
	require.NoError(t, err)

	ad := autodiff.New(cpu.New())
	ad.Tape().StartRecording()
	d, err := descriptor.Deserialize(ad, payload)
	require.NoError(t, err)
	out := forward(t, d)
	n := out.Descriptor.NumElements()
	y := ad.SumDim(ad.Reshape(out.Descriptor, tensor.Shape{1, n}), 1, false)

	const name = "descriptor.embeddings.networks.1.layers.0.w"
	grads := ad.Gradients(y)
	require.Contains(t, grads, name)

	total := func() float64 {
		s := 0.0
		for _, v := range forward(t, base).Descriptor.Data() {
			s += v
		}
		return s
	}
	var w []float64
	for _, p := range base.Parameters() {
		if p.Name() == name {
			w = p.Tensor().Data()
		}
	}
	require.NotNil(t, w)
	const h = 1e-6
	for i := range w {
		orig := w[i]
		w[i] = orig + h
		plus := total()
		w[i] = orig - h
		minus := total()
		w[i] = orig
		assert.InDelta(t, (plus-minus)/(2*h), grads[name].Data()[i], 1e-6, "w[%d]", i)
	}
}

func TestComputeInputStats_Cache(t *testing.T) {
	root := dpath.New(t.TempDir(), dpath.ReadWrite)
	calls := 0
	d1, err := descriptor.New(cpu.New(), config(descriptor.TypeSeA))
	require.NoError(t, err)
	require.NoError(t, d1.ComputeInputStats(sampler(&calls), root))
	assert.Equal(t, 1, calls)
	assert.True(t, root.Join(d1.Hash()).IsDir())

	d2, err := descriptor.New(cpu.New(), config(descriptor.TypeSeA))
	require.NoError(t, err)
	require.NoError(t, d2.ComputeInputStats(sampler(&calls), root))
	assert.Equal(t, 1, calls)

	m1, s1, err := d1.GetStatMeanAndStddev()
	require.NoError(t, err)
	m2, s2, err := d2.GetStatMeanAndStddev()
	require.NoError(t, err)
	assert.True(t, m1.Equal(m2))
	assert.True(t, s1.Equal(s2))

	stats, err := d2.GetStats()
	require.NoError(t, err)
	assert.Contains(t, stats, "r_0")
	assert.Contains(t, stats, "a_1")
}

func TestSetStatMeanAndStddev(t *testing.T) {
	d, err := descriptor.New(cpu.New(), config(descriptor.TypeSeR))
	require.NoError(t, err)
	err = d.SetStatMeanAndStddev(tensor.Zeros(2, 6, 4), tensor.Full(1, 2, 6, 4))
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)

	mean := tensor.Full(0.2, 2, 6, 1)
	require.NoError(t, d.SetStatMeanAndStddev(mean, tensor.Full(0.5, 2, 6, 1)))
	mean.Data()[0] = 9
	got, _, err := d.GetStatMeanAndStddev()
	require.NoError(t, err)
	assert.Equal(t, 0.2, got.Data()[0])

	_, err = d.GetStats()
	assert.ErrorIs(t, err, descriptor.ErrStatisticsMissing)
}

func TestExcludeTypes(t *testing.T) {
	cfg := config(descriptor.TypeSeA)
	cfg["exclude_types"] = [][]int{{0, 1}}
	d, err := descriptor.New(cpu.New(), cfg)
	require.NoError(t, err)
	require.NoError(t, d.ComputeInputStats(sampler(nil), nil))
	full := newWithStats(t, cpu.New(), descriptor.TypeSeA)
	assert.NotEqual(t, full.Hash(), d.Hash())
	assert.False(t, forward(t, d).Descriptor.AllClose(forward(t, full).Descriptor, 0, 1e-8))

	payload, err := d.Serialize()
	require.NoError(t, err)
	assert.Equal(t, []any{[]int{0, 1}}, payload["exclude_types"])
}

func TestEnableCompression(t *testing.T) {
	ext, s1, s2, freq := descriptor.DefaultCompression()
	for _, typ := range allTypes {
		d, err := descriptor.New(cpu.New(), config(typ))
		require.NoError(t, err)
		assert.ErrorIs(t, d.EnableCompression(1.0, ext, s1, s2, freq), descriptor.ErrStatisticsMissing)

		require.NoError(t, d.ComputeInputStats(sampler(nil), nil))
		payload, err := d.Serialize()
		require.NoError(t, err)
		ref, err := descriptor.Deserialize(cpu.New(), payload)
		require.NoError(t, err)

		require.NoError(t, d.EnableCompression(1.0, ext, s1, s2, freq), typ)
		assert.ErrorIs(t, d.EnableCompression(1.0, ext, s1, s2, freq), descriptor.ErrCompressed)

		want, got := forward(t, ref), forward(t, d)
		assert.True(t, want.Descriptor.AllClose(got.Descriptor, 0, 1e-6), typ)
	}
}

func TestChangeTypeMap(t *testing.T) {
	d := newWithStats(t, cpu.New(), descriptor.TypeSeA)
	before := forward(t, d)
	require.NoError(t, d.ChangeTypeMap([]string{"O", "H"}, nil))
	assert.True(t, before.Descriptor.AllClose(forward(t, d).Descriptor, 0, 1e-12))

	// reversing the type map and the atom types gives the same descriptor
	require.NoError(t, d.ChangeTypeMap([]string{"H", "O"}, nil))
	assert.Equal(t, []string{"H", "O"}, d.GetTypeMap())
	coord, _ := fourAtoms()
	flipped := tensor.MustInt([]int{1, 0, 0, 1}, 1, 4)
	nl, err := nlist.NewBuilder(4, d.GetSel(), true).Build(coord, flipped, 4)
	require.NoError(t, err)
	out, err := d.Forward(coord, flipped, nl, nil)
	require.NoError(t, err)
	assert.True(t, before.Descriptor.AllClose(out.Descriptor, 0, 1e-12))

	// a new type gets max(sel) and identity statistics
	require.NoError(t, d.ChangeTypeMap([]string{"H", "O", "C"}, nil))
	assert.Equal(t, []int{3, 3, 3}, d.GetSel())
	mean, std, err := d.GetStatMeanAndStddev()
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 9, 4}, mean.Shape())
	assert.Equal(t, 0.0, mean.At(2, 0, 0))
	assert.Equal(t, 1.0, std.At(2, 0, 0))
	stats, err := d.GetStats()
	require.NoError(t, err)
	assert.NotContains(t, stats, "r_2")
	assert.Contains(t, stats, "r_1")
}

func TestChangeTypeMap_Donor(t *testing.T) {
	d := newWithStats(t, cpu.New(), descriptor.TypeSeA)
	cfg := config(descriptor.TypeSeA)
	cfg["type_map"] = []string{"O", "C"}
	cfg["sel"] = []int{3, 5}
	donor, err := descriptor.New(cpu.New(), cfg)
	require.NoError(t, err)
	require.NoError(t, donor.SetStatMeanAndStddev(tensor.Full(0.3, 2, 8, 4), tensor.Full(0.7, 2, 8, 4)))

	require.NoError(t, d.ChangeTypeMap([]string{"O", "H", "C"}, donor))
	assert.Equal(t, []int{3, 3, 5}, d.GetSel())
	mean, std, err := d.GetStatMeanAndStddev()
	require.NoError(t, err)
	assert.Equal(t, 0.3, mean.At(2, 0, 0))
	assert.Equal(t, 0.7, std.At(2, 0, 1))
}

func TestChangeTypeMap_NeedsTypeMap(t *testing.T) {
	cfg := config(descriptor.TypeSeR)
	delete(cfg, "type_map")
	d, err := descriptor.New(cpu.New(), cfg)
	require.NoError(t, err)
	assert.ErrorIs(t, d.ChangeTypeMap([]string{"O"}, nil), descriptor.ErrNotSupported)
}

func TestShareParams(t *testing.T) {
	base := newWithStats(t, cpu.New(), descriptor.TypeSeA)
	other := newWithStats(t, cpu.New(), descriptor.TypeSeA)
	baseStats, err := base.GetStats()
	require.NoError(t, err)

	require.NoError(t, other.ShareParams(base, 0, false))
	merged, err := base.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 2*baseStats["r_0"].Number, merged["r_0"].Number)

	m1, s1, err := base.GetStatMeanAndStddev()
	require.NoError(t, err)
	m2, s2, err := other.GetStatMeanAndStddev()
	require.NoError(t, err)
	assert.True(t, m1.Equal(m2))
	assert.True(t, s1.Equal(s2))
	assert.True(t, forward(t, base).Descriptor.Equal(forward(t, other).Descriptor))

	assert.ErrorIs(t, other.ShareParams(base, 1, false), descriptor.ErrNotSupported)
	seR := newWithStats(t, cpu.New(), descriptor.TypeSeR)
	assert.ErrorIs(t, seR.ShareParams(base, 0, true), descriptor.ErrNotSupported)
}

func TestUpdateSel(t *testing.T) {
	sys, err := data.NewMemorySystem([]int{0, 1, 1}, []data.Frame{
		{Coord: []float64{0, 0, 0, 1, 0, 0, 0, 1.5, 0}, Box: []float64{20, 0, 0, 0, 20, 0, 0, 0, 20}},
		{Coord: []float64{0, 0, 0, 0.8, 0, 0, 5, 5, 5}, Box: []float64{20, 0, 0, 0, 20, 0, 0, 0, 20}},
	}, false)
	require.NoError(t, err)
	ds, err := data.NewMemoryDataSystem([]string{"O", "H"}, sys)
	require.NoError(t, err)

	local := map[string]any{"type": "se_e2_a", "rcut": 3.0, "rcut_smth": 0.5, "sel": "auto"}
	out, minDist, err := descriptor.UpdateSel(ds, nil, local)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, minDist, 1e-12)
	assert.Equal(t, []int{4, 4}, out["sel"])
	assert.Equal(t, "auto", local["sel"])

	local["sel"] = "auto:3"
	out, _, err = descriptor.UpdateSel(ds, nil, local)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 8}, out["sel"])

	local["sel"] = []int{1, 1}
	out, _, err = descriptor.UpdateSel(ds, nil, local)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1}, out["sel"])

	local["sel"] = "automatic"
	_, _, err = descriptor.UpdateSel(ds, nil, local)
	assert.ErrorIs(t, err, descriptor.ErrInvalidConfig)
}

func TestBaseDefaults(t *testing.T) {
	var b descriptor.Base
	assert.ErrorIs(t, b.ComputeInputStats(sampler(nil), nil), descriptor.ErrStatsNotSupported)
	_, err := b.GetStats()
	assert.ErrorIs(t, err, descriptor.ErrStatsNotSupported)
	assert.ErrorIs(t, b.EnableCompression(1, 5, 0.01, 0.1, -1), descriptor.ErrCompressionNotSupported)
	assert.ErrorIs(t, b.ShareParams(nil, 0, false), descriptor.ErrNotSupported)
	assert.ErrorIs(t, b.ChangeTypeMap([]string{"O"}, nil), descriptor.ErrNotSupported)
	assert.False(t, b.HasMessagePassing())
	assert.False(t, b.NeedSortedNlistForLower())

	descriptor.Register("test_minimal", descriptor.Plugin{
		New: func(b tensor.Backend, cfg serialization.Dict) (descriptor.Descriptor, error) {
			return descriptor.NewSeR(b, cfg)
		},
	})
	cfg := config(descriptor.TypeSeR)
	cfg["type"] = "test_minimal"
	d, err := descriptor.New(cpu.New(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &descriptor.SeR{}, d)
	_, err = descriptor.Deserialize(cpu.New(), serialization.Dict{"type": "test_minimal"})
	assert.ErrorIs(t, err, descriptor.ErrNotSupported)
	out, _, err := descriptor.UpdateSel(nil, nil, map[string]any{"type": "test_minimal", "sel": "auto"})
	require.NoError(t, err)
	assert.Equal(t, "auto", out["sel"])
}
