package env

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yi-FanLi/deepmd-kit/internal/data"
	"github.com/Yi-FanLi/deepmd-kit/internal/dpath"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

func TestSmoothWeight(t *testing.T) {
	assert.Equal(t, 1.0, SmoothWeight(0.3, 0.5, 4))
	assert.Equal(t, 0.0, SmoothWeight(4.2, 0.5, 4))
	assert.InDelta(t, 0.5, SmoothWeight(2.25, 0.5, 4), 1e-12)

	// continuous first derivative at both ends
	const h = 1e-6
	assert.InDelta(t, 0, (SmoothWeight(0.5+h, 0.5, 4)-1)/h, 1e-4)
	assert.InDelta(t, 0, SmoothWeight(4-h, 0.5, 4)/h, 1e-4)
}

func pairSystem() (*tensor.RawTensor, *tensor.IntTensor, *tensor.IntTensor) {
	coord := tensor.MustFromSlice([]float64{0, 0, 0, 3, 0, 0, 0, 4, 0}, 1, 9)
	atype := tensor.MustInt([]int{0, 1, 1}, 1, 3)
	nl := tensor.MustInt([]int{
		1, 2, -1,
		0, 2, -1,
		0, 1, -1,
	}, 1, 3, 3)
	return coord, atype, nl
}

func TestEnvMat_Compute(t *testing.T) {
	coord, atype, nl := pairSystem()
	em := EnvMat{Rcut: 6, RcutSmth: 5}
	res, err := em.Compute(coord, atype, nl, nil, nil, false)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 3, 3, 4}, res.Env.Shape())

	// atom 0, neighbor 1 at distance 3 along x, full weight
	assert.InDeltaSlice(t, []float64{1.0 / 3, 1.0 / 3, 0, 0}, res.Env.Data()[0:4], 1e-12)
	// atom 0, neighbor 2 at distance 4 along y
	assert.InDeltaSlice(t, []float64{0.25, 0, 0.25, 0}, res.Env.Data()[4:8], 1e-12)
	// empty slot
	assert.Equal(t, []float64{0, 0, 0, 0}, res.Env.Data()[8:12])
	assert.Equal(t, []float64{1, 1, 0}, res.Sw.Data()[0:3])
	assert.Equal(t, []float64{3, 0, 0}, res.Diff.Data()[0:3])

	// atom 1 to atom 2 is 5 apart: at rcut_smth the weight is still one
	assert.InDelta(t, 0.2, res.Env.Data()[16], 1e-12)
}

func TestEnvMat_Normalization(t *testing.T) {
	coord, atype, nl := pairSystem()
	em := EnvMat{Rcut: 6, RcutSmth: 5}
	davg := tensor.Full(0.1, 2, 3, 1)
	dstd := tensor.Full(2, 2, 3, 1)
	res, err := em.Compute(coord, atype, nl, davg, dstd, true)
	require.NoError(t, err)
	assert.InDelta(t, (1.0/3-0.1)/2, res.Env.Data()[0], 1e-12)
	// empty slots are normalized too
	assert.InDelta(t, -0.05, res.Env.Data()[2], 1e-12)

	_, err = em.Compute(coord, atype, nl, tensor.Full(0, 2, 3, 4), tensor.Full(1, 2, 3, 4), true)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestEnvMat_Protection(t *testing.T) {
	coord := tensor.MustFromSlice([]float64{0, 0, 0, 0, 0, 0}, 1, 6)
	atype := tensor.MustInt([]int{0, 0}, 1, 2)
	nl := tensor.MustInt([]int{1, 0}, 1, 2, 1)
	res, err := EnvMat{Rcut: 6, RcutSmth: 5, Protection: 1e-2}.Compute(coord, atype, nl, nil, nil, false)
	require.NoError(t, err)
	for _, v := range res.Env.Data() {
		assert.False(t, math.IsInf(v, 0) || math.IsNaN(v))
	}
	assert.InDelta(t, 100, res.Env.Data()[0], 1e-9)
}

func TestPairExcludeMask(t *testing.T) {
	_, atype, nl := pairSystem()
	m, err := NewPairExcludeMask(2, [][2]int{{0, 1}, {1, 0}})
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{0, 1}}, m.ExcludeTypes())
	assert.True(t, m.Excluded(1, 0))

	mask, err := m.Build(nl, atype)
	require.NoError(t, err)
	assert.Equal(t, []int{
		0, 0, 1,
		0, 1, 1,
		0, 1, 1,
	}, mask.Data())

	_, err = NewPairExcludeMask(2, [][2]int{{0, 2}})
	assert.Error(t, err)
}

func TestPairExcludeMask_Remap(t *testing.T) {
	m, err := NewPairExcludeMask(3, [][2]int{{0, 2}, {1, 1}})
	require.NoError(t, err)
	// new order: old 2, new type, old 0
	r := m.Remap([]int{2, -1, 0})
	assert.Equal(t, 3, r.Ntypes())
	assert.Equal(t, [][2]int{{2, 0}}, r.ExcludeTypes())
	assert.True(t, r.Excluded(0, 2))
}

func TestAtomExcludeMask(t *testing.T) {
	m, err := NewAtomExcludeMask(3, []int{1, 1})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, m.ExcludeTypes())
	mask := m.Build(tensor.MustInt([]int{0, 1, 2, 1}, 2, 2))
	assert.Equal(t, []int{1, 0, 1, 0}, mask.Data())
	assert.Equal(t, tensor.Shape{2, 2}, mask.Shape())

	r := m.Remap([]int{1, 0})
	assert.Equal(t, []int{0}, r.ExcludeTypes())
}

func TestStatItem(t *testing.T) {
	var empty StatItem
	assert.Equal(t, 0.0, empty.ComputeAvg(0))
	assert.Equal(t, DefaultStd, empty.ComputeStd(DefaultStd, DefaultProtection))

	s := StatItem{Number: 4, Sum: 10, SquaredSum: 30}
	assert.InDelta(t, 2.5, s.ComputeAvg(0), 1e-12)
	assert.InDelta(t, math.Sqrt(1.25), s.ComputeStd(DefaultStd, DefaultProtection), 1e-12)

	flat := StatItem{Number: 2, Sum: 2, SquaredSum: 2}
	assert.Equal(t, DefaultProtection, flat.ComputeStd(DefaultStd, DefaultProtection))

	assert.Equal(t, StatItem{Number: 6, Sum: 12, SquaredSum: 32}, s.Add(flat))
}

func statSamples(t *testing.T) []data.Sample {
	t.Helper()
	sys, err := data.NewMemorySystem([]int{0, 1, 1}, []data.Frame{
		{Coord: []float64{0, 0, 0, 1, 0, 0, 0, 1.2, 0}},
		{Coord: []float64{0, 0, 0, 0.9, 0.3, 0, 0, 1.1, 0.2}},
	}, true)
	require.NoError(t, err)
	ds, err := data.NewMemoryDataSystem([]string{"O", "H"}, sys)
	require.NoError(t, err)
	samples, err := data.MakeStatInput(ds, 1, 2)
	require.NoError(t, err)
	return samples
}

func TestEnvMatStat_MeanStd(t *testing.T) {
	st := NewEnvMatStat(EnvMat{Rcut: 4, RcutSmth: 3}, 2, []int{2, 2}, false, nil)
	_, _, err := st.MeanStd(false)
	assert.ErrorIs(t, err, ErrNoStatistics)

	require.NoError(t, st.Compute(statSamples(t)))
	stats := st.Stats()
	require.Contains(t, stats, "r_0")
	require.Contains(t, stats, "a_1")
	// two frames, one type-0 atom, four slots each
	assert.Equal(t, 8.0, stats["r_0"].Number)
	assert.Equal(t, 24.0, stats["a_0"].Number)

	davg, dstd, err := st.MeanStd(false)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 4, 4}, davg.Shape())
	assert.InDelta(t, stats["r_1"].ComputeAvg(0), davg.At(1, 3, 0), 1e-12)
	assert.Equal(t, 0.0, davg.At(1, 3, 2))
	assert.Equal(t, dstd.At(0, 0, 1), dstd.At(0, 3, 3))

	zero, _, err := st.MeanStd(true)
	require.NoError(t, err)
	for _, v := range zero.Data() {
		assert.Equal(t, 0.0, v)
	}
}

func TestEnvMatStat_ExcludedPairsDoNotCount(t *testing.T) {
	excl, err := NewPairExcludeMask(2, [][2]int{{0, 1}})
	require.NoError(t, err)
	st := NewEnvMatStat(EnvMat{Rcut: 4, RcutSmth: 3}, 2, []int{2, 2}, true, excl)
	require.NoError(t, st.Compute(statSamples(t)))
	// type 0 only has type-1 neighbors, all excluded
	assert.Equal(t, 0.0, st.Stats()["r_0"].Sum)
	assert.NotContains(t, st.Stats(), "a_0")
}

type countingSampler struct {
	samples []data.Sample
	calls   int
}

func (c *countingSampler) sample() ([]data.Sample, error) {
	c.calls++
	return c.samples, nil
}

func TestEnvMatStat_LoadOrCompute_Cache(t *testing.T) {
	cache := dpath.New(t.TempDir(), dpath.ReadWrite).Join("se_e2_a")
	counter := &countingSampler{samples: statSamples(t)}

	first := NewEnvMatStat(EnvMat{Rcut: 4, RcutSmth: 3}, 2, []int{2, 2}, false, nil)
	require.NoError(t, first.LoadOrCompute(counter.sample, cache))
	assert.Equal(t, 1, counter.calls)
	assert.True(t, cache.Join("r_0").IsFile())

	second := NewEnvMatStat(EnvMat{Rcut: 4, RcutSmth: 3}, 2, []int{2, 2}, false, nil)
	require.NoError(t, second.LoadOrCompute(counter.sample, cache))
	assert.Equal(t, 1, counter.calls, "cache hit must not call the sampler")
	assert.Equal(t, first.Stats(), second.Stats())
}

func TestEnvMatStat_Merge(t *testing.T) {
	st := NewEnvMatStat(EnvMat{Rcut: 4, RcutSmth: 3}, 1, []int{1}, true, nil)
	st.SetStats(map[string]StatItem{"r_0": {Number: 1, Sum: 2, SquaredSum: 4}})
	st.Merge(map[string]StatItem{"r_0": {Number: 1, Sum: 4, SquaredSum: 16}})
	assert.Equal(t, StatItem{Number: 2, Sum: 6, SquaredSum: 20}, st.Stats()["r_0"])
}
