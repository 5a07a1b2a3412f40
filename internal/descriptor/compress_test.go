package descriptor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

func sinDerivs(xs []float64) (y, dy, d2y *tensor.RawTensor, err error) {
	n := len(xs)
	y, dy, d2y = tensor.Zeros(n, 2), tensor.Zeros(n, 2), tensor.Zeros(n, 2)
	for i, x := range xs {
		y.Set(math.Sin(x), i, 0)
		dy.Set(math.Cos(x), i, 0)
		d2y.Set(-math.Sin(x), i, 0)
		y.Set(x*x, i, 1)
		dy.Set(2*x, i, 1)
		d2y.Set(2, i, 1)
	}
	return y, dy, d2y, nil
}

func TestHermite_ReproducesQuintic(t *testing.T) {
	f := func(x float64) float64 { return 1 - 2*x + 0.5*x*x*x - 3*x*x*x*x*x }
	df := func(x float64) float64 { return -2 + 1.5*x*x - 15*x*x*x*x }
	d2f := func(x float64) float64 { return 3*x - 60*x*x*x }
	c := make([]float64, 6)
	const h = 0.7
	hermite(c, h, f(0), f(h), df(0), df(h), d2f(0), d2f(h))
	assert.InDeltaSlice(t, []float64{1, -2, 0, 0.5, 0, -3}, c, 1e-10)
}

func TestTable_Eval(t *testing.T) {
	tab, err := buildTable(sinDerivs, 2, -1, 2, 3, 0.01, 0.1)
	require.NoError(t, err)
	assert.Equal(t, 300, tab.n1)
	assert.Equal(t, 40, tab.n2)
	assert.InDelta(t, 6.0, tab.max, 1e-9)

	xs := []float64{-0.987, 0, 0.3333, 1.999, 2.05, 4.321}
	out := tab.eval(xs)
	for i, x := range xs {
		assert.InDelta(t, math.Sin(x), out.At(i, 0), 1e-9, "x=%g", x)
		assert.InDelta(t, x*x, out.At(i, 1), 1e-9, "x=%g", x)
	}

	// clamped outside [lower, max]
	out = tab.eval([]float64{-5, 100})
	assert.InDelta(t, math.Sin(-1), out.At(0, 0), 1e-9)
	assert.InDelta(t, 36.0, out.At(1, 1), 1e-9)
}

func TestTable_Locate(t *testing.T) {
	tab := &table{lower: 0, upper: 1, max: 2, stride1: 0.25, stride2: 0.5, n1: 4, n2: 2}
	seg, dx := tab.locate(0.6)
	assert.Equal(t, 2, seg)
	assert.InDelta(t, 0.1, dx, 1e-12)
	seg, dx = tab.locate(1.7)
	assert.Equal(t, 5, seg)
	assert.InDelta(t, 0.2, dx, 1e-12)
	seg, dx = tab.locate(-1)
	assert.Equal(t, 0, seg)
	assert.Equal(t, 0.0, dx)
	seg, dx = tab.locate(3)
	assert.Equal(t, 5, seg)
	assert.Equal(t, 0.5, dx)
}

func TestParseAutoSel(t *testing.T) {
	r, auto, err := parseAutoSel("auto")
	require.NoError(t, err)
	assert.True(t, auto)
	assert.Equal(t, 1.1, r)

	r, auto, err = parseAutoSel("auto:1.5")
	require.NoError(t, err)
	assert.True(t, auto)
	assert.Equal(t, 1.5, r)

	_, auto, err = parseAutoSel([]int{4})
	require.NoError(t, err)
	assert.False(t, auto)

	_, _, err = parseAutoSel("auto:-1")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestWrapUp4(t *testing.T) {
	for in, want := range map[int]int{0: 0, 1: 4, 4: 4, 5: 8, 46: 48} {
		assert.Equal(t, want, wrapUp4(in))
	}
}
