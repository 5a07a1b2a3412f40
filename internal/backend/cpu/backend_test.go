package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

func TestBinaryOpsBroadcast(t *testing.T) {
	b := New()
	x := tensor.MustFromSlice([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	row := tensor.MustFromSlice([]float64{10, 20, 30}, 1, 3)

	assert.Equal(t, []float64{11, 22, 33, 14, 25, 36}, b.Add(x, row).Data())
	assert.Equal(t, []float64{-9, -18, -27, -6, -15, -24}, b.Sub(x, row).Data())
	assert.Equal(t, []float64{10, 40, 90, 40, 100, 180}, b.Mul(x, row).Data())
	assert.Equal(t, []float64{2, 4, 6, 8, 10, 12}, b.Add(x, x).Data())
	assert.Panics(t, func() { b.Add(x, tensor.Zeros(2, 2)) })
}

func TestMatMulAndTranspose(t *testing.T) {
	b := New()
	x := tensor.MustFromSlice([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	w := tensor.MustFromSlice([]float64{1, 0, 0, 1, 1, 1}, 3, 2)

	got := b.MatMul(x, w)
	assert.Equal(t, tensor.Shape{2, 2}, got.Shape())
	assert.Equal(t, []float64{4, 5, 10, 11}, got.Data())

	xt := b.Transpose(x)
	assert.Equal(t, tensor.Shape{3, 2}, xt.Shape())
	assert.Equal(t, []float64{1, 4, 2, 5, 3, 6}, xt.Data())

	assert.Panics(t, func() { b.MatMul(x, x) })
}

func TestConcatAndSumDim(t *testing.T) {
	b := New()
	x := tensor.MustFromSlice([]float64{1, 2, 3, 4}, 2, 2)
	y := tensor.MustFromSlice([]float64{5, 6}, 2, 1)

	c := b.Concat([]*tensor.RawTensor{x, y}, -1)
	assert.Equal(t, tensor.Shape{2, 3}, c.Shape())
	assert.Equal(t, []float64{1, 2, 5, 3, 4, 6}, c.Data())

	s := b.SumDim(c, 0, false)
	assert.Equal(t, tensor.Shape{3}, s.Shape())
	assert.Equal(t, []float64{4, 6, 11}, s.Data())

	k := b.SumDim(c, 1, true)
	assert.Equal(t, tensor.Shape{2, 1}, k.Shape())
	assert.Equal(t, []float64{8, 13}, k.Data())
}

func TestVariableCopies(t *testing.T) {
	b := New()
	x := tensor.MustFromSlice([]float64{1, 2}, 2)
	v := b.Variable("w", x)
	v.Data()[0] = 3
	assert.Equal(t, 1.0, x.Data()[0])
	assert.Equal(t, "CPU", b.Name())
}

func TestActivate(t *testing.T) {
	b := New()
	x := tensor.MustFromSlice([]float64{-1, 0, 2}, 3)
	assert.Equal(t, []float64{0, 0, 2}, b.Activate(x, tensor.MustActivation("relu")).Data())
}
