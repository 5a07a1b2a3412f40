package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawTensorAtSet(t *testing.T) {
	r := Zeros(2, 3)
	r.Set(4.5, 1, 2)
	assert.Equal(t, 4.5, r.At(1, 2))
	assert.Equal(t, 4.5, r.Data()[5])
	assert.Panics(t, func() { r.At(2, 0) })
	assert.Panics(t, func() { r.At(0) })
}

func TestRawTensorReshapeSharesData(t *testing.T) {
	r := MustFromSlice([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	v, err := r.Reshape(3, -1)
	require.NoError(t, err)
	assert.Equal(t, Shape{3, 2}, v.Shape())

	v.Set(10, 0, 0)
	assert.Equal(t, 10.0, r.At(0, 0), "reshape is a view")

	_, err = r.Reshape(4, 2)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestRawTensorCloneIsDeep(t *testing.T) {
	r := MustFromSlice([]float64{1, 2}, 2)
	c := r.Clone()
	c.Data()[0] = 9
	assert.Equal(t, 1.0, r.At(0))
	assert.False(t, r.Equal(c))
}

func TestFromSliceMismatch(t *testing.T) {
	_, err := FromSlice([]float64{1, 2, 3}, 2, 2)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestAllClose(t *testing.T) {
	a := MustFromSlice([]float64{1, 2}, 2)
	b := MustFromSlice([]float64{1, 2 + 1e-12}, 2)
	assert.True(t, a.AllClose(b, 0, 1e-10))
	assert.False(t, a.Equal(b))
	assert.False(t, a.AllClose(MustFromSlice([]float64{1, 2}, 1, 2), 0, 1))
}

func TestIntTensor(t *testing.T) {
	nl := MustInt([]int{0, 1, -1, 2, -1, -1}, 1, 2, 3)
	assert.Equal(t, []int{0, 1, -1, 2, -1, -1}, nl.Row(0))
	c := nl.Clone()
	c.Data()[0] = 7
	assert.Equal(t, 0, nl.Data()[0])
	r, err := nl.Reshape(2, -1)
	require.NoError(t, err)
	assert.Equal(t, Shape{2, 3}, r.Shape())
	assert.Equal(t, 3, nl.Dim(-1))
}
