package dpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

func TestPath_SaveLoad(t *testing.T) {
	root := New(t.TempDir(), ReadWrite)
	p := root.Join("abc123", "O", "r")
	assert.False(t, p.Exists())

	arr := tensor.MustFromSlice([]float64{3, 1.5, 2.25}, 3)
	require.NoError(t, p.SaveArray(arr))

	assert.True(t, p.IsFile())
	assert.True(t, root.Join("abc123").IsDir())
	assert.Equal(t, "/abc123/O/r", p.String())
	assert.Equal(t, "r", p.Name())

	got, err := p.LoadArray()
	require.NoError(t, err)
	assert.True(t, arr.Equal(got))

	names, err := root.Join("abc123", "O").Children()
	require.NoError(t, err)
	assert.Equal(t, []string{"r"}, names)
}

func TestPath_ReadOnly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, New(dir, ReadWrite).Join("x").SaveArray(tensor.Zeros(1)))

	ro := New(dir, ReadOnly)
	assert.ErrorIs(t, ro.Join("y").SaveArray(tensor.Zeros(1)), ErrReadOnly)
	assert.ErrorIs(t, ro.Join("g").MkdirAll(), ErrReadOnly)

	got, err := ro.Join("x").LoadArray()
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1}, got.Shape())
}

func TestPath_LoadMissing(t *testing.T) {
	_, err := New(t.TempDir(), ReadOnly).Join("nope").LoadArray()
	assert.Error(t, err)
}
