package tensor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		name      string
		a, b      Shape
		want      Shape
		broadcast bool
		wantErr   bool
	}{
		{"same", Shape{3, 5}, Shape{3, 5}, Shape{3, 5}, false, false},
		{"column", Shape{3, 1}, Shape{3, 5}, Shape{3, 5}, true, false},
		{"row", Shape{1, 5}, Shape{3, 5}, Shape{3, 5}, true, false},
		{"rank", Shape{5}, Shape{2, 3, 5}, Shape{2, 3, 5}, true, false},
		{"incompatible", Shape{3, 4}, Shape{3, 5}, nil, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, bc, err := BroadcastShapes(tt.a, tt.b)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrShapeMismatch))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.broadcast, bc)
		})
	}
}

func TestShapeResolve(t *testing.T) {
	s, err := Shape{-1, 4}.Resolve(12)
	require.NoError(t, err)
	assert.Equal(t, Shape{3, 4}, s)

	_, err = Shape{-1, -1}.Resolve(12)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = Shape{5, 4}.Resolve(12)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	s, err = Shape{0, -1}.Resolve(0)
	assert.Error(t, err, "cannot infer from a zero-sized known part")
	assert.Nil(t, s)
}

func TestShapeValidateAllowsZero(t *testing.T) {
	assert.NoError(t, Shape{2, 0, 4}.Validate())
	assert.Error(t, Shape{2, -3}.Validate())
	assert.Equal(t, 0, Shape{2, 0, 4}.NumElements())
	assert.Equal(t, 1, Shape{}.NumElements())
}

func TestComputeStrides(t *testing.T) {
	assert.Equal(t, []int{12, 4, 1}, Shape{2, 3, 4}.ComputeStrides())
	assert.Equal(t, []int{}, Shape{}.ComputeStrides())
}
