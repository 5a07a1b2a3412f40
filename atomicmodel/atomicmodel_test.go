package atomicmodel_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yi-FanLi/deepmd-kit/atomicmodel"
	"github.com/Yi-FanLi/deepmd-kit/backend"
	"github.com/Yi-FanLi/deepmd-kit/backend/cpu"
	"github.com/Yi-FanLi/deepmd-kit/data"
	"github.com/Yi-FanLi/deepmd-kit/descriptor"
	"github.com/Yi-FanLi/deepmd-kit/fitting"
	"github.com/Yi-FanLi/deepmd-kit/tensor"
)

func water(t *testing.T) (*tensor.RawTensor, *tensor.IntTensor, *tensor.RawTensor) {
	t.Helper()
	coord := tensor.MustFromSlice([]float64{
		1.0, 1.0, 1.0,
		1.8, 1.2, 1.0,
		0.8, 1.9, 1.1,
		3.0, 3.1, 2.9,
		3.7, 2.6, 3.3,
		2.5, 3.8, 3.2,
	}, 1, 18)
	atype := tensor.MustInt([]int{0, 1, 1, 0, 1, 1}, 1, 6)
	box := tensor.MustFromSlice([]float64{5, 0, 0, 0, 5, 0, 0, 0, 5}, 1, 9)
	return coord, atype, box
}

func TestPublicAPI_SaveLoad(t *testing.T) {
	b := cpu.New()
	d, err := descriptor.New(b, map[string]any{
		"type": descriptor.TypeSeA, "rcut": 2.4, "rcut_smth": 0.5, "sel": []int{8, 16},
		"neuron": []int{4, 8}, "axis_neuron": 2, "seed": 1, "type_map": []string{"O", "H"},
	})
	require.NoError(t, err)
	f, err := fitting.New(b, map[string]any{
		"type": fitting.TypeEner, "ntypes": 2, "dim_descrpt": d.GetDimOut(),
		"neuron": []int{8}, "seed": 2, "type_map": []string{"O", "H"},
	})
	require.NoError(t, err)
	m, err := atomicmodel.New(b, d, f)
	require.NoError(t, err)

	coord, atype, box := water(t)
	sample := data.Sample{Coord: coord, Atype: atype, Box: box}
	require.NoError(t, m.ComputeOrLoadStat(data.FromSamples(sample), nil))
	want, err := m.Forward(coord, atype, box, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 6, 1}, want["energy"].Shape())

	for _, name := range []string{"water.dp", "water.yml"} {
		path := filepath.Join(t.TempDir(), name)
		require.NoError(t, atomicmodel.Save(path, m))
		for _, bn := range []string{"dp", "jax", "pytorch"} {
			nb, err := backend.New(bn)
			require.NoError(t, err)
			back, err := atomicmodel.Load(path, nb)
			require.NoError(t, err, "%s %s", name, bn)
			got, err := back.Forward(coord, atype, box, nil, nil)
			require.NoError(t, err)
			assert.True(t, want["energy"].AllClose(got["energy"], 0, 1e-12), "%s %s", name, bn)
		}
	}
}
