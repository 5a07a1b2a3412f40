package serialization

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

func sampleTree() Dict {
	return Dict{
		"@class":   "Descriptor",
		"type":     "se_e2_a",
		"@version": 2,
		"rcut":     6.0,
		"sel":      []int{4, 8},
		"type_map": []string{"O", "H"},
		"embeddings": Dict{
			"@class": "NetworkCollection",
			"networks": []any{
				Dict{"w": tensor.MustFromSlice([]float64{0.1, -0.2, 0.3, 0.4}, 2, 2)},
				nil,
			},
		},
		"@variables": Dict{
			"davg": tensor.MustFromSlice([]float64{1, 2, 3, 4, 5, 6}, 1, 6),
			"dstd": tensor.Full(1, 1, 6),
		},
	}
}

func assertSameTree(t *testing.T, want, got Dict) {
	t.Helper()
	assert.Equal(t, "se_e2_a", got["type"])
	v, err := got.Int("@version")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	sel, err := got.Ints("sel")
	require.NoError(t, err)
	assert.Equal(t, []int{4, 8}, sel)

	vars, err := got.Variables()
	require.NoError(t, err)
	davg, err := vars.Array("davg")
	require.NoError(t, err)
	wantDavg := want[KeyVariables].(Dict)["davg"].(*tensor.RawTensor)
	assert.True(t, wantDavg.Equal(davg))

	emb, err := got.Dict("embeddings")
	require.NoError(t, err)
	nets := emb["networks"].([]any)
	require.Len(t, nets, 2)
	assert.Nil(t, nets[1])
	net, ok := AsDict(nets[0])
	require.True(t, ok)
	w, err := net.Array("w")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, -0.2, 0.3, 0.4}, w.Data())
}

func TestWriteToReadFrom_RoundTrip(t *testing.T) {
	tree := sampleTree()
	var buf bytes.Buffer
	require.NoError(t, WriteTo(&buf, tree, WriteOptions{Backend: "cpu", Metadata: map[string]string{"k": "v"}}))

	got, header, err := ReadFrom(&buf, ReaderOptions{})
	require.NoError(t, err)
	assert.Equal(t, "cpu", header.Backend)
	assert.Equal(t, SoftwareName, header.Software)
	assert.NotEmpty(t, header.ModelID)
	assert.Len(t, header.Tensors, 3)
	assertSameTree(t, tree, got)
}

func TestReadFrom_DetectsCorruption(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTo(&buf, sampleTree(), WriteOptions{}))
	data := buf.Bytes()
	data[len(data)-1] ^= 0xff

	_, _, err := ReadFrom(bytes.NewReader(data), ReaderOptions{})
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	_, _, err = ReadFrom(bytes.NewReader(data), ReaderOptions{SkipChecksumValidation: true})
	assert.NoError(t, err)
}

func TestReadFrom_BadMagic(t *testing.T) {
	data := make([]byte, FixedHeaderSize)
	copy(data, "NOPE")
	_, _, err := ReadFrom(bytes.NewReader(data), ReaderOptions{})
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestSaveLoadModel(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"model.dp", "model.yaml", "model.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			tree := sampleTree()
			require.NoError(t, SaveModel(path, tree, WriteOptions{Backend: "cpu"}))
			got, err := LoadModel(path)
			require.NoError(t, err)
			assertSameTree(t, tree, got)
		})
	}
}

func TestDPReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.dp")
	require.NoError(t, SaveModel(path, sampleTree(), WriteOptions{}))

	r, err := NewDPReader(path)
	require.NoError(t, err)
	defer r.Close()

	assert.ElementsMatch(t, []string{"embeddings.networks.0.w", "variables.davg", "variables.dstd"}, r.TensorNames())
	davg, err := r.LoadTensor("variables.davg")
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 6}, davg.Shape())

	_, err = r.LoadTensor("missing")
	assert.Error(t, err)

	require.NoError(t, r.Close())
	_, err = r.ReadModel()
	assert.Error(t, err)
}

func TestSaveModel_UnknownExtension(t *testing.T) {
	err := SaveModel(filepath.Join(t.TempDir(), "model.pb"), Dict{}, WriteOptions{})
	assert.ErrorIs(t, err, ErrUnknownExtension)
	_, err = LoadModel("model.pth")
	assert.ErrorIs(t, err, ErrUnknownExtension)
}

func TestSaveLoadArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "O_davg.dp")
	arr := tensor.MustFromSlice([]float64{1.5, -2.5, 3}, 3, 1)
	require.NoError(t, SaveArray(path, arr))

	got, err := LoadArray(path)
	require.NoError(t, err)
	assert.True(t, arr.Equal(got))

	_, err = LoadArray(filepath.Join(t.TempDir(), "missing.dp"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestYAML_ArrayLayout(t *testing.T) {
	data, err := MarshalYAML(Dict{"a": tensor.MustFromSlice([]float64{1.5, 2}, 2)})
	require.NoError(t, err)
	assert.Contains(t, string(data), "np.ndarray")
	assert.Contains(t, string(data), "float64")

	got, err := DecodeYAML(bytes.NewReader(data))
	require.NoError(t, err)
	arr, err := got.Array("a")
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 2}, arr.Data())
}
