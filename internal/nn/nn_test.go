package nn_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yi-FanLi/deepmd-kit/internal/autodiff"
	"github.com/Yi-FanLi/deepmd-kit/internal/backend/cpu"
	"github.com/Yi-FanLi/deepmd-kit/internal/nn"
	"github.com/Yi-FanLi/deepmd-kit/internal/serialization"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

func seed(s int64) *int64 { return &s }

func TestParameter(t *testing.T) {
	data := tensor.MustFromSlice([]float64{1, 2, 3}, 3)
	param := nn.NewParameter("fitting.nets.0.layers.0.w", data)

	assert.Equal(t, "fitting.nets.0.layers.0.w", param.Name())
	assert.Same(t, data, param.Tensor())
	assert.Nil(t, param.Grad())

	grad := tensor.MustFromSlice([]float64{0.1, 0.2, 0.3}, 3)
	param.SetGrad(grad)
	assert.Same(t, grad, param.Grad())
	param.ZeroGrad()
	assert.Nil(t, param.Grad())
}

func TestNativeLayer_Forward(t *testing.T) {
	b := cpu.New()
	d := serialization.Dict{
		"@class":              "Layer",
		"@version":            1,
		"activation_function": "tanh",
		"resnet":              false,
		"@variables": serialization.Dict{
			"w":   tensor.MustFromSlice([]float64{0.5, -1, 2, 0.25}, 2, 2),
			"b":   tensor.MustFromSlice([]float64{0.1, -0.2}, 2),
			"idt": tensor.MustFromSlice([]float64{2, 3}, 2),
		},
	}
	l, err := nn.DeserializeLayer(b, "layer", d)
	require.NoError(t, err)

	x := tensor.MustFromSlice([]float64{1, 2}, 1, 2)
	y := l.Forward(x)
	want0 := math.Tanh(1*0.5+2*2+0.1) * 2
	want1 := math.Tanh(1*-1+2*0.25-0.2) * 3
	assert.InDeltaSlice(t, []float64{want0, want1}, y.Data(), 1e-12)
	assert.Len(t, l.Parameters(), 3)
}

func TestNativeLayer_Resnet(t *testing.T) {
	b := cpu.New()
	same, err := nn.NewNativeLayer(b, "same", nn.LayerConfig{NumIn: 2, NumOut: 2, Bias: true, Activation: "linear", Resnet: true, Seed: seed(1)})
	require.NoError(t, err)
	double, err := nn.NewNativeLayer(b, "double", nn.LayerConfig{NumIn: 2, NumOut: 4, Bias: true, Activation: "linear", Resnet: true, Seed: seed(1)})
	require.NoError(t, err)

	x := tensor.MustFromSlice([]float64{1, -1}, 1, 2)

	plain := b.Add(b.MatMul(x, same.W()), same.B())
	assert.InDeltaSlice(t, b.Add(plain, x).Data(), same.Forward(x).Data(), 1e-12)

	plain = b.Add(b.MatMul(x, double.W()), double.B())
	xx := b.Concat([]*tensor.RawTensor{x, x}, 1)
	assert.InDeltaSlice(t, b.Add(plain, xx).Data(), double.Forward(x).Data(), 1e-12)
}

func TestNativeLayer_Errors(t *testing.T) {
	b := cpu.New()
	_, err := nn.NewNativeLayer(b, "l", nn.LayerConfig{NumIn: 0, NumOut: 2})
	assert.Error(t, err)
	_, err = nn.NewNativeLayer(b, "l", nn.LayerConfig{NumIn: 1, NumOut: 2, Activation: "swish"})
	assert.Error(t, err)
	_, err = nn.NewNativeLayer(b, "l", nn.LayerConfig{NumIn: 1, NumOut: 2, Precision: "float16"})
	assert.ErrorIs(t, err, nn.ErrUnsupportedPrecision)
}

func TestEmbeddingNet_SerializeRoundTrip(t *testing.T) {
	b := cpu.New()
	net, err := nn.NewEmbeddingNet(b, "emb", nn.EmbeddingNetConfig{
		InDim: 1, Neuron: []int{3, 6, 12}, Activation: "tanh", ResnetDt: true, Bias: true, Seed: seed(42),
	})
	require.NoError(t, err)

	x := tensor.MustFromSlice([]float64{0.1, 0.5, 0.9}, 3, 1)
	want := net.Forward(x)
	assert.Equal(t, tensor.Shape{3, 12}, want.Shape())

	ad := autodiff.New(cpu.New())
	got, err := nn.DeserializeEmbeddingNet(ad, "emb", net.Serialize())
	require.NoError(t, err)
	assert.True(t, want.AllClose(got.Forward(x), 0, 1e-14))
	assert.Equal(t, net.Config().Neuron, got.Config().Neuron)
	assert.Contains(t, ad.LeafNames(), "emb.layers.0.w")
	assert.Contains(t, ad.LeafNames(), "emb.layers.2.idt")
}

func TestEmbeddingNet_SameSeedSameWeights(t *testing.T) {
	cfg := nn.EmbeddingNetConfig{InDim: 1, Neuron: []int{4, 8}, Activation: "tanh", Bias: true, Seed: seed(7)}
	a, err := nn.NewEmbeddingNet(cpu.New(), "a", cfg)
	require.NoError(t, err)
	c, err := nn.NewEmbeddingNet(cpu.New(), "c", cfg)
	require.NoError(t, err)
	for i := range a.Layers() {
		assert.True(t, a.Layers()[i].W().Equal(c.Layers()[i].W()))
	}
}

func TestFittingNet_Shapes(t *testing.T) {
	b := cpu.New()
	net, err := nn.NewFittingNet(b, "fit", nn.FittingNetConfig{
		InDim: 5, OutDim: 2, Neuron: []int{4, 4}, Activation: "tanh", BiasOut: true, Seed: seed(3),
	})
	require.NoError(t, err)
	assert.Len(t, net.Layers(), 3)
	assert.Equal(t, "linear", net.Layers()[2].Activation().Name())

	x := tensor.Full(0.3, 7, 5)
	y := net.Forward(x)
	assert.Equal(t, tensor.Shape{7, 2}, y.Shape())

	again, err := nn.DeserializeFittingNet(b, "fit", net.Serialize())
	require.NoError(t, err)
	assert.True(t, y.Equal(again.Forward(x)))
}

func TestDeserialize_RejectsWrongClassAndVersion(t *testing.T) {
	b := cpu.New()
	net, err := nn.NewFittingNet(b, "fit", nn.FittingNetConfig{InDim: 2, OutDim: 1, Neuron: []int{2}, Activation: "tanh", Seed: seed(1)})
	require.NoError(t, err)

	d := net.Serialize()
	d["@class"] = "EmbeddingNetwork"
	_, err = nn.DeserializeFittingNet(b, "fit", d)
	assert.ErrorIs(t, err, serialization.ErrClassMismatch)

	d = net.Serialize()
	d["@version"] = 9
	_, err = nn.DeserializeFittingNet(b, "fit", d)
	assert.ErrorIs(t, err, serialization.ErrIncompatibleVersion)
}

func TestDerivatives_MatchFiniteDifferences(t *testing.T) {
	for _, act := range []string{"tanh", "gelu", "softplus"} {
		t.Run(act, func(t *testing.T) {
			net, err := nn.NewEmbeddingNet(cpu.New(), "emb", nn.EmbeddingNetConfig{
				InDim: 1, Neuron: []int{2, 4, 8}, Activation: act, ResnetDt: true, Bias: true, Seed: seed(11),
			})
			require.NoError(t, err)

			xs := []float64{-0.4, 0.1, 0.7}
			y, dy, d2y, err := net.Derivatives(xs)
			require.NoError(t, err)

			direct := net.Forward(tensor.MustFromSlice(xs, 3, 1))
			assert.True(t, direct.AllClose(y, 0, 1e-12))

			const h = 1e-4
			eval := func(shift float64) *tensor.RawTensor {
				shifted := make([]float64, len(xs))
				for i, x := range xs {
					shifted[i] = x + shift
				}
				return net.Forward(tensor.MustFromSlice(shifted, 3, 1))
			}
			plus, minus := eval(h), eval(-h)
			for i := range y.Data() {
				fd1 := (plus.Data()[i] - minus.Data()[i]) / (2 * h)
				fd2 := (plus.Data()[i] - 2*y.Data()[i] + minus.Data()[i]) / (h * h)
				assert.InDelta(t, fd1, dy.Data()[i], 1e-6)
				assert.InDelta(t, fd2, d2y.Data()[i], 1e-4)
			}
		})
	}
}

func TestDerivatives_RequireScalarInput(t *testing.T) {
	net, err := nn.NewEmbeddingNet(cpu.New(), "emb", nn.EmbeddingNetConfig{InDim: 2, Neuron: []int{2}, Activation: "tanh", Seed: seed(1)})
	require.NoError(t, err)
	_, _, _, err = net.Derivatives([]float64{0})
	assert.Error(t, err)
}

func TestNetworkCollection(t *testing.T) {
	b := cpu.New()
	c, err := nn.NewNetworkCollection(2, 2, nn.EmbeddingNetworkType)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Len())

	mk := func(s int64) nn.Network {
		n, err := nn.NewEmbeddingNet(b, "e", nn.EmbeddingNetConfig{InDim: 1, Neuron: []int{2}, Activation: "tanh", Bias: true, Seed: seed(s)})
		require.NoError(t, err)
		return n
	}
	n01 := mk(1)
	require.NoError(t, c.Set(n01, 0, 1))
	assert.Same(t, n01, c.At(1))
	assert.Nil(t, c.Get(1, 0))
	assert.Error(t, c.Set(n01, 2, 0))
	assert.Panics(t, func() { c.Get(0) })

	// new order [1, 0, new]
	remapped, err := c.Remap([]int{1, 0, -1}, func(types []int) (nn.Network, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, remapped.Ntypes())
	assert.Same(t, n01, remapped.Get(1, 0))
	assert.Nil(t, remapped.Get(2, 2))

	got, err := nn.DeserializeNetworkCollection(b, "coll", c.Serialize())
	require.NoError(t, err)
	assert.Nil(t, got.Get(0, 0))
	require.NotNil(t, got.Get(0, 1))
	x := tensor.MustFromSlice([]float64{0.3}, 1, 1)
	assert.True(t, n01.Forward(x).Equal(got.Get(0, 1).Forward(x)))

	_, err = nn.NewNetworkCollection(3, 2, nn.EmbeddingNetworkType)
	assert.Error(t, err)
	_, err = nn.NewNetworkCollection(1, 2, "attention")
	assert.Error(t, err)
}

func TestLayerGradient_ThroughAutodiff(t *testing.T) {
	ad := autodiff.New(cpu.New())
	ad.Tape().StartRecording()
	net, err := nn.NewFittingNet(ad, "fit", nn.FittingNetConfig{InDim: 3, OutDim: 1, Neuron: []int{4}, Activation: "tanh", BiasOut: true, Seed: seed(5)})
	require.NoError(t, err)

	x := tensor.MustFromSlice([]float64{0.1, 0.2, 0.3, -0.1, 0.4, 0.2}, 2, 3)
	y := ad.SumDim(net.Forward(x), 0, true)
	grads := ad.Gradients(y)
	require.Contains(t, grads, "fit.layers.1.b")
	// d(sum of outputs)/d(output bias) = number of rows
	assert.InDelta(t, 2.0, grads["fit.layers.1.b"].Data()[0], 1e-12)
	require.Contains(t, grads, "fit.layers.0.w")
}
