package nn

import (
	"fmt"
	"strconv"

	"github.com/Yi-FanLi/deepmd-kit/internal/serialization"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// NativeNet is a stack of layers applied in order.
type NativeNet struct {
	layers []*NativeLayer
}

// Forward applies all layers in sequence.
func (n *NativeNet) Forward(x *tensor.RawTensor) *tensor.RawTensor {
	out := x
	for _, l := range n.layers {
		out = l.Forward(out)
	}
	return out
}

// Parameters returns the parameters of every layer.
func (n *NativeNet) Parameters() []*Parameter {
	var params []*Parameter
	for _, l := range n.layers {
		params = append(params, l.Parameters()...)
	}
	return params
}

// Layers returns the layers.
func (n *NativeNet) Layers() []*NativeLayer {
	return n.layers
}

// InDim returns the input width.
func (n *NativeNet) InDim() int {
	return n.layers[0].cfg.NumIn
}

// OutDim returns the output width.
func (n *NativeNet) OutDim() int {
	return n.layers[len(n.layers)-1].cfg.NumOut
}

func (n *NativeNet) serializeLayers() []any {
	out := make([]any, len(n.layers))
	for i, l := range n.layers {
		out[i] = l.Serialize()
	}
	return out
}

func deserializeLayers(b tensor.Backend, name string, d serialization.Dict) ([]*NativeLayer, error) {
	raw, err := d.Get("layers")
	if err != nil {
		return nil, err
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: layers should be a list, got %T", serialization.ErrTypeMismatch, raw)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("network %s has no layers", name)
	}
	layers := make([]*NativeLayer, len(list))
	for i, e := range list {
		ld, ok := serialization.AsDict(e)
		if !ok {
			return nil, fmt.Errorf("%w: layer %d should be a dictionary", serialization.ErrTypeMismatch, i)
		}
		l, err := DeserializeLayer(b, name+".layers."+strconv.Itoa(i), ld)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		layers[i] = l
	}
	return layers, nil
}

// Derivatives evaluates the network and its first and second derivatives
// with respect to a scalar input (InDim must be 1) at every point of xs.
// The three results have shape [len(xs), OutDim]. It reads the parameter
// arrays directly and records nothing on any tape.
func (n *NativeNet) Derivatives(xs []float64) (y, dy, d2y *tensor.RawTensor, err error) {
	if n.InDim() != 1 {
		return nil, nil, nil, fmt.Errorf("derivatives need a scalar-input network, got in_dim %d", n.InDim())
	}
	npts := len(xs)
	v := make([]float64, npts)
	copy(v, xs)
	d1 := make([]float64, npts)
	for i := range d1 {
		d1[i] = 1
	}
	d2 := make([]float64, npts)
	width := 1

	for _, l := range n.layers {
		v, d1, d2, width = l.forwardDerivatives(v, d1, d2, npts, width)
	}
	y, _ = tensor.FromSlice(v, npts, width)
	dy, _ = tensor.FromSlice(d1, npts, width)
	d2y, _ = tensor.FromSlice(d2, npts, width)
	return y, dy, d2y, nil
}

// forwardDerivatives propagates value, first and second derivative rows
// ([npts, width] each) through the layer.
func (l *NativeLayer) forwardDerivatives(v, d1, d2 []float64, npts, width int) ([]float64, []float64, []float64, int) {
	in, out := l.cfg.NumIn, l.cfg.NumOut
	w := l.W().Data()
	var bias, idt []float64
	if l.b != nil {
		bias = l.B().Data()
	}
	if l.idt != nil {
		idt = l.Idt().Data()
	}
	nv := make([]float64, npts*out)
	nd1 := make([]float64, npts*out)
	nd2 := make([]float64, npts*out)
	for p := 0; p < npts; p++ {
		for j := 0; j < out; j++ {
			z, dz, ddz := 0.0, 0.0, 0.0
			for k := 0; k < in; k++ {
				wkj := w[k*out+j]
				z += v[p*width+k] * wkj
				dz += d1[p*width+k] * wkj
				ddz += d2[p*width+k] * wkj
			}
			if bias != nil {
				z += bias[j]
			}
			g1 := l.act.Grad(z)
			a := l.act.Apply(z)
			da := g1 * dz
			dda := l.act.Grad2(z)*dz*dz + g1*ddz
			if idt != nil {
				a *= idt[j]
				da *= idt[j]
				dda *= idt[j]
			}
			if l.cfg.Resnet && (out == in || out == 2*in) {
				k := j % in
				a += v[p*width+k]
				da += d1[p*width+k]
				dda += d2[p*width+k]
			}
			nv[p*out+j] = a
			nd1[p*out+j] = da
			nd2[p*out+j] = dda
		}
	}
	return nv, nd1, nd2, out
}

// EmbeddingNetConfig holds the hyperparameters of an EmbeddingNet.
type EmbeddingNetConfig struct {
	InDim      int
	Neuron     []int
	Activation string
	ResnetDt   bool
	Precision  string
	Bias       bool
	Seed       *int64
}

// EmbeddingNet maps per-neighbor inputs to embedding features. Every layer
// is residual and uses the same activation.
type EmbeddingNet struct {
	NativeNet
	cfg EmbeddingNetConfig
}

// NewEmbeddingNet creates an embedding network with fresh parameters.
func NewEmbeddingNet(b tensor.Backend, name string, cfg EmbeddingNetConfig) (*EmbeddingNet, error) {
	if len(cfg.Neuron) == 0 {
		return nil, fmt.Errorf("embedding net %s: neuron must not be empty", name)
	}
	net := &EmbeddingNet{cfg: cfg}
	in := cfg.InDim
	for i, out := range cfg.Neuron {
		l, err := NewNativeLayer(b, name+".layers."+strconv.Itoa(i), LayerConfig{
			NumIn:       in,
			NumOut:      out,
			Bias:        cfg.Bias,
			UseTimestep: cfg.ResnetDt,
			Activation:  cfg.Activation,
			Resnet:      true,
			Precision:   cfg.Precision,
			Seed:        ChildSeed(cfg.Seed, i),
		})
		if err != nil {
			return nil, err
		}
		net.layers = append(net.layers, l)
		in = out
	}
	return net, nil
}

// Config returns the hyperparameters.
func (n *EmbeddingNet) Config() EmbeddingNetConfig {
	return n.cfg
}

// Serialize returns the network as a Dict.
func (n *EmbeddingNet) Serialize() serialization.Dict {
	return serialization.Dict{
		serialization.KeyClass:   "EmbeddingNetwork",
		serialization.KeyVersion: 2,
		"in_dim":                 n.cfg.InDim,
		"neuron":                 append([]int(nil), n.cfg.Neuron...),
		"activation_function":    n.cfg.Activation,
		"resnet_dt":              n.cfg.ResnetDt,
		"precision":              "float64",
		"bias":                   n.cfg.Bias,
		"layers":                 n.serializeLayers(),
	}
}

// DeserializeEmbeddingNet rebuilds an embedding network on backend b.
func DeserializeEmbeddingNet(b tensor.Backend, name string, d serialization.Dict) (*EmbeddingNet, error) {
	if err := serialization.CheckVersion(d, 2, 1); err != nil {
		return nil, err
	}
	if err := serialization.CheckClass(d, "EmbeddingNetwork"); err != nil {
		return nil, err
	}
	var cfg EmbeddingNetConfig
	var err error
	if cfg.InDim, err = d.Int("in_dim"); err != nil {
		return nil, err
	}
	if cfg.Neuron, err = d.Ints("neuron"); err != nil {
		return nil, err
	}
	if cfg.Activation, err = d.StringOr("activation_function", "tanh"); err != nil {
		return nil, err
	}
	if cfg.ResnetDt, err = d.BoolOr("resnet_dt", false); err != nil {
		return nil, err
	}
	if cfg.Precision, err = d.StringOr("precision", "float64"); err != nil {
		return nil, err
	}
	if cfg.Bias, err = d.BoolOr("bias", true); err != nil {
		return nil, err
	}
	layers, err := deserializeLayers(b, name, d)
	if err != nil {
		return nil, err
	}
	if len(layers) != len(cfg.Neuron) {
		return nil, fmt.Errorf("embedding net %s: %d layers for neuron %v", name, len(layers), cfg.Neuron)
	}
	return &EmbeddingNet{NativeNet: NativeNet{layers: layers}, cfg: cfg}, nil
}

// FittingNetConfig holds the hyperparameters of a FittingNet.
type FittingNetConfig struct {
	InDim      int
	OutDim     int
	Neuron     []int
	Activation string
	ResnetDt   bool
	Precision  string
	BiasOut    bool
	Seed       *int64
}

// FittingNet is an embedding-style hidden stack followed by a linear
// output layer of width OutDim.
type FittingNet struct {
	NativeNet
	cfg FittingNetConfig
}

// NewFittingNet creates a fitting network with fresh parameters.
func NewFittingNet(b tensor.Backend, name string, cfg FittingNetConfig) (*FittingNet, error) {
	net := &FittingNet{cfg: cfg}
	in := cfg.InDim
	for i, out := range cfg.Neuron {
		l, err := NewNativeLayer(b, name+".layers."+strconv.Itoa(i), LayerConfig{
			NumIn:       in,
			NumOut:      out,
			Bias:        true,
			UseTimestep: cfg.ResnetDt,
			Activation:  cfg.Activation,
			Resnet:      true,
			Precision:   cfg.Precision,
			Seed:        ChildSeed(cfg.Seed, i),
		})
		if err != nil {
			return nil, err
		}
		net.layers = append(net.layers, l)
		in = out
	}
	last, err := NewNativeLayer(b, name+".layers."+strconv.Itoa(len(cfg.Neuron)), LayerConfig{
		NumIn:      in,
		NumOut:     cfg.OutDim,
		Bias:       cfg.BiasOut,
		Activation: "linear",
		Precision:  cfg.Precision,
		Seed:       ChildSeed(cfg.Seed, len(cfg.Neuron)),
	})
	if err != nil {
		return nil, err
	}
	net.layers = append(net.layers, last)
	return net, nil
}

// Config returns the hyperparameters.
func (n *FittingNet) Config() FittingNetConfig {
	return n.cfg
}

// Serialize returns the network as a Dict.
func (n *FittingNet) Serialize() serialization.Dict {
	return serialization.Dict{
		serialization.KeyClass:   "FittingNetwork",
		serialization.KeyVersion: 1,
		"in_dim":                 n.cfg.InDim,
		"out_dim":                n.cfg.OutDim,
		"neuron":                 append([]int(nil), n.cfg.Neuron...),
		"activation_function":    n.cfg.Activation,
		"resnet_dt":              n.cfg.ResnetDt,
		"precision":              "float64",
		"bias_out":               n.cfg.BiasOut,
		"layers":                 n.serializeLayers(),
	}
}

// DeserializeFittingNet rebuilds a fitting network on backend b.
func DeserializeFittingNet(b tensor.Backend, name string, d serialization.Dict) (*FittingNet, error) {
	if err := serialization.CheckVersion(d, 1, 1); err != nil {
		return nil, err
	}
	if err := serialization.CheckClass(d, "FittingNetwork"); err != nil {
		return nil, err
	}
	var cfg FittingNetConfig
	var err error
	if cfg.InDim, err = d.Int("in_dim"); err != nil {
		return nil, err
	}
	if cfg.OutDim, err = d.Int("out_dim"); err != nil {
		return nil, err
	}
	if cfg.Neuron, err = d.IntsOr("neuron", nil); err != nil {
		return nil, err
	}
	if cfg.Activation, err = d.StringOr("activation_function", "tanh"); err != nil {
		return nil, err
	}
	if cfg.ResnetDt, err = d.BoolOr("resnet_dt", false); err != nil {
		return nil, err
	}
	if cfg.Precision, err = d.StringOr("precision", "float64"); err != nil {
		return nil, err
	}
	if cfg.BiasOut, err = d.BoolOr("bias_out", true); err != nil {
		return nil, err
	}
	layers, err := deserializeLayers(b, name, d)
	if err != nil {
		return nil, err
	}
	if len(layers) != len(cfg.Neuron)+1 {
		return nil, fmt.Errorf("fitting net %s: %d layers for neuron %v", name, len(layers), cfg.Neuron)
	}
	return &FittingNet{NativeNet: NativeNet{layers: layers}, cfg: cfg}, nil
}
