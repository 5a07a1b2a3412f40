package nn

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Yi-FanLi/deepmd-kit/internal/serialization"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// ErrUnsupportedPrecision is returned for any precision other than float64.
var ErrUnsupportedPrecision = errors.New("unsupported precision")

// CheckPrecision accepts the precisions that compute in float64.
func CheckPrecision(p string) error {
	switch strings.ToLower(p) {
	case "", "default", "float64", "double":
		return nil
	default:
		return fmt.Errorf("%w: %q (only float64 is implemented)", ErrUnsupportedPrecision, p)
	}
}

// LayerConfig holds the hyperparameters of a NativeLayer.
type LayerConfig struct {
	NumIn       int
	NumOut      int
	Bias        bool
	UseTimestep bool
	Activation  string
	Resnet      bool
	Precision   string
	Seed        *int64
}

// NativeLayer implements
//
//	y = act(x @ w + b) * idt (+ x when resnet)
//
// where w is [num_in, num_out] and b, idt are [num_out]. With resnet the
// input is added when num_out == num_in, or concatenated with itself and
// added when num_out == 2*num_in.
type NativeLayer struct {
	cfg     LayerConfig
	act     tensor.Activation
	w       *Parameter
	b       *Parameter
	idt     *Parameter
	backend tensor.Backend
}

// NewNativeLayer creates a layer with freshly initialized parameters.
// name prefixes the parameter names given to Backend.Variable.
func NewNativeLayer(b tensor.Backend, name string, cfg LayerConfig) (*NativeLayer, error) {
	if cfg.NumIn <= 0 || cfg.NumOut <= 0 {
		return nil, fmt.Errorf("layer %s: invalid dimensions %d -> %d", name, cfg.NumIn, cfg.NumOut)
	}
	w, bias, idt := layerInit(newRNG(cfg.Seed), cfg.NumIn, cfg.NumOut, cfg.Bias, cfg.UseTimestep)
	return newLayer(b, name, cfg, w, bias, idt)
}

func newLayer(b tensor.Backend, name string, cfg LayerConfig, w, bias, idt *tensor.RawTensor) (*NativeLayer, error) {
	if err := CheckPrecision(cfg.Precision); err != nil {
		return nil, err
	}
	act, err := tensor.ParseActivation(cfg.Activation)
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", name, err)
	}
	if !w.Shape().Equal(tensor.Shape{cfg.NumIn, cfg.NumOut}) {
		return nil, fmt.Errorf("layer %s: %w: w has shape %v, want [%d %d]", name, tensor.ErrShapeMismatch, w.Shape(), cfg.NumIn, cfg.NumOut)
	}
	l := &NativeLayer{cfg: cfg, act: act, backend: b}
	l.w = NewParameter(name+".w", b.Variable(name+".w", w))
	if bias != nil {
		if !bias.Shape().Equal(tensor.Shape{cfg.NumOut}) {
			return nil, fmt.Errorf("layer %s: %w: b has shape %v", name, tensor.ErrShapeMismatch, bias.Shape())
		}
		l.b = NewParameter(name+".b", b.Variable(name+".b", bias))
	}
	if idt != nil {
		if !idt.Shape().Equal(tensor.Shape{cfg.NumOut}) {
			return nil, fmt.Errorf("layer %s: %w: idt has shape %v", name, tensor.ErrShapeMismatch, idt.Shape())
		}
		l.idt = NewParameter(name+".idt", b.Variable(name+".idt", idt))
	}
	return l, nil
}

// Forward evaluates the layer on x [n, num_in].
func (l *NativeLayer) Forward(x *tensor.RawTensor) *tensor.RawTensor {
	if x.Ndim() != 2 || x.Dim(1) != l.cfg.NumIn {
		panic(fmt.Sprintf("NativeLayer.Forward: expected input [n, %d], got %v", l.cfg.NumIn, x.Shape()))
	}
	b := l.backend
	y := b.MatMul(x, l.w.Tensor())
	if l.b != nil {
		y = b.Add(y, l.b.Tensor())
	}
	y = b.Activate(y, l.act)
	if l.idt != nil {
		y = b.Mul(y, l.idt.Tensor())
	}
	if l.cfg.Resnet {
		switch l.cfg.NumOut {
		case l.cfg.NumIn:
			y = b.Add(y, x)
		case 2 * l.cfg.NumIn:
			y = b.Add(y, b.Concat([]*tensor.RawTensor{x, x}, 1))
		}
	}
	return y
}

// Parameters returns w and, when present, b and idt.
func (l *NativeLayer) Parameters() []*Parameter {
	params := []*Parameter{l.w}
	if l.b != nil {
		params = append(params, l.b)
	}
	if l.idt != nil {
		params = append(params, l.idt)
	}
	return params
}

// Config returns the layer hyperparameters.
func (l *NativeLayer) Config() LayerConfig { return l.cfg }

// Activation returns the activation function.
func (l *NativeLayer) Activation() tensor.Activation { return l.act }

// W returns the weight array.
func (l *NativeLayer) W() *tensor.RawTensor { return l.w.Tensor() }

// B returns the bias array, or nil.
func (l *NativeLayer) B() *tensor.RawTensor {
	if l.b == nil {
		return nil
	}
	return l.b.Tensor()
}

// Idt returns the timestep array, or nil.
func (l *NativeLayer) Idt() *tensor.RawTensor {
	if l.idt == nil {
		return nil
	}
	return l.idt.Tensor()
}

// Serialize returns the layer as a Dict.
func (l *NativeLayer) Serialize() serialization.Dict {
	vars := serialization.Dict{"w": l.W().Clone(), "b": nil, "idt": nil}
	if l.b != nil {
		vars["b"] = l.B().Clone()
	}
	if l.idt != nil {
		vars["idt"] = l.Idt().Clone()
	}
	return serialization.Dict{
		serialization.KeyClass:     "Layer",
		serialization.KeyVersion:   1,
		"bias":                     l.b != nil,
		"use_timestep":             l.idt != nil,
		"activation_function":      l.act.Name(),
		"resnet":                   l.cfg.Resnet,
		"precision":                "float64",
		serialization.KeyVariables: vars,
	}
}

// DeserializeLayer rebuilds a layer from its Dict on backend b.
func DeserializeLayer(b tensor.Backend, name string, d serialization.Dict) (*NativeLayer, error) {
	if err := serialization.CheckVersion(d, 1, 1); err != nil {
		return nil, err
	}
	if err := serialization.CheckClass(d, "Layer"); err != nil {
		return nil, err
	}
	vars, err := d.Variables()
	if err != nil {
		return nil, err
	}
	w, err := vars.Array("w")
	if err != nil {
		return nil, err
	}
	bias, err := vars.ArrayOr("b")
	if err != nil {
		return nil, err
	}
	idt, err := vars.ArrayOr("idt")
	if err != nil {
		return nil, err
	}
	act, err := d.StringOr("activation_function", "tanh")
	if err != nil {
		return nil, err
	}
	resnet, err := d.BoolOr("resnet", false)
	if err != nil {
		return nil, err
	}
	precision, err := d.StringOr("precision", "float64")
	if err != nil {
		return nil, err
	}
	if w.Ndim() != 2 {
		return nil, fmt.Errorf("layer %s: %w: w must be 2D, got %v", name, tensor.ErrShapeMismatch, w.Shape())
	}
	cfg := LayerConfig{
		NumIn:       w.Dim(0),
		NumOut:      w.Dim(1),
		Bias:        bias != nil,
		UseTimestep: idt != nil,
		Activation:  act,
		Resnet:      resnet,
		Precision:   precision,
	}
	return newLayer(b, name, cfg, w, bias, idt)
}
