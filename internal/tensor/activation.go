package tensor

import (
	"fmt"
	"math"
	"strings"
)

// Activation is an element-wise activation function together with its first
// and second derivatives. The derivatives are needed by the gradient tape
// and by the compression tables, which store quintic Hermite interpolants.
type Activation interface {
	Name() string
	Apply(x float64) float64
	Grad(x float64) float64
	Grad2(x float64) float64
}

// ParseActivation returns the activation registered under name.
// Names are case-insensitive; "none" and "linear" are the identity.
func ParseActivation(name string) (Activation, error) {
	switch strings.ToLower(name) {
	case "tanh":
		return tanhAct{}, nil
	case "relu":
		return reluAct{}, nil
	case "relu6":
		return relu6Act{}, nil
	case "softplus":
		return softplusAct{}, nil
	case "sigmoid":
		return sigmoidAct{}, nil
	case "gelu", "gelu_tf":
		return geluAct{name: strings.ToLower(name)}, nil
	case "linear", "none", "":
		return linearAct{}, nil
	default:
		return nil, fmt.Errorf("unknown activation function %q", name)
	}
}

// MustActivation is ParseActivation that panics on an unknown name.
func MustActivation(name string) Activation {
	a, err := ParseActivation(name)
	if err != nil {
		panic(err)
	}
	return a
}

type tanhAct struct{}

func (tanhAct) Name() string            { return "tanh" }
func (tanhAct) Apply(x float64) float64 { return math.Tanh(x) }
func (tanhAct) Grad(x float64) float64 {
	y := math.Tanh(x)
	return 1 - y*y
}
func (tanhAct) Grad2(x float64) float64 {
	y := math.Tanh(x)
	return -2 * y * (1 - y*y)
}

type reluAct struct{}

func (reluAct) Name() string            { return "relu" }
func (reluAct) Apply(x float64) float64 { return math.Max(x, 0) }
func (reluAct) Grad(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}
func (reluAct) Grad2(float64) float64 { return 0 }

type relu6Act struct{}

func (relu6Act) Name() string            { return "relu6" }
func (relu6Act) Apply(x float64) float64 { return math.Min(math.Max(x, 0), 6) }
func (relu6Act) Grad(x float64) float64 {
	if x > 0 && x < 6 {
		return 1
	}
	return 0
}
func (relu6Act) Grad2(float64) float64 { return 0 }

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

type softplusAct struct{}

func (softplusAct) Name() string { return "softplus" }
func (softplusAct) Apply(x float64) float64 {
	// log1p(exp(x)) overflows for large x
	if x > 30 {
		return x
	}
	return math.Log1p(math.Exp(x))
}
func (softplusAct) Grad(x float64) float64 { return sigmoid(x) }
func (softplusAct) Grad2(x float64) float64 {
	s := sigmoid(x)
	return s * (1 - s)
}

type sigmoidAct struct{}

func (sigmoidAct) Name() string            { return "sigmoid" }
func (sigmoidAct) Apply(x float64) float64 { return sigmoid(x) }
func (sigmoidAct) Grad(x float64) float64 {
	s := sigmoid(x)
	return s * (1 - s)
}
func (sigmoidAct) Grad2(x float64) float64 {
	s := sigmoid(x)
	return s * (1 - s) * (1 - 2*s)
}

// geluAct is the tanh approximation of GELU.
type geluAct struct{ name string }

const (
	geluCoeff = 0.044715
)

var geluScale = math.Sqrt(2 / math.Pi)

func (g geluAct) Name() string { return g.name }
func (geluAct) Apply(x float64) float64 {
	u := geluScale * (x + geluCoeff*x*x*x)
	return 0.5 * x * (1 + math.Tanh(u))
}
func (geluAct) Grad(x float64) float64 {
	u := geluScale * (x + geluCoeff*x*x*x)
	du := geluScale * (1 + 3*geluCoeff*x*x)
	t := math.Tanh(u)
	return 0.5*(1+t) + 0.5*x*(1-t*t)*du
}
func (geluAct) Grad2(x float64) float64 {
	u := geluScale * (x + geluCoeff*x*x*x)
	du := geluScale * (1 + 3*geluCoeff*x*x)
	ddu := geluScale * 6 * geluCoeff * x
	t := math.Tanh(u)
	sech2 := 1 - t*t
	return sech2*du + 0.5*x*sech2*(ddu-2*t*du*du)
}

type linearAct struct{}

func (linearAct) Name() string            { return "linear" }
func (linearAct) Apply(x float64) float64 { return x }
func (linearAct) Grad(float64) float64    { return 1 }
func (linearAct) Grad2(float64) float64   { return 0 }
