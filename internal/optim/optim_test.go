package optim_test

import (
	"math"
	"testing"

	"github.com/Yi-FanLi/deepmd-kit/internal/nn"
	"github.com/Yi-FanLi/deepmd-kit/internal/optim"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

func param(name string, values ...float64) *nn.Parameter {
	return nn.NewParameter(name, tensor.MustFromSlice(values, len(values)))
}

func grad(values ...float64) *tensor.RawTensor {
	return tensor.MustFromSlice(values, len(values))
}

func TestSGD_SimpleUpdate(t *testing.T) {
	p := param("x", 2.0)
	opt := optim.NewSGD([]*nn.Parameter{p}, optim.SGDConfig{LR: 0.1})

	p.SetGrad(grad(1.0))
	opt.Step()

	// x = 2.0 - 0.1 * 1.0
	if got := p.Tensor().Data()[0]; math.Abs(got-1.9) > 1e-12 {
		t.Errorf("SGD step: got %f, want 1.9", got)
	}
}

func TestSGD_WithMomentum(t *testing.T) {
	p := param("x", 1.0)
	opt := optim.NewSGD([]*nn.Parameter{p}, optim.SGDConfig{LR: 0.1, Momentum: 0.9})

	p.SetGrad(grad(1.0))
	opt.Step()
	// v = 1, x = 1 - 0.1
	if got := p.Tensor().Data()[0]; math.Abs(got-0.9) > 1e-12 {
		t.Errorf("SGD momentum step 1: got %f, want 0.9", got)
	}

	p.SetGrad(grad(1.0))
	opt.Step()
	// v = 0.9 + 1 = 1.9, x = 0.9 - 0.19
	if got := p.Tensor().Data()[0]; math.Abs(got-0.71) > 1e-12 {
		t.Errorf("SGD momentum step 2: got %f, want 0.71", got)
	}
}

func TestSGD_SkipsMissingGradient(t *testing.T) {
	p := param("x", 1.0)
	opt := optim.NewSGD([]*nn.Parameter{p}, optim.SGDConfig{LR: 0.1})
	opt.Step()
	if got := p.Tensor().Data()[0]; got != 1.0 {
		t.Errorf("parameter without gradient changed: %f", got)
	}

	p.SetGrad(grad(1.0, 2.0))
	opt.Step()
	if got := p.Tensor().Data()[0]; got != 1.0 {
		t.Errorf("parameter with mismatched gradient changed: %f", got)
	}
}

func TestSGD_ZeroGrad(t *testing.T) {
	p := param("x", 1.0)
	p.SetGrad(grad(5.0))
	opt := optim.NewSGD([]*nn.Parameter{p}, optim.SGDConfig{LR: 0.1})
	opt.ZeroGrad()
	if p.Grad() != nil {
		t.Error("Grad should be nil after ZeroGrad")
	}
}

func TestSGD_GetSetLR(t *testing.T) {
	opt := optim.NewSGD(nil, optim.SGDConfig{})
	if opt.GetLR() != 0.01 {
		t.Errorf("default LR: got %f, want 0.01", opt.GetLR())
	}
	opt.SetLR(0.5)
	if opt.GetLR() != 0.5 {
		t.Errorf("SetLR: got %f, want 0.5", opt.GetLR())
	}
}

func TestSGD_StateDict(t *testing.T) {
	p := param("x", 1.0, 2.0)
	opt := optim.NewSGD([]*nn.Parameter{p}, optim.SGDConfig{LR: 0.1, Momentum: 0.5})
	p.SetGrad(grad(1.0, -1.0))
	opt.Step()

	state := opt.StateDict()
	v, ok := state["velocity.0"]
	if !ok {
		t.Fatal("velocity.0 missing from state")
	}

	other := optim.NewSGD([]*nn.Parameter{p}, optim.SGDConfig{LR: 0.1, Momentum: 0.5})
	if err := other.LoadStateDict(state); err != nil {
		t.Fatalf("LoadStateDict: %v", err)
	}
	if !other.StateDict()["velocity.0"].Equal(v) {
		t.Error("velocity not restored")
	}

	bad := map[string]*tensor.RawTensor{"velocity.0": grad(1.0)}
	if err := other.LoadStateDict(bad); err == nil {
		t.Error("expected shape mismatch error")
	}
}

func TestAdam_SimpleUpdate(t *testing.T) {
	p := param("x", 1.0)
	opt := optim.NewAdam([]*nn.Parameter{p}, optim.AdamConfig{LR: 0.1})

	p.SetGrad(grad(0.5))
	opt.Step()

	// First step: m_hat = g, v_hat = g², so x moves by lr * g/|g|.
	if got := p.Tensor().Data()[0]; math.Abs(got-0.9) > 1e-6 {
		t.Errorf("Adam step: got %f, want 0.9", got)
	}
}

func TestAdam_ZeroGrad(t *testing.T) {
	p := param("x", 1.0)
	p.SetGrad(grad(1.0))
	opt := optim.NewAdam([]*nn.Parameter{p}, optim.AdamConfig{})
	if opt.GetLR() != 0.001 {
		t.Errorf("default LR: got %f, want 0.001", opt.GetLR())
	}
	opt.ZeroGrad()
	if p.Grad() != nil {
		t.Error("Grad should be nil after ZeroGrad")
	}
}

func TestConvergence_SimpleQuadratic(t *testing.T) {
	for name, build := range map[string]func(*nn.Parameter) optim.Optimizer{
		"SGD": func(p *nn.Parameter) optim.Optimizer {
			return optim.NewSGD([]*nn.Parameter{p}, optim.SGDConfig{LR: 0.1, Momentum: 0.9})
		},
		"Adam": func(p *nn.Parameter) optim.Optimizer {
			return optim.NewAdam([]*nn.Parameter{p}, optim.AdamConfig{LR: 0.1})
		},
	} {
		t.Run(name, func(t *testing.T) {
			p := param("x", 3.0)
			opt := build(p)
			// f(x) = x², df/dx = 2x
			for i := 0; i < 100; i++ {
				p.SetGrad(grad(2 * p.Tensor().Data()[0]))
				opt.Step()
			}
			if final := p.Tensor().Data()[0]; math.Abs(final) > 0.1 {
				t.Errorf("x = %f, expected close to 0", final)
			}
		})
	}
}

func TestMultipleParameters(t *testing.T) {
	p1 := param("x1", 1.0, 2.0)
	p2 := param("x2", 3.0)
	opt := optim.NewSGD([]*nn.Parameter{p1, p2}, optim.SGDConfig{LR: 0.1})
	p1.SetGrad(grad(1.0, 2.0))
	p2.SetGrad(grad(0.5))
	opt.Step()

	d1 := p1.Tensor().Data()
	if math.Abs(d1[0]-0.9) > 1e-12 || math.Abs(d1[1]-1.8) > 1e-12 {
		t.Errorf("param1: got %v, want [0.9, 1.8]", d1)
	}
	if d2 := p2.Tensor().Data()[0]; math.Abs(d2-2.95) > 1e-12 {
		t.Errorf("param2: got %f, want 2.95", d2)
	}
}
