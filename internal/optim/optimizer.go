// Package optim implements the optimizers the training backend uses to
// update network parameters and statistics from tape gradients.
//
// Optimizers read the gradient stored on every nn.Parameter, so the usual
// step is:
//
//	b.Tape().StartRecording()
//	out, _ := model.ForwardCommonAtomic(...)
//	b.Backward(loss)   // sets Parameter.Grad
//	opt.Step()
//	opt.ZeroGrad()
package optim

import (
	"github.com/Yi-FanLi/deepmd-kit/internal/nn"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step applies one update to every parameter that has a gradient.
	Step()

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float64

	// SetLR updates the learning rate.
	SetLR(lr float64)
}

// Config is the base configuration for all optimizers.
type Config struct {
	LR float64 // Learning rate
}

// gradient returns the gradient of p, or nil when p did not take part in
// the last backward pass or the shapes disagree.
func gradient(p *nn.Parameter) *tensor.RawTensor {
	if p == nil || p.Grad() == nil {
		return nil
	}
	if !p.Grad().Shape().Equal(p.Tensor().Shape()) {
		return nil
	}
	return p.Grad()
}
