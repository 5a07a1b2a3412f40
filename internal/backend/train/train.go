// Package train implements the tensor-training backend: the autodiff
// backend plus a parameter store that gradient steps update in place.
package train

import (
	"sort"

	"github.com/Yi-FanLi/deepmd-kit/internal/autodiff"
	"github.com/Yi-FanLi/deepmd-kit/internal/backend/cpu"
	"github.com/Yi-FanLi/deepmd-kit/internal/logging"
	"github.com/Yi-FanLi/deepmd-kit/internal/nn"
	"github.com/Yi-FanLi/deepmd-kit/internal/optim"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// Backend records a gradient tape over the CPU backend. Every named
// Variable becomes an nn.Parameter in its store.
type Backend struct {
	*autodiff.AutodiffBackend[*cpu.CPUBackend]

	params map[string]*nn.Parameter
}

// New returns a training backend that is already recording.
func New() *Backend {
	b := &Backend{
		AutodiffBackend: autodiff.New(cpu.New()),
		params:          make(map[string]*nn.Parameter),
	}
	b.Tape().StartRecording()
	return b
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return "Train(" + b.Inner().Name() + ")"
}

// Variable registers value as a gradient leaf and as a parameter.
func (b *Backend) Variable(name string, value *tensor.RawTensor) *tensor.RawTensor {
	leaf := b.AutodiffBackend.Variable(name, value)
	if name != "" {
		b.params[name] = nn.NewParameter(name, leaf)
	}
	return leaf
}

// Parameter returns the parameter registered under name.
func (b *Backend) Parameter(name string) (*nn.Parameter, bool) {
	p, ok := b.params[name]
	return p, ok
}

// Parameters returns the parameters sorted by name.
func (b *Backend) Parameters() []*nn.Parameter {
	names := make([]string, 0, len(b.params))
	for n := range b.params {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*nn.Parameter, len(names))
	for i, n := range names {
		out[i] = b.params[n]
	}
	return out
}

// Backward stores the gradient of output on every parameter it depends on
// and clears the tape. It returns the number of parameters that received
// a gradient.
func (b *Backend) Backward(output *tensor.RawTensor) int {
	grads := b.Gradients(output)
	for name, g := range grads {
		if p, ok := b.params[name]; ok {
			p.SetGrad(g)
		}
	}
	b.Tape().Clear()
	return len(grads)
}

// Step applies one plain gradient descent update with learning rate lr and
// clears the gradients.
func (b *Backend) Step(lr float64) {
	b.Apply(optim.NewSGD(b.Parameters(), optim.SGDConfig{LR: lr}))
}

// Apply steps opt and clears the gradients. opt must have been built over
// Parameters.
func (b *Backend) Apply(opt optim.Optimizer) {
	opt.Step()
	opt.ZeroGrad()
	logging.L().Debug("parameters updated",
		logging.Int("parameters", len(b.params)),
		logging.Float64("lr", opt.GetLR()))
}
