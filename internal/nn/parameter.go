package nn

import (
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// Parameter represents a trainable array of a network or a statistics
// buffer, named by its path in the owning component (for example
// "descriptor.embeddings.0.layers.1.w").
//
// Parameters are created by training backends when a component converts
// its arrays with Backend.Variable. The tensor is shared with the
// component, so an in-place update is seen by the next forward pass.
type Parameter struct {
	name   string            // Parameter name
	tensor *tensor.RawTensor // The parameter tensor
	grad   *tensor.RawTensor // Gradient tensor (set after a backward pass)
}

// NewParameter creates a new trainable parameter.
func NewParameter(name string, t *tensor.RawTensor) *Parameter {
	return &Parameter{
		name:   name,
		tensor: t,
	}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.RawTensor {
	return p.tensor
}

// Grad returns the gradient tensor.
//
// Returns nil if no gradient has been computed yet (before backward pass).
func (p *Parameter) Grad() *tensor.RawTensor {
	return p.grad
}

// SetGrad sets the gradient tensor.
func (p *Parameter) SetGrad(grad *tensor.RawTensor) {
	p.grad = grad
}

// ZeroGrad clears the gradient tensor.
func (p *Parameter) ZeroGrad() {
	p.grad = nil
}
