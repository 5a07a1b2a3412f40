package tensor

// Backend defines the interface that all compute backends must implement.
// Backends handle the numeric work of network evaluation; descriptor and
// fitting math that is not differentiated lives in plain Go and is shared
// by every backend.
//
// Implementations:
//   - cpu: plain arrays, no gradient tracking
//   - autodiff: decorator over any backend recording a gradient tape
//   - train: autodiff plus a parameter store updated by SGD
type Backend interface {
	// Element-wise binary operations with NumPy-style broadcasting
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor

	// MatMul multiplies 2D matrices: [M, K] @ [K, N] -> [M, N].
	MatMul(a, b *RawTensor) *RawTensor

	// Shape operations
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor) *RawTensor               // 2D transpose
	Concat(tensors []*RawTensor, dim int) *RawTensor // concatenate along dimension
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor

	// Activate applies an activation function element-wise.
	Activate(x *RawTensor, fn Activation) *RawTensor

	// Variable converts a plain array into the backend's native parameter
	// storage. It is called once per parameter when a component is built or
	// deserialized, never on every mutation.
	Variable(name string, value *RawTensor) *RawTensor

	// Metadata
	Name() string
}

// GradientStopper is implemented by backends that track gradients and can
// cut an index tensor out of the graph before it is consumed.
type GradientStopper interface {
	StopGradient(t *IntTensor) *IntTensor
}
