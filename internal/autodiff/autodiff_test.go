package autodiff_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yi-FanLi/deepmd-kit/internal/autodiff"
	"github.com/Yi-FanLi/deepmd-kit/internal/backend/cpu"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// TestAutodiffBackend_Name tests the Name method.
func TestAutodiffBackend_Name(t *testing.T) {
	backend := autodiff.New(cpu.New())
	assert.Equal(t, "Autodiff(CPU)", backend.Name())
}

// TestTape_Recording tests tape recording on/off.
func TestTape_Recording(t *testing.T) {
	backend := autodiff.New(cpu.New())
	tape := backend.Tape()

	assert.False(t, tape.IsRecording(), "tape should not be recording initially")
	tape.StartRecording()
	assert.True(t, tape.IsRecording())
	tape.StopRecording()
	assert.False(t, tape.IsRecording())
}

// TestTape_Clear tests tape clearing.
func TestTape_Clear(t *testing.T) {
	backend := autodiff.New(cpu.New())
	tape := backend.Tape()
	tape.StartRecording()

	a := tensor.MustFromSlice([]float64{1, 2}, 2)
	b := tensor.MustFromSlice([]float64{3, 4}, 2)
	backend.Add(a, b)
	require.Equal(t, 1, tape.NumOps())

	tape.Clear()
	assert.Equal(t, 0, tape.NumOps())
	assert.True(t, tape.IsRecording(), "Clear keeps the recording state")
}

func TestTape_NotRecording(t *testing.T) {
	backend := autodiff.New(cpu.New())
	a := tensor.MustFromSlice([]float64{1, 2}, 2)
	backend.Mul(a, a)
	assert.Equal(t, 0, backend.Tape().NumOps())
}

func TestBackward_Square(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x := backend.Variable("x", tensor.MustFromSlice([]float64{3}, 1))
	y := backend.Mul(x, x)

	grads := backend.Gradients(y)
	require.Contains(t, grads, "x")
	assert.InDelta(t, 6.0, grads["x"].Data()[0], 1e-12)
}

func TestBackward_SharedInputAccumulates(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x := backend.Variable("x", tensor.MustFromSlice([]float64{1, 2}, 2))
	// y = x + x*x, dy/dx = 1 + 2x
	y := backend.Add(x, backend.Mul(x, x))

	grads := backend.Gradients(y)
	assert.InDeltaSlice(t, []float64{3, 5}, grads["x"].Data(), 1e-12)
}

func TestBackward_BroadcastReducesToInputShape(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x := backend.Variable("x", tensor.MustFromSlice([]float64{1, 2, 3, 4, 5, 6}, 2, 3))
	bias := backend.Variable("b", tensor.MustFromSlice([]float64{0.1, 0.2, 0.3}, 3))
	y := backend.Add(x, bias)

	grads := backend.Gradients(y)
	assert.Equal(t, tensor.Shape{3}, grads["b"].Shape())
	assert.InDeltaSlice(t, []float64{2, 2, 2}, grads["b"].Data(), 1e-12)
	assert.Equal(t, tensor.Shape{2, 3}, grads["x"].Shape())
}

func TestBackward_Linear(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x := tensor.MustFromSlice([]float64{1, 2, 3, 4}, 2, 2)
	w := backend.Variable("w", tensor.MustFromSlice([]float64{1, 0, 0, 1}, 2, 2))
	y := backend.SumDim(backend.MatMul(x, w), 0, false)

	grads := backend.Gradients(y)
	// d(sum_i (xW)_ij)/dW_kj = sum_i x_ik
	assert.InDeltaSlice(t, []float64{4, 4, 6, 6}, grads["w"].Data(), 1e-12)
}

func TestBackward_ConcatSplitsGradient(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	a := backend.Variable("a", tensor.MustFromSlice([]float64{1, 2}, 2, 1))
	b := backend.Variable("b", tensor.MustFromSlice([]float64{3, 4, 5, 6}, 2, 2))
	c := backend.Concat([]*tensor.RawTensor{a, b}, -1)
	require.Equal(t, tensor.Shape{2, 3}, c.Shape())

	scale := tensor.MustFromSlice([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	y := backend.Mul(c, scale)

	grads := backend.Gradients(y)
	assert.InDeltaSlice(t, []float64{1, 4}, grads["a"].Data(), 1e-12)
	assert.InDeltaSlice(t, []float64{2, 3, 5, 6}, grads["b"].Data(), 1e-12)
}

func TestBackward_ReshapeAndTranspose(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	w := backend.Variable("w", tensor.MustFromSlice([]float64{1, 2, 3, 4, 5, 6}, 6))
	m := backend.Transpose(backend.Reshape(w, tensor.Shape{2, 3}))
	scale := tensor.MustFromSlice([]float64{1, 2, 3, 4, 5, 6}, 3, 2)
	y := backend.Mul(m, scale)

	grads := backend.Gradients(y)
	// scale^T flattened
	assert.InDeltaSlice(t, []float64{1, 3, 5, 2, 4, 6}, grads["w"].Data(), 1e-12)
}

func TestBackward_PanicsWithoutOps(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := tensor.MustFromSlice([]float64{1}, 1)
	assert.Panics(t, func() { autodiff.Backward(x, backend) })
}

func TestVariable_RegistersLeaves(t *testing.T) {
	backend := autodiff.New(cpu.New())
	raw := tensor.MustFromSlice([]float64{1, 2}, 2)
	v := backend.Variable("layer/w", raw)

	leaf, ok := backend.Leaf("layer/w")
	require.True(t, ok)
	assert.Same(t, v, leaf)
	assert.NotSame(t, raw, v)
	assert.Equal(t, []string{"layer/w"}, backend.LeafNames())
}

func TestStopGradient_Copies(t *testing.T) {
	backend := autodiff.New(cpu.New())
	var stopper tensor.GradientStopper = backend
	nlist := tensor.MustInt([]int{0, 1, -1}, 1, 3)

	out := stopper.StopGradient(nlist)
	assert.Equal(t, nlist.Data(), out.Data())
	out.Data()[0] = 7
	assert.Equal(t, 0, nlist.Data()[0])
}
