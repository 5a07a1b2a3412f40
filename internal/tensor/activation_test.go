package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestActivationDerivatives checks Grad and Grad2 against central differences.
func TestActivationDerivatives(t *testing.T) {
	const h = 1e-5
	names := []string{"tanh", "sigmoid", "softplus", "gelu", "gelu_tf", "linear"}
	points := []float64{-2.1, -0.3, 0.4, 1.7}
	for _, name := range names {
		act, err := ParseActivation(name)
		require.NoError(t, err)
		for _, x := range points {
			fd := (act.Apply(x+h) - act.Apply(x-h)) / (2 * h)
			assert.InDelta(t, fd, act.Grad(x), 1e-7, "%s'(%v)", name, x)
			fd2 := (act.Grad(x+h) - act.Grad(x-h)) / (2 * h)
			assert.InDelta(t, fd2, act.Grad2(x), 1e-6, "%s''(%v)", name, x)
		}
	}
}

func TestParseActivation(t *testing.T) {
	a, err := ParseActivation("TANH")
	require.NoError(t, err)
	assert.Equal(t, "tanh", a.Name())

	_, err = ParseActivation("swish-ish")
	assert.Error(t, err)

	assert.Equal(t, 6.0, MustActivation("relu6").Apply(10))
	assert.Equal(t, 0.0, MustActivation("relu").Apply(-1))
}
