package nn

import (
	"math"
	"math/rand"

	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// newRNG returns a deterministic generator for seed. A nil seed draws a
// fresh one.
func newRNG(seed *int64) *rand.Rand {
	if seed == nil {
		//nolint:gosec // Using math/rand for weight initialization (not security-critical)
		return rand.New(rand.NewSource(rand.Int63()))
	}
	//nolint:gosec // Using math/rand for weight initialization (not security-critical)
	return rand.New(rand.NewSource(*seed))
}

// Normal fills a tensor with N(0, std²) draws from rng.
func Normal(rng *rand.Rand, std float64, shape ...int) *tensor.RawTensor {
	t := tensor.Zeros(shape...)
	data := t.Data()
	for i := range data {
		data[i] = rng.NormFloat64() * std
	}
	return t
}

// layerInit draws the initial w ~ N(0, 1/(num_in+num_out)), b and idt of a layer.
func layerInit(rng *rand.Rand, numIn, numOut int, bias, timestep bool) (w, b, idt *tensor.RawTensor) {
	w = Normal(rng, 1/math.Sqrt(float64(numIn+numOut)), numIn, numOut)
	if bias {
		b = Normal(rng, 1, numOut)
	}
	if timestep {
		idt = Normal(rng, 0.1, numOut)
		for i := range idt.Data() {
			idt.Data()[i] += 0.1
		}
	}
	return w, b, idt
}

// ChildSeed derives the seed of the i-th sub-network from a parent seed.
// A nil parent stays nil.
func ChildSeed(seed *int64, i int) *int64 {
	if seed == nil {
		return nil
	}
	s := *seed*1000003 + int64(i) + 1
	return &s
}
