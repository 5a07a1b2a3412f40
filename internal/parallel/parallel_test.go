package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.NumWorkers = 4

	var counter int64
	n := 1000
	seen := make([]int32, n)

	For(n, func(i int) {
		atomic.AddInt64(&counter, 1)
		atomic.AddInt32(&seen[i], 1)
	}, cfg)

	assert.Equal(t, int64(n), counter)
	for i, c := range seen {
		assert.Equal(t, int32(1), c, "index %d", i)
	}
}

func TestForAtoms(t *testing.T) {
	cfg := DefaultConfig()

	nframes, nloc := 4, 8
	results := make([][]bool, nframes)
	for f := range results {
		results[f] = make([]bool, nloc)
	}

	ForAtoms(nframes, nloc, func(f, a int) {
		results[f][a] = true
	}, cfg)

	for f := 0; f < nframes; f++ {
		for a := 0; a < nloc; a++ {
			assert.True(t, results[f][a], "missing [%d][%d]", f, a)
		}
	}
}

func TestForAtoms_NoAtoms(t *testing.T) {
	called := false
	ForAtoms(3, 0, func(_, _ int) { called = true }, DefaultConfig())
	assert.False(t, called)
}

func TestFor_Sequential(t *testing.T) {
	var order []int
	For(5, func(i int) {
		order = append(order, i)
	}, Sequential())
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestFor_SmallChunk(t *testing.T) {
	cfg := DefaultConfig()

	var counter int64
	n := cfg.MinChunkSize - 1

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	assert.Equal(t, int64(n), counter)
}

func BenchmarkForAtoms(b *testing.B) {
	cfg := DefaultConfig()
	nframes, nloc := 16, 192

	b.Run("parallel", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var sum int64
			ForAtoms(nframes, nloc, func(f, a int) {
				atomic.AddInt64(&sum, int64(f*nloc+a))
			}, cfg)
		}
	})

	b.Run("sequential", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var sum int64
			ForAtoms(nframes, nloc, func(f, a int) {
				atomic.AddInt64(&sum, int64(f*nloc+a))
			}, Sequential())
		}
	})
}
