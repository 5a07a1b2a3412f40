package cpu

import (
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// broadcastStrides returns the strides that read an array of shape in as
// if it had shape out. Leading and size-1 dimensions get stride 0.
func broadcastStrides(in, out tensor.Shape) []int {
	strides := make([]int, len(out))
	src := in.ComputeStrides()
	lead := len(out) - len(in)
	for i, d := range in {
		if d != 1 {
			strides[lead+i] = src[i]
		}
	}
	return strides
}

// broadcastWalk calls visit(i, ia, ib) for every flat index i of out with
// the matching flat offsets into a and b. The multi-index is advanced like
// an odometer, so no division happens per element.
func broadcastWalk(out tensor.Shape, aStrides, bStrides []int, visit func(i, ia, ib int)) {
	n := out.NumElements()
	ndim := len(out)
	idx := make([]int, ndim)
	ia, ib := 0, 0
	for i := 0; i < n; i++ {
		visit(i, ia, ib)
		for d := ndim - 1; d >= 0; d-- {
			idx[d]++
			ia += aStrides[d]
			ib += bStrides[d]
			if idx[d] < out[d] {
				break
			}
			ia -= aStrides[d] * out[d]
			ib -= bStrides[d] * out[d]
			idx[d] = 0
		}
	}
}
