package data

import (
	"fmt"
	"sync"

	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// Sample is one batch of statistics input: frames of a single system
// stacked along the leading axis.
type Sample struct {
	Coord  *tensor.RawTensor // [nf, nloc*3]
	Atype  *tensor.IntTensor // [nf, nloc]
	Box    *tensor.RawTensor // [nf, 9], nil for open boundaries
	Fparam *tensor.RawTensor // [nf, numb_fparam], nil when absent
	Aparam *tensor.RawTensor // [nf, nloc, numb_aparam], nil when absent
}

// NumFrames returns the batch size.
func (s Sample) NumFrames() int { return s.Coord.Dim(0) }

// NumAtoms returns the number of local atoms per frame.
func (s Sample) NumAtoms() int { return s.Atype.Dim(1) }

// Sampler produces the statistics input. It may be called several times;
// multi-pass statistics rely on it returning the same samples each time.
type Sampler func() ([]Sample, error)

// MakeStatInput packs up to nbatches batches of batchSize frames from every
// system of ds.
func MakeStatInput(ds DataSystem, nbatches, batchSize int) ([]Sample, error) {
	if nbatches <= 0 || batchSize <= 0 {
		return nil, fmt.Errorf("nbatches and batch size must be positive, got %d and %d", nbatches, batchSize)
	}
	var out []Sample
	for si, sys := range ds.Systems() {
		nframes := sys.NumFrames()
		for b := 0; b < nbatches && b*batchSize < nframes; b++ {
			start := b * batchSize
			end := min(start+batchSize, nframes)
			s, err := packFrames(sys, start, end)
			if err != nil {
				return nil, fmt.Errorf("system %d: %w", si, err)
			}
			out = append(out, s)
		}
	}
	return out, nil
}

func packFrames(sys System, start, end int) (Sample, error) {
	nf := end - start
	atype := sys.Atype()
	nloc := len(atype)
	coord := make([]float64, 0, nf*nloc*3)
	types := make([]int, 0, nf*nloc)
	var box, fparam, aparam []float64
	for i := start; i < end; i++ {
		f, err := sys.Frame(i)
		if err != nil {
			return Sample{}, err
		}
		coord = append(coord, f.Coord...)
		types = append(types, atype...)
		if !sys.NoPBC() {
			box = append(box, f.Box...)
		}
		fparam = append(fparam, f.Fparam...)
		aparam = append(aparam, f.Aparam...)
	}
	s := Sample{
		Coord: tensor.MustFromSlice(coord, nf, nloc*3),
		Atype: tensor.MustInt(types, nf, nloc),
	}
	if box != nil {
		s.Box = tensor.MustFromSlice(box, nf, 9)
	}
	if len(fparam) > 0 {
		s.Fparam = tensor.MustFromSlice(fparam, nf, len(fparam)/nf)
	}
	if len(aparam) > 0 && nloc > 0 {
		s.Aparam = tensor.MustFromSlice(aparam, nf, nloc, len(aparam)/(nf*nloc))
	}
	return s, nil
}

// NewSampler returns a Sampler over ds that packs the batches on first use
// and returns the same slice afterwards.
func NewSampler(ds DataSystem, nbatches, batchSize int) Sampler {
	var (
		once    sync.Once
		samples []Sample
		err     error
	)
	return func() ([]Sample, error) {
		once.Do(func() {
			samples, err = MakeStatInput(ds, nbatches, batchSize)
		})
		return samples, err
	}
}

// FromSamples wraps fixed samples in a Sampler.
func FromSamples(samples ...Sample) Sampler {
	return func() ([]Sample, error) { return samples, nil }
}
