package descriptor

import (
	"fmt"
	"strconv"

	"github.com/Yi-FanLi/deepmd-kit/internal/env"
	"github.com/Yi-FanLi/deepmd-kit/internal/nn"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// statSource is the part of a descriptor a type map change reads.
type statSource interface {
	GetTypeMap() []string
	GetSel() []int
	GetNnei() int
	GetStatMeanAndStddev() (*tensor.RawTensor, *tensor.RawTensor, error)
	GetStats() (map[string]env.StatItem, error)
}

// typeSource reads per-type statistics of a descriptor by type name.
type typeSource struct {
	index map[string]int
	sel   []int
	sec   []int
	nnei  int
	davg  []float64
	dstd  []float64
	items map[string]env.StatItem
}

func newTypeSource(d statSource) (*typeSource, error) {
	tm := d.GetTypeMap()
	if tm == nil {
		return nil, fmt.Errorf("%w: type map change needs a type_map", ErrNotSupported)
	}
	src := &typeSource{index: make(map[string]int, len(tm)), sel: d.GetSel(), nnei: d.GetNnei()}
	for i, name := range tm {
		src.index[name] = i
	}
	src.sec = make([]int, len(src.sel)+1)
	for i, n := range src.sel {
		src.sec[i+1] = src.sec[i] + n
	}
	if mean, std, err := d.GetStatMeanAndStddev(); err == nil {
		src.davg, src.dstd = mean.Data(), std.Data()
	}
	if items, err := d.GetStats(); err == nil {
		src.items = items
	}
	return src, nil
}

// value returns the statistics of center type ci at neighbor slot j of
// block cj. Slots beyond the source block repeat its last slot; a missing
// block falls back to the last slot of the row.
func (src *typeSource) value(ci, cj, j, last int) (mean, std []float64, ok bool) {
	if src.davg == nil || ci < 0 || src.nnei == 0 {
		return nil, nil, false
	}
	slot := src.nnei - 1
	if cj >= 0 && src.sel[cj] > 0 {
		slot = src.sec[cj] + min(j, src.sel[cj]-1)
	}
	off := (ci*src.nnei + slot) * last
	return src.davg[off : off+last], src.dstd[off : off+last], true
}

// ChangeTypeMap remaps the selection, statistics, embeddings and
// exclusions onto typeMap. New types without a donor get max(sel), zero
// mean and unit stddev.
func (s *se) ChangeTypeMap(typeMap []string, donor Descriptor) error {
	if s.compress != nil {
		return ErrCompressed
	}
	old, err := newTypeSource(s)
	if err != nil {
		return err
	}
	var extra *typeSource
	if donor != nil {
		if extra, err = newTypeSource(donor); err != nil {
			return fmt.Errorf("donor: %w", err)
		}
	}

	maxSel := 0
	for _, n := range s.cfg.Sel {
		maxSel = max(maxSel, n)
	}
	nt := len(typeMap)
	mapping := make([]int, nt)
	donorIdx := make([]int, nt)
	sel := make([]int, nt)
	for i, name := range typeMap {
		mapping[i], donorIdx[i] = -1, -1
		if o, ok := old.index[name]; ok {
			mapping[i] = o
			sel[i] = s.cfg.Sel[o]
			continue
		}
		sel[i] = maxSel
		if extra != nil {
			if o, ok := extra.index[name]; ok {
				donorIdx[i] = o
				sel[i] = extra.sel[o]
			}
		}
	}

	last := s.last()
	nnei := 0
	for _, n := range sel {
		nnei += n
	}
	davg := tensor.Zeros(nt, nnei, last)
	dstd := tensor.Full(1, nt, nnei, last)
	for ci := 0; ci < nt; ci++ {
		pos := 0
		for cj := 0; cj < nt; cj++ {
			for j := 0; j < sel[cj]; j++ {
				mean, std, ok := old.value(mapping[ci], mapping[cj], j, last)
				if !ok && extra != nil {
					mean, std, ok = extra.value(donorIdx[ci], donorIdx[cj], j, last)
				}
				if ok {
					off := (ci*nnei + pos) * last
					copy(davg.Data()[off:off+last], mean)
					copy(dstd.Data()[off:off+last], std)
				}
				pos++
			}
		}
	}

	var items map[string]env.StatItem
	if old.items != nil {
		items = make(map[string]env.StatItem)
		for i := 0; i < nt; i++ {
			for _, prefix := range []string{"r_", "a_"} {
				newKey := prefix + strconv.Itoa(i)
				if mapping[i] >= 0 {
					if v, ok := old.items[prefix+strconv.Itoa(mapping[i])]; ok {
						items[newKey] = v
					}
				} else if donorIdx[i] >= 0 && extra.items != nil {
					if v, ok := extra.items[prefix+strconv.Itoa(donorIdx[i])]; ok {
						items[newKey] = v
					}
				}
			}
		}
	}

	cfg := s.cfg
	cfg.Sel = sel
	cfg.TypeMap = append([]string(nil), typeMap...)
	fresh := *s
	fresh.cfg = cfg
	embeddings, err := s.embeddings.Remap(mapping, func(types []int) (nn.Network, error) {
		slot := 0
		for _, t := range types {
			slot = slot*nt + t
		}
		return fresh.freshEmbedding(slot)
	})
	if err != nil {
		return err
	}

	wasSet := s.stat.set
	s.cfg = cfg
	s.emask = s.emask.Remap(mapping)
	s.cfg.ExcludeTypes = s.emask.ExcludeTypes()
	s.embeddings = embeddings
	s.stat = &statState{}
	s.assignStats(davg, dstd)
	s.stat.set = wasSet
	if items != nil {
		stat := newEnvStat(s)
		stat.SetStats(items)
		s.stat.envStat = stat
	}
	return nil
}
