package descriptor

import (
	"fmt"
	"slices"
)

type seHolder interface {
	state() *se
}

func (s *se) state() *se { return s }

// ShareParams makes the receiver use the embeddings and statistics of
// base. Unless resume is set, the statistics items of both descriptors
// are merged first and base's mean and stddev are recomputed from the
// merged items.
func (s *se) ShareParams(base Descriptor, sharedLevel int, resume bool) error {
	if sharedLevel != 0 {
		return fmt.Errorf("%w: shared_level %d", ErrNotSupported, sharedLevel)
	}
	h, ok := base.(seHolder)
	if !ok || h.state().typ != s.typ {
		return fmt.Errorf("%w: cannot share parameters of %s with %s", ErrNotSupported, base.Type(), s.typ)
	}
	b := h.state()
	if !slices.Equal(b.cfg.Sel, s.cfg.Sel) || !slices.Equal(b.cfg.Neuron, s.cfg.Neuron) {
		return fmt.Errorf("%w: shared descriptors need equal sel and neuron", ErrInvalidConfig)
	}
	if b == s {
		return nil
	}
	if !resume {
		own, err := s.GetStats()
		if err != nil {
			return err
		}
		theirs, err := b.GetStats()
		if err != nil {
			return err
		}
		merged := newEnvStat(b)
		merged.SetStats(theirs)
		merged.Merge(own)
		if err := b.installStat(merged); err != nil {
			return err
		}
	}
	s.stat = b.stat
	s.embeddings = b.embeddings
	return nil
}
