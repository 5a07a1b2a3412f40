package descriptor

import (
	"github.com/Yi-FanLi/deepmd-kit/internal/data"
	"github.com/Yi-FanLi/deepmd-kit/internal/dpath"
	"github.com/Yi-FanLi/deepmd-kit/internal/env"
	"github.com/Yi-FanLi/deepmd-kit/internal/logging"
)

// ComputeInputStats computes davg and dstd from the sampled frames, or
// loads the statistics items cached under path/<hash>.
func (s *se) ComputeInputStats(merged data.Sampler, path *dpath.Path) error {
	stat := newEnvStat(s)
	if path != nil {
		path = path.Join(s.Hash())
	}
	if err := stat.LoadOrCompute(merged, path); err != nil {
		return err
	}
	return s.installStat(stat)
}

func (s *se) installStat(stat *env.EnvMatStat) error {
	davg, dstd, err := stat.MeanStd(s.cfg.SetDavgZero)
	if err != nil {
		return err
	}
	s.stat.envStat = stat
	s.assignStats(davg, dstd)
	logging.L().Debug("descriptor statistics set",
		logging.String("type", s.typ),
		logging.Int("ntypes", s.cfg.ntypes()),
		logging.Bool("set_davg_zero", s.cfg.SetDavgZero))
	return nil
}

func newEnvStat(s *se) *env.EnvMatStat {
	return env.NewEnvMatStat(s.envMat(), s.cfg.ntypes(), s.cfg.Sel, s.radialOnly, s.emask)
}
