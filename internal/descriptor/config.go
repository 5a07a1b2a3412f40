package descriptor

import (
	"fmt"

	"github.com/Yi-FanLi/deepmd-kit/internal/nn"
	"github.com/Yi-FanLi/deepmd-kit/internal/serialization"
)

// seConfig holds the hyperparameters shared by the smooth-edition
// descriptors.
type seConfig struct {
	Rcut          float64
	RcutSmth      float64
	Sel           []int
	Neuron        []int
	AxisNeuron    int
	ResnetDt      bool
	TypeOneSide   bool
	ExcludeTypes  [][2]int
	EnvProtection float64
	SetDavgZero   bool
	Activation    string
	Precision     string
	Trainable     bool
	Seed          *int64
	TypeMap       []string
}

func (c seConfig) ntypes() int { return len(c.Sel) }

func (c seConfig) nnei() int {
	n := 0
	for _, s := range c.Sel {
		n += s
	}
	return n
}

func (c seConfig) ng() int { return c.Neuron[len(c.Neuron)-1] }

func invalidConfig(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
}

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
}

// parseSeConfig reads the keys of a smooth-edition configuration or
// serialized payload. Keys that do not apply to the variant are ignored.
func parseSeConfig(d serialization.Dict) (seConfig, error) {
	c := seConfig{AxisNeuron: 8, TypeOneSide: true, Trainable: true}
	var err error
	if c.Rcut, err = d.Float("rcut"); err != nil {
		return c, invalidConfig(err)
	}
	if c.RcutSmth, err = d.Float("rcut_smth"); err != nil {
		return c, invalidConfig(err)
	}
	if c.Sel, err = d.Ints("sel"); err != nil {
		return c, fmt.Errorf("%w: %w (run update_sel to resolve \"auto\")", ErrInvalidConfig, err)
	}
	if c.Neuron, err = d.IntsOr("neuron", []int{24, 48, 96}); err != nil {
		return c, invalidConfig(err)
	}
	if c.AxisNeuron, err = d.IntOr("axis_neuron", c.AxisNeuron); err != nil {
		return c, invalidConfig(err)
	}
	if c.ResnetDt, err = d.BoolOr("resnet_dt", false); err != nil {
		return c, invalidConfig(err)
	}
	if c.TypeOneSide, err = d.BoolOr("type_one_side", c.TypeOneSide); err != nil {
		return c, invalidConfig(err)
	}
	if c.ExcludeTypes, err = d.IntPairs("exclude_types"); err != nil {
		return c, invalidConfig(err)
	}
	if c.EnvProtection, err = d.FloatOr("env_protection", 0); err != nil {
		return c, invalidConfig(err)
	}
	if c.SetDavgZero, err = d.BoolOr("set_davg_zero", false); err != nil {
		return c, invalidConfig(err)
	}
	if c.Activation, err = d.StringOr("activation_function", "tanh"); err != nil {
		return c, invalidConfig(err)
	}
	if c.Precision, err = d.StringOr("precision", "default"); err != nil {
		return c, invalidConfig(err)
	}
	if c.Trainable, err = d.BoolOr("trainable", true); err != nil {
		return c, invalidConfig(err)
	}
	if d.Has("seed") && d["seed"] != nil {
		seed, err := d.Int("seed")
		if err != nil {
			return c, invalidConfig(err)
		}
		s := int64(seed)
		c.Seed = &s
	}
	if c.TypeMap, err = d.StringsOr("type_map", nil); err != nil {
		return c, invalidConfig(err)
	}
	return c, c.validate()
}

func (c seConfig) validate() error {
	if c.Rcut <= 0 {
		return configErr("rcut must be positive, got %g", c.Rcut)
	}
	if c.RcutSmth < 0 || c.RcutSmth > c.Rcut {
		return configErr("rcut_smth must lie in [0, rcut], got %g", c.RcutSmth)
	}
	if len(c.Sel) == 0 {
		return configErr("sel must not be empty")
	}
	for i, s := range c.Sel {
		if s < 0 {
			return configErr("sel[%d] must not be negative, got %d", i, s)
		}
	}
	if len(c.Neuron) == 0 {
		return configErr("neuron must not be empty")
	}
	if c.TypeMap != nil && len(c.TypeMap) != c.ntypes() {
		return configErr("type_map %v has %d types but sel has %d", c.TypeMap, len(c.TypeMap), c.ntypes())
	}
	for _, p := range c.ExcludeTypes {
		if p[0] < 0 || p[0] >= c.ntypes() || p[1] < 0 || p[1] >= c.ntypes() {
			return configErr("exclude_types pair %v out of range for %d types", p, c.ntypes())
		}
	}
	if err := nn.CheckPrecision(c.Precision); err != nil {
		return invalidConfig(err)
	}
	return nil
}

func excludeTypesValue(pairs [][2]int) []any {
	out := make([]any, len(pairs))
	for i, p := range pairs {
		out[i] = []int{p[0], p[1]}
	}
	return out
}

func seedValue(seed *int64) any {
	if seed == nil {
		return nil
	}
	return int(*seed)
}

func typeMapValue(tm []string) any {
	if tm == nil {
		return nil
	}
	return append([]string(nil), tm...)
}
