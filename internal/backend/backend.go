// Package backend looks compute backends up by name.
//
// The names follow the framework backends a model can be converted to:
// "cpu" (aliases "numpy", "dp") evaluates plain arrays, "autodiff" (alias
// "jax") records a gradient tape and "train" (alias "pytorch") adds a
// parameter store updated by gradient steps.
package backend

import (
	"strings"

	"github.com/Yi-FanLi/deepmd-kit/internal/autodiff"
	"github.com/Yi-FanLi/deepmd-kit/internal/backend/cpu"
	"github.com/Yi-FanLi/deepmd-kit/internal/backend/train"
	"github.com/Yi-FanLi/deepmd-kit/internal/plugin"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// Canonical backend names.
const (
	CPU      = "cpu"
	Autodiff = "autodiff"
	Train    = "train"
)

// Factory creates a fresh backend instance.
type Factory func() tensor.Backend

var registry = plugin.NewRegistry[Factory]("backend")

func init() {
	registry.MustRegister(CPU, func() tensor.Backend { return cpu.New() }, "numpy", "dp")
	registry.MustRegister(Autodiff, func() tensor.Backend {
		b := autodiff.New(cpu.New())
		b.Tape().StartRecording()
		return b
	}, "jax")
	registry.MustRegister(Train, func() tensor.Backend { return train.New() }, "pytorch")
}

// Register adds a backend under name and aliases.
func Register(name string, f Factory, aliases ...string) {
	registry.MustRegister(name, f, aliases...)
}

// New returns a new backend registered under name. Names are
// case-insensitive.
func New(name string) (tensor.Backend, error) {
	f, err := registry.Get(strings.ToLower(name))
	if err != nil {
		return nil, err
	}
	return f(), nil
}

// Names returns every registered name and alias.
func Names() []string {
	return registry.Tags()
}
