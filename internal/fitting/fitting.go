// Package fitting defines the fitting contract, the "fitting" plugin
// registry and the fitting heads invar, ener and dipole.
//
// A fitting maps descriptor rows, plus optional frame parameters (fparam)
// and atomic parameters (aparam), to named per-atom properties.
package fitting

import (
	"errors"
	"fmt"

	"github.com/Yi-FanLi/deepmd-kit/internal/data"
	"github.com/Yi-FanLi/deepmd-kit/internal/nn"
	"github.com/Yi-FanLi/deepmd-kit/internal/plugin"
	"github.com/Yi-FanLi/deepmd-kit/internal/serialization"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

var (
	// ErrInvalidConfig is returned for a malformed fitting configuration.
	ErrInvalidConfig = errors.New("invalid fitting configuration")

	// ErrUnknownKey is returned by Get and Set for an unknown variable.
	ErrUnknownKey = errors.New("unknown fitting variable")

	// ErrNotSupported is returned for unsupported operations.
	ErrNotSupported = errors.New("not supported")
)

// ValidationError reports a Forward argument whose shape does not match
// the fitting. Arg is "input descriptor", "input fparam", "input aparam",
// "input atype" or "input gr".
type ValidationError struct {
	Arg     string
	Details string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Arg, e.Details)
}

// Unwrap allows errors.Is(err, tensor.ErrShapeMismatch).
func (e *ValidationError) Unwrap() error {
	return tensor.ErrShapeMismatch
}

func invalid(arg, format string, args ...any) error {
	return &ValidationError{Arg: arg, Details: fmt.Sprintf(format, args...)}
}

// Input holds the Forward arguments. Only Descriptor and Atype are always
// required.
type Input struct {
	Descriptor *tensor.RawTensor // [nf, nloc, dim_descrpt]
	Atype      *tensor.IntTensor // [nf, nloc]
	Gr         *tensor.RawTensor // [nf, nloc, dim_emb, 3] rotation matrix
	G2         *tensor.RawTensor
	H2         *tensor.RawTensor
	Fparam     *tensor.RawTensor // [nf, numb_fparam]
	Aparam     *tensor.RawTensor // [nf, nloc, numb_aparam]
}

// OutputVariableDef describes one per-atom output.
type OutputVariableDef struct {
	Name      string
	Shape     []int
	Reducible bool
	// RDifferentiable and CDifferentiable tell whether force and virial
	// are derived from the reduced output.
	RDifferentiable bool
	CDifferentiable bool
}

// Fitting is the contract every fitting head implements.
type Fitting interface {
	// Type returns the canonical registry tag.
	Type() string

	GetDimDescrpt() int
	GetDimFparam() int
	GetDimAparam() int
	GetNtypes() int
	GetTypeMap() []string
	// GetSelType returns the types that are not excluded.
	GetSelType() []int
	MixedTypes() bool
	OutputDef() []OutputVariableDef

	// Forward validates the input shapes and computes the outputs named by
	// OutputDef, each [nf, nloc, shape...].
	Forward(in Input) (map[string]*tensor.RawTensor, error)

	// Set and Get access bias_atom_e, fparam_avg, fparam_inv_std,
	// aparam_avg and aparam_inv_std.
	Set(key string, value *tensor.RawTensor) error
	Get(key string) (*tensor.RawTensor, error)

	// ComputeInputStats computes the fparam and aparam normalization.
	// Standard deviations below protection are raised to protection.
	ComputeInputStats(merged data.Sampler, protection float64) error
	// ChangeTypeMap remaps biases, networks and exclusions onto typeMap.
	ChangeTypeMap(typeMap []string, donor Fitting) error

	Serialize() (serialization.Dict, error)
	Parameters() []*nn.Parameter
}

// Plugin is the registry entry of a fitting variant.
type Plugin struct {
	New         func(b tensor.Backend, cfg serialization.Dict) (Fitting, error)
	Deserialize func(b tensor.Backend, d serialization.Dict) (Fitting, error)
}

var registry = plugin.NewRegistry[Plugin]("fitting")

// Register adds a fitting variant under tag and aliases.
func Register(tag string, p Plugin, aliases ...string) {
	registry.MustRegister(tag, p, aliases...)
}

// GetClassByType returns the plugin registered under tag.
func GetClassByType(tag string) (Plugin, error) {
	return registry.Get(tag)
}

// Types returns the registered tags.
func Types() []string {
	return registry.Tags()
}

func lookup(cfg map[string]any) (Plugin, error) {
	tag, err := plugin.JGetType(cfg, "fitting")
	if err != nil {
		return Plugin{}, err
	}
	return registry.Get(tag)
}

// New builds the fitting selected by cfg["type"] on backend b.
func New(b tensor.Backend, cfg map[string]any) (Fitting, error) {
	p, err := lookup(cfg)
	if err != nil {
		return nil, err
	}
	if p.New == nil {
		return nil, fmt.Errorf("%w: fitting %v cannot be constructed", ErrNotSupported, cfg["type"])
	}
	return p.New(b, cfg)
}

// Deserialize rebuilds the fitting selected by d["type"] on backend b.
func Deserialize(b tensor.Backend, d serialization.Dict) (Fitting, error) {
	p, err := lookup(d)
	if err != nil {
		return nil, err
	}
	if p.Deserialize == nil {
		return nil, fmt.Errorf("%w: fitting %v cannot be deserialized", ErrNotSupported, d["type"])
	}
	return p.Deserialize(b, d)
}
