// Package descriptor defines the descriptor contract, the "descriptor"
// plugin registry and the smooth-edition descriptors se_e2_a, se_e2_r and
// se_e3.
//
// A descriptor turns the neighborhood of every local atom into a fixed
// size feature row. Construction and deserialization dispatch on the
// "type" tag through the registry, so a model serialized by one backend is
// rebuilt on any other.
package descriptor

import (
	"errors"
	"fmt"

	"github.com/Yi-FanLi/deepmd-kit/internal/data"
	"github.com/Yi-FanLi/deepmd-kit/internal/dpath"
	"github.com/Yi-FanLi/deepmd-kit/internal/env"
	"github.com/Yi-FanLi/deepmd-kit/internal/nn"
	"github.com/Yi-FanLi/deepmd-kit/internal/plugin"
	"github.com/Yi-FanLi/deepmd-kit/internal/serialization"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

var (
	// ErrStatsNotSupported is returned by descriptors without input statistics.
	ErrStatsNotSupported = errors.New("descriptor does not support computing input statistics")

	// ErrCompressionNotSupported is returned by descriptors without compression.
	ErrCompressionNotSupported = errors.New("descriptor doesn't support compression")

	// ErrNotSupported is returned for unsupported operations and options.
	ErrNotSupported = errors.New("not supported")

	// ErrStatisticsMissing is returned by Forward before statistics are set.
	ErrStatisticsMissing = errors.New("descriptor statistics are missing: call ComputeInputStats or SetStatMeanAndStddev first")

	// ErrInvalidConfig is returned for a malformed descriptor configuration.
	ErrInvalidConfig = errors.New("invalid descriptor configuration")

	// ErrCompressed is returned when compression is enabled twice.
	ErrCompressed = errors.New("compression is already enabled")
)

// Output is the result of Descriptor.Forward.
type Output struct {
	Descriptor *tensor.RawTensor // [nf, nloc, dim_out]
	Rot        *tensor.RawTensor // [nf, nloc, dim_emb, 3], nil for invariant-only descriptors
	G2         *tensor.RawTensor // pair representation, nil when unused
	H2         *tensor.RawTensor // pair-wise rotation, nil when unused
	Sw         *tensor.RawTensor // [nf, nloc, nnei] smooth switch
}

// Descriptor is the contract every descriptor variant implements.
type Descriptor interface {
	// Type returns the canonical registry tag.
	Type() string

	GetRcut() float64
	GetRcutSmth() float64
	GetSel() []int
	// GetNsel returns sum(GetSel()).
	GetNsel() int
	GetNnei() int
	GetNtypes() int
	GetTypeMap() []string
	GetDimOut() int
	GetDimEmb() int
	MixedTypes() bool
	HasMessagePassing() bool
	NeedSortedNlistForLower() bool
	GetEnvProtection() float64

	// ComputeInputStats computes mean and stddev of the environment
	// matrix. merged is only called when no cached statistics exist under
	// path; freshly computed statistics are written to path. path may be nil.
	ComputeInputStats(merged data.Sampler, path *dpath.Path) error
	// GetStats returns the raw statistics items.
	GetStats() (map[string]env.StatItem, error)
	SetStatMeanAndStddev(mean, stddev *tensor.RawTensor) error
	GetStatMeanAndStddev() (mean, stddev *tensor.RawTensor, err error)

	// EnableCompression replaces the embedding networks by tabulated
	// quintic interpolants. See DefaultCompression for the usual settings.
	EnableCompression(minNborDist, tableExtrapolate, tableStride1, tableStride2 float64, checkFrequency int) error

	// Forward computes the descriptor of the nloc local atoms.
	// coordExt is [nf, nall*3], atypeExt [nf, nall], nlist [nf, nloc, nnei]
	// and mapping [nf, nall] (may be nil).
	Forward(coordExt *tensor.RawTensor, atypeExt, nlist, mapping *tensor.IntTensor) (*Output, error)

	// ShareParams links the embeddings and statistics of base into the
	// receiver. Only level 0 is supported.
	ShareParams(base Descriptor, sharedLevel int, resume bool) error
	// ChangeTypeMap remaps every type-indexed quantity onto typeMap.
	// Statistics of new types come from donor when given.
	ChangeTypeMap(typeMap []string, donor Descriptor) error

	Serialize() (serialization.Dict, error)
	// Hash identifies the statistics-relevant configuration.
	Hash() string
	Parameters() []*nn.Parameter
}

// DefaultCompression returns the default table settings: extrapolate 5,
// strides 0.01 and 0.1, no overflow check.
func DefaultCompression() (tableExtrapolate, tableStride1, tableStride2 float64, checkFrequency int) {
	return 5, 0.01, 0.1, -1
}

// Plugin is the registry entry of a descriptor variant.
type Plugin struct {
	New         func(b tensor.Backend, cfg serialization.Dict) (Descriptor, error)
	Deserialize func(b tensor.Backend, d serialization.Dict) (Descriptor, error)
	// UpdateSel fills in the neighbor selection of a configuration from
	// the training data. It returns the updated copy and the minimal
	// neighbor distance.
	UpdateSel func(train data.DataSystem, typeMap []string, local serialization.Dict) (serialization.Dict, float64, error)
}

var registry = plugin.NewRegistry[Plugin]("descriptor")

// Register adds a descriptor variant under tag and aliases. It panics if
// a tag is taken.
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

func lookup(cfg serialization.Dict) (Plugin, error) {
	tag, err := plugin.JGetType(cfg, "descriptor")
	if err != nil {
		return Plugin{}, err
	}
	return registry.Get(tag)
}

// New builds the descriptor selected by cfg["type"] on backend b.
func New(b tensor.Backend, cfg map[string]any) (Descriptor, error) {
	p, err := lookup(cfg)
	if err != nil {
		return nil, err
	}
	if p.New == nil {
		return nil, fmt.Errorf("%w: descriptor %v cannot be constructed", ErrNotSupported, cfg["type"])
	}
	return p.New(b, cfg)
}

// Deserialize rebuilds the descriptor selected by d["type"] on backend b.
func Deserialize(b tensor.Backend, d serialization.Dict) (Descriptor, error) {
	p, err := lookup(d)
	if err != nil {
		return nil, err
	}
	if p.Deserialize == nil {
		return nil, fmt.Errorf("%w: descriptor %v cannot be deserialized", ErrNotSupported, d["type"])
	}
	return p.Deserialize(b, d)
}

// UpdateSel dispatches to the update_sel of local["type"].
func UpdateSel(train data.DataSystem, typeMap []string, local map[string]any) (map[string]any, float64, error) {
	p, err := lookup(local)
	if err != nil {
		return nil, 0, err
	}
	if p.UpdateSel == nil {
		return local, 0, nil
	}
	out, minDist, err := p.UpdateSel(train, typeMap, local)
	if err != nil {
		return nil, 0, err
	}
	return out, minDist, nil
}

// Base supplies the optional operations of Descriptor for variants that
// do not implement them.
type Base struct{}

// HasMessagePassing returns false.
func (Base) HasMessagePassing() bool { return false }

// NeedSortedNlistForLower returns false.
func (Base) NeedSortedNlistForLower() bool { return false }

// ComputeInputStats returns ErrStatsNotSupported.
func (Base) ComputeInputStats(data.Sampler, *dpath.Path) error { return ErrStatsNotSupported }

// GetStats returns ErrStatsNotSupported.
func (Base) GetStats() (map[string]env.StatItem, error) { return nil, ErrStatsNotSupported }

// EnableCompression returns ErrCompressionNotSupported.
func (Base) EnableCompression(float64, float64, float64, float64, int) error {
	return ErrCompressionNotSupported
}

// ShareParams returns ErrNotSupported.
func (Base) ShareParams(Descriptor, int, bool) error {
	return fmt.Errorf("%w: share_params", ErrNotSupported)
}

// ChangeTypeMap returns ErrNotSupported.
func (Base) ChangeTypeMap([]string, Descriptor) error {
	return fmt.Errorf("%w: change_type_map", ErrNotSupported)
}
