package nn

import (
	"fmt"
	"strconv"

	"github.com/Yi-FanLi/deepmd-kit/internal/serialization"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// Network types stored in a NetworkCollection.
const (
	EmbeddingNetworkType = "embedding_network"
	FittingNetworkType   = "fitting_network"
)

// Network is a serializable Module.
type Network interface {
	Module
	Serialize() serialization.Dict
	Derivatives(xs []float64) (y, dy, d2y *tensor.RawTensor, err error)
	InDim() int
	OutDim() int
}

// NetworkCollection holds one network per type index. With ndim 0 a single
// network is shared by all types; with ndim 1 there is one network per
// type; with ndim 2 one per ordered type pair, flattened row-major.
type NetworkCollection struct {
	ndim        int
	ntypes      int
	networkType string
	networks    []Network
}

// NewNetworkCollection creates an empty collection.
func NewNetworkCollection(ndim, ntypes int, networkType string) (*NetworkCollection, error) {
	if ndim < 0 || ndim > 2 {
		return nil, fmt.Errorf("network collection: ndim must be 0, 1 or 2, got %d", ndim)
	}
	switch networkType {
	case EmbeddingNetworkType, FittingNetworkType:
	default:
		return nil, fmt.Errorf("network collection: unknown network type %q", networkType)
	}
	size := 1
	for i := 0; i < ndim; i++ {
		size *= ntypes
	}
	return &NetworkCollection{
		ndim:        ndim,
		ntypes:      ntypes,
		networkType: networkType,
		networks:    make([]Network, size),
	}, nil
}

// Ndim returns the number of type indices.
func (c *NetworkCollection) Ndim() int { return c.ndim }

// Ntypes returns the number of atom types.
func (c *NetworkCollection) Ntypes() int { return c.ntypes }

// Len returns the number of slots.
func (c *NetworkCollection) Len() int { return len(c.networks) }

func (c *NetworkCollection) index(types []int) (int, error) {
	if len(types) != c.ndim {
		return 0, fmt.Errorf("network collection: need %d type indices, got %d", c.ndim, len(types))
	}
	idx := 0
	for _, t := range types {
		if t < 0 || t >= c.ntypes {
			return 0, fmt.Errorf("network collection: type %d out of range [0, %d)", t, c.ntypes)
		}
		idx = idx*c.ntypes + t
	}
	return idx, nil
}

// Get returns the network for types, or nil when the slot is empty.
func (c *NetworkCollection) Get(types ...int) Network {
	idx, err := c.index(types)
	if err != nil {
		panic(err)
	}
	return c.networks[idx]
}

// Set stores n for types.
func (c *NetworkCollection) Set(n Network, types ...int) error {
	idx, err := c.index(types)
	if err != nil {
		return err
	}
	c.networks[idx] = n
	return nil
}

// At returns the network in flat slot i.
func (c *NetworkCollection) At(i int) Network {
	return c.networks[i]
}

// SetAt stores n in flat slot i.
func (c *NetworkCollection) SetAt(i int, n Network) {
	c.networks[i] = n
}

// Parameters returns the parameters of every stored network.
func (c *NetworkCollection) Parameters() []*Parameter {
	var params []*Parameter
	for _, n := range c.networks {
		if n != nil {
			params = append(params, n.Parameters()...)
		}
	}
	return params
}

// Remap returns a collection over a new type list. mapping[i] is the old
// type index of new type i, or -1 for a type the collection has never
// seen; fresh(types) supplies networks for those slots (it may return nil
// to leave the slot empty).
func (c *NetworkCollection) Remap(mapping []int, fresh func(types []int) (Network, error)) (*NetworkCollection, error) {
	out, err := NewNetworkCollection(c.ndim, len(mapping), c.networkType)
	if err != nil {
		return nil, err
	}
	for slot := range out.networks {
		types := make([]int, c.ndim)
		rem := slot
		for d := c.ndim - 1; d >= 0; d-- {
			types[d] = rem % len(mapping)
			rem /= len(mapping)
		}
		oldTypes := make([]int, c.ndim)
		known := true
		for d, t := range types {
			oldTypes[d] = mapping[t]
			if mapping[t] < 0 {
				known = false
			}
		}
		if known {
			out.networks[slot] = c.Get(oldTypes...)
			continue
		}
		n, err := fresh(types)
		if err != nil {
			return nil, err
		}
		out.networks[slot] = n
	}
	return out, nil
}

// Serialize returns the collection as a Dict. Empty slots serialize as nil.
func (c *NetworkCollection) Serialize() serialization.Dict {
	nets := make([]any, len(c.networks))
	for i, n := range c.networks {
		if n != nil {
			nets[i] = n.Serialize()
		}
	}
	return serialization.Dict{
		serialization.KeyClass:   "NetworkCollection",
		serialization.KeyVersion: 1,
		"ndim":                   c.ndim,
		"ntypes":                 c.ntypes,
		"network_type":           c.networkType,
		"networks":               nets,
	}
}

// DeserializeNetworkCollection rebuilds a collection on backend b.
func DeserializeNetworkCollection(b tensor.Backend, name string, d serialization.Dict) (*NetworkCollection, error) {
	if err := serialization.CheckVersion(d, 1, 1); err != nil {
		return nil, err
	}
	if err := serialization.CheckClass(d, "NetworkCollection"); err != nil {
		return nil, err
	}
	ndim, err := d.Int("ndim")
	if err != nil {
		return nil, err
	}
	ntypes, err := d.Int("ntypes")
	if err != nil {
		return nil, err
	}
	networkType, err := d.String("network_type")
	if err != nil {
		return nil, err
	}
	c, err := NewNetworkCollection(ndim, ntypes, networkType)
	if err != nil {
		return nil, err
	}
	raw, err := d.Get("networks")
	if err != nil {
		return nil, err
	}
	list, ok := raw.([]any)
	if !ok || len(list) != len(c.networks) {
		return nil, fmt.Errorf("%w: networks should be a list of %d entries", serialization.ErrTypeMismatch, len(c.networks))
	}
	for i, e := range list {
		if e == nil {
			continue
		}
		nd, ok := serialization.AsDict(e)
		if !ok {
			return nil, fmt.Errorf("%w: network %d should be a dictionary", serialization.ErrTypeMismatch, i)
		}
		netName := name + ".networks." + strconv.Itoa(i)
		var n Network
		switch networkType {
		case EmbeddingNetworkType:
			n, err = DeserializeEmbeddingNet(b, netName, nd)
		case FittingNetworkType:
			n, err = DeserializeFittingNet(b, netName, nd)
		}
		if err != nil {
			return nil, fmt.Errorf("network %d: %w", i, err)
		}
		c.networks[i] = n
	}
	return c, nil
}
