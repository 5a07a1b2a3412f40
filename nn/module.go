// Copyright 2025 DeePMD-kit developers. All rights reserved.
// Use of this source code is governed by an LGPL-3.0-or-later
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/Yi-FanLi/deepmd-kit/internal/nn"
	"github.com/Yi-FanLi/deepmd-kit/internal/serialization"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// Module is the interface shared by every network.
type Module = nn.Module

// Network is a serializable Module with tabulation support.
type Network = nn.Network

// NetworkCollection holds one network per type index.
type NetworkCollection = nn.NetworkCollection

// Network types stored in a NetworkCollection.
const (
	EmbeddingNetworkType = nn.EmbeddingNetworkType
	FittingNetworkType   = nn.FittingNetworkType
)

// NewNetworkCollection creates an empty collection indexed by ndim type
// indices.
func NewNetworkCollection(ndim, ntypes int, networkType string) (*NetworkCollection, error) {
	return nn.NewNetworkCollection(ndim, ntypes, networkType)
}

// DeserializeNetworkCollection rebuilds a collection on backend b. The
// networks are named name+".networks."+index.
func DeserializeNetworkCollection(b tensor.Backend, name string, d map[string]any) (*NetworkCollection, error) {
	return nn.DeserializeNetworkCollection(b, name, serialization.Dict(d))
}
