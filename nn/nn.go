// Copyright 2025 DeePMD-kit developers. All rights reserved.
// Use of this source code is governed by an LGPL-3.0-or-later
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/Yi-FanLi/deepmd-kit/internal/nn"
	"github.com/Yi-FanLi/deepmd-kit/internal/serialization"
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// LayerConfig holds the hyperparameters of a NativeLayer.
type LayerConfig = nn.LayerConfig

// NativeLayer is a dense layer with optional timestep and residual.
type NativeLayer = nn.NativeLayer

// NewNativeLayer creates a layer whose parameters are prefixed with name.
func NewNativeLayer(b tensor.Backend, name string, cfg LayerConfig) (*NativeLayer, error) {
	return nn.NewNativeLayer(b, name, cfg)
}

// NativeNet is a stack of NativeLayers.
type NativeNet = nn.NativeNet

// EmbeddingNetConfig holds the hyperparameters of an EmbeddingNet.
type EmbeddingNetConfig = nn.EmbeddingNetConfig

// EmbeddingNet maps per-neighbor inputs to embedding features.
type EmbeddingNet = nn.EmbeddingNet

// NewEmbeddingNet creates an embedding network with fresh parameters.
//
// Example:
//
//	net, err := nn.NewEmbeddingNet(cpu.New(), "emb", nn.EmbeddingNetConfig{
//	    InDim: 1, Neuron: []int{25, 50, 100}, Activation: "tanh", Bias: true,
//	})
func NewEmbeddingNet(b tensor.Backend, name string, cfg EmbeddingNetConfig) (*EmbeddingNet, error) {
	return nn.NewEmbeddingNet(b, name, cfg)
}

// DeserializeEmbeddingNet rebuilds an embedding network on backend b.
func DeserializeEmbeddingNet(b tensor.Backend, name string, d map[string]any) (*EmbeddingNet, error) {
	return nn.DeserializeEmbeddingNet(b, name, serialization.Dict(d))
}

// FittingNetConfig holds the hyperparameters of a FittingNet.
type FittingNetConfig = nn.FittingNetConfig

// FittingNet is a hidden stack followed by a linear output layer.
type FittingNet = nn.FittingNet

// NewFittingNet creates a fitting network with fresh parameters.
func NewFittingNet(b tensor.Backend, name string, cfg FittingNetConfig) (*FittingNet, error) {
	return nn.NewFittingNet(b, name, cfg)
}

// DeserializeFittingNet rebuilds a fitting network on backend b.
func DeserializeFittingNet(b tensor.Backend, name string, d map[string]any) (*FittingNet, error) {
	return nn.DeserializeFittingNet(b, name, serialization.Dict(d))
}
