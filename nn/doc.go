// Copyright 2025 DeePMD-kit developers. All rights reserved.
// Use of this source code is governed by an LGPL-3.0-or-later
// license that can be found in the LICENSE file.

// Package nn provides the networks of descriptors and fittings.
//
// # Networks
//
//   - NativeLayer: y = act(x @ w + b) * idt, optionally residual
//   - EmbeddingNet: residual stack mapping neighbor features to embeddings
//   - FittingNet: residual hidden stack plus a linear output layer
//   - NetworkCollection: one network per atom type or ordered type pair
//
// Every array a network owns is named after its path in the model, for
// example "descriptor.embeddings.networks.1.layers.0.w", and converted with
// Backend.Variable once at construction. Training backends expose these
// arrays as Parameters.
//
// # Serialization
//
// Networks serialize to the same dictionary layout on every backend, so a
// network built on the CPU backend can be deserialized on a differentiable
// one:
//
//	net, _ := nn.NewEmbeddingNet(cpu.New(), "emb", nn.EmbeddingNetConfig{
//	    InDim: 1, Neuron: []int{8, 16}, Activation: "tanh", Bias: true,
//	})
//	same, _ := nn.DeserializeEmbeddingNet(autodiff.New(cpu.New()), "emb", net.Serialize())
package nn
