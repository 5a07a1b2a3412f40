// Copyright 2025 DeePMD-kit developers. All rights reserved.
// Use of this source code is governed by an LGPL-3.0-or-later
// license that can be found in the LICENSE file.

package tensor

import "github.com/Yi-FanLi/deepmd-kit/internal/tensor"

// Activation is an element-wise activation with its first and second
// derivatives.
type Activation = tensor.Activation

// ParseActivation returns the activation named name ("tanh", "relu",
// "relu6", "softplus", "sigmoid", "gelu", "gelu_tf", "linear" or "none").
func ParseActivation(name string) (Activation, error) {
	return tensor.ParseActivation(name)
}
