// Copyright 2025 DeePMD-kit developers. All rights reserved.
// Use of this source code is governed by an LGPL-3.0-or-later
// license that can be found in the LICENSE file.

// Package cpu provides the plain array backend.
//
// It evaluates every operation eagerly on float64 slices and tracks no
// gradients. Serialized models are converted to it with the "cpu", "numpy"
// or "dp" backend names.
//
// Example:
//
//	b := cpu.New()
//	d, err := descriptor.Deserialize(b, payload)
package cpu
