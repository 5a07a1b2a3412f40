// Copyright 2025 DeePMD-kit developers. All rights reserved.
// Use of this source code is governed by an LGPL-3.0-or-later
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// RawTensor is a dense float64 array with a shape.
//
// Example:
//
//	x := tensor.Zeros(2, 3)
//	x.Set(1.5, 0, 2)
//	y := x.Clone()
type RawTensor = tensor.RawTensor

// IntTensor is a dense integer array. A value of -1 marks padding.
type IntTensor = tensor.IntTensor

// Shape is the list of dimension sizes of a tensor.
type Shape = tensor.Shape

// ErrShapeMismatch is wrapped by every error about incompatible shapes.
var ErrShapeMismatch = tensor.ErrShapeMismatch

// Zeros returns a zero-filled tensor.
func Zeros(shape ...int) *RawTensor { return tensor.Zeros(shape...) }

// Full returns a tensor filled with value.
func Full(value float64, shape ...int) *RawTensor { return tensor.Full(value, shape...) }

// FromSlice copies data into a tensor of the given shape.
func FromSlice(data []float64, shape ...int) (*RawTensor, error) {
	return tensor.FromSlice(data, shape...)
}

// MustFromSlice is FromSlice that panics on error.
func MustFromSlice(data []float64, shape ...int) *RawTensor {
	return tensor.MustFromSlice(data, shape...)
}

// NewInt copies data into an integer tensor of the given shape.
func NewInt(data []int, shape ...int) (*IntTensor, error) { return tensor.NewInt(data, shape...) }

// MustInt is NewInt that panics on error.
func MustInt(data []int, shape ...int) *IntTensor { return tensor.MustInt(data, shape...) }

// FullInt returns an integer tensor filled with value.
func FullInt(value int, shape ...int) *IntTensor { return tensor.FullInt(value, shape...) }
