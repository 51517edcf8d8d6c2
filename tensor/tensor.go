// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor exposes the raw tensor type exchanged with pretrained
// models and the adapter.
//
// Example:
//
//	ids, err := tensor.FromInt64([]int64{101, 7592, 102, 0}, tensor.Shape{1, 4})
//	mask := tensor.ZerosLike(ids)
package tensor

import (
	"github.com/born-ml/pretrained/internal/tensor"
)

// RawTensor is a contiguous, row-major tensor.
type RawTensor = tensor.RawTensor

// Shape is the dimensions of a tensor.
type Shape = tensor.Shape

// DataType represents the element type of a tensor.
type DataType = tensor.DataType

// Backend is the set of operations pretrained models are built from.
type Backend = tensor.Backend

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
)

// FromFloat32 creates a Float32 tensor holding a copy of data.
func FromFloat32(data []float32, shape Shape) (*RawTensor, error) {
	return tensor.FromFloat32(data, shape)
}

// FromInt64 creates an Int64 tensor holding a copy of data.
func FromInt64(data []int64, shape Shape) (*RawTensor, error) {
	return tensor.FromInt64(data, shape)
}

// FromInt32 creates an Int32 tensor holding a copy of data.
func FromInt32(data []int32, shape Shape) (*RawTensor, error) {
	return tensor.FromInt32(data, shape)
}

// Full creates a Float32 tensor with every element set to value.
func Full(shape Shape, value float32) *RawTensor {
	return tensor.Full(shape, value)
}

// ZerosLike creates a zero tensor with the shape and dtype of t.
func ZerosLike(t *RawTensor) *RawTensor {
	return tensor.ZerosLike(t)
}
