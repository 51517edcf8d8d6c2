// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	"github.com/born-ml/pretrained/internal/autodiff"
	internalcpu "github.com/born-ml/pretrained/internal/backend/cpu"
	"github.com/born-ml/pretrained/tensor"
)

// Backend is the pure Go CPU backend.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a CPU backend. Models built on it run inference only.
func New() *Backend {
	return internalcpu.New()
}

// NewTrainable creates a CPU backend that records operations on a gradient
// tape, as needed by adapter.BeginUpdate. It is the default backend of
// adapter.FromPretrained.
//
// Example:
//
//	a, err := adapter.FromPretrained("gpt2", adapter.WithBackend(cpu.NewTrainable()))
func NewTrainable() tensor.Backend {
	return autodiff.New(internalcpu.New())
}
