// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package adapter

import (
	"github.com/born-ml/pretrained/internal/adapter"
	"github.com/born-ml/pretrained/internal/models"
)

// Adapter wraps a pretrained model for a training harness.
type Adapter = adapter.Adapter

// Activations are the outputs of a forward pass, or gradients with respect
// to them.
type Activations = adapter.Activations

// Backprop completes a training step started by BeginUpdate.
type Backprop = adapter.Backprop

// OptimizerConfig is the optimizer configuration passed to Backprop.
type OptimizerConfig = adapter.OptimizerConfig

// OptimizerFactory creates the optimizer on first use.
type OptimizerFactory = adapter.OptimizerFactory

// Option configures an Adapter.
type Option = adapter.Option

// Model is a pretrained transformer.
type Model = models.Model

// Config is a model configuration as read from config.json.
type Config = models.Config

// Errors returned by the adapter. Match them with errors.Is.
var (
	ErrUnexpectedConfig = adapter.ErrUnexpectedConfig
	ErrNotSupported     = adapter.ErrNotSupported
	ErrMissingConfigKey = adapter.ErrMissingConfigKey
	ErrStaleBackprop    = adapter.ErrStaleBackprop
	ErrUnknownModel     = models.ErrUnknownModel
)

// Learning-rate schedule attached to the optimizer on first use.
const (
	WarmupSteps = adapter.WarmupSteps
	TotalSteps  = adapter.TotalSteps
)

// Option constructors.
var (
	WithBackend          = adapter.WithBackend
	WithRand             = adapter.WithRand
	WithOptimizerFactory = adapter.WithOptimizerFactory
)

// NewAdamW is the default OptimizerFactory.
var NewAdamW OptimizerFactory = adapter.NewAdamW

// FromPretrained loads a pretrained model by name or directory and wraps
// it. Unknown names fail with an error matching ErrUnknownModel.
func FromPretrained(name string, opts ...Option) (*Adapter, error) {
	return adapter.FromPretrained(name, opts...)
}

// NewModel builds a randomly initialised model of the named family
// ("bert", "gpt2", "openai-gpt", "xlnet" or "xlm") and wraps it.
func NewModel(family string, cfg Config, opts ...Option) (*Adapter, error) {
	return adapter.NewModel(family, cfg, opts...)
}

// New wraps an already built model. cfg is copied.
func New(cfg Config, model Model, opts ...Option) *Adapter {
	return adapter.New(cfg, model, opts...)
}

// SavePretrained writes config.json and model.safetensors for model to dir,
// in the layout FromPretrained reads.
func SavePretrained(model Model, dir string) error {
	return models.SavePretrained(model, dir)
}
