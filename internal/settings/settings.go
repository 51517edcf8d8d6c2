// Package settings reads the YAML run files of the pretrained CLI.
//
//	model: bert-base-uncased
//	steps: 100
//	dropout: 0.1
//	texts:
//	  - "the quick brown fox"
//	optimizer:
//	  learn_rate: 0.001
//	  max_grad_norm: 1.0
//	output: ./finetuned
package settings

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Optimizer mirrors the optimizer configuration consumed by the adapter.
type Optimizer struct {
	// Kind selects the update rule: "adamw" (default) or "sgd".
	Kind        string  `yaml:"kind"`
	LearnRate   float32 `yaml:"learn_rate"`
	Beta1       float32 `yaml:"beta1"`
	Beta2       float32 `yaml:"beta2"`
	Eps         float32 `yaml:"eps"`
	L2          float32 `yaml:"L2"`
	MaxGradNorm float32 `yaml:"max_grad_norm"`
	Momentum    float32 `yaml:"momentum"`
}

// Run is one fine-tuning run.
type Run struct {
	Model     string    `yaml:"model"`
	Steps     int       `yaml:"steps"`
	// Dropout is passed to BeginUpdate. Only nil matters there: it disables
	// training mode. Dropout rates come from the model config.
	Dropout   *float32  `yaml:"dropout"`
	Texts     []string  `yaml:"texts"`
	MaxLength int       `yaml:"max_length"`
	Optimizer Optimizer `yaml:"optimizer"`
	Output    string    `yaml:"output"`
}

// Default returns the settings every run starts from.
func Default() Run {
	dropout := float32(0.1)
	return Run{
		Steps:     10,
		Dropout:   &dropout,
		MaxLength: 128,
		Optimizer: Optimizer{
			Kind:        "adamw",
			LearnRate:   0.001,
			Beta1:       0.9,
			Beta2:       0.999,
			Eps:         1e-8,
			MaxGradNorm: 1.0,
		},
	}
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (Run, error) {
	run := Default()
	if err := yaml.Unmarshal(data, &run); err != nil {
		return Run{}, errors.Wrap(err, "failed to parse run settings")
	}
	if err := run.Validate(); err != nil {
		return Run{}, err
	}
	return run, nil
}

// Load reads and parses a settings file.
func Load(path string) (Run, error) {
	//nolint:gosec // G304: settings path comes from the command line
	data, err := os.ReadFile(path)
	if err != nil {
		return Run{}, errors.Wrap(err, "failed to read run settings")
	}
	run, err := Parse(data)
	if err != nil {
		return Run{}, errors.WithMessage(err, path)
	}
	return run, nil
}

// Validate checks the settings for values the run cannot use.
func (r Run) Validate() error {
	switch {
	case r.Model == "":
		return errors.New("model is required")
	case r.Steps <= 0:
		return errors.Errorf("steps must be positive, got %d", r.Steps)
	case r.Dropout != nil && (*r.Dropout < 0 || *r.Dropout >= 1):
		return errors.Errorf("dropout must be in [0, 1), got %g", *r.Dropout)
	case r.Optimizer.LearnRate <= 0:
		return errors.Errorf("optimizer.learn_rate must be positive, got %g", r.Optimizer.LearnRate)
	case r.Optimizer.Kind != "adamw" && r.Optimizer.Kind != "sgd":
		return errors.Errorf("optimizer.kind must be adamw or sgd, got %q", r.Optimizer.Kind)
	}
	return nil
}
