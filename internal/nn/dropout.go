package nn

import (
	"math/rand"

	"github.com/born-ml/pretrained/internal/tensor"
)

// Dropout zeroes elements with probability P while training and rescales
// the survivors by 1/(1-P). In evaluation mode it is the identity.
//
// Dropout has no parameters. Models keep their Dropout layers in a Dropouts
// slice so the mode and rate can be switched together.
type Dropout struct {
	P        float32
	training bool
	rng      *rand.Rand
	backend  tensor.Backend
}

// NewDropout creates a dropout layer in evaluation mode.
func NewDropout(p float32, backend tensor.Backend, rng *rand.Rand) *Dropout {
	return &Dropout{P: p, rng: rng, backend: backend}
}

// Forward applies dropout when training.
func (d *Dropout) Forward(x *RawTensor) *RawTensor {
	if !d.training || d.P <= 0 {
		return x
	}

	mask := tensor.MustNewRaw(x.Shape(), tensor.Float32)
	data := mask.AsFloat32()
	if d.P < 1 {
		scale := 1 / (1 - d.P)
		for i := range data {
			if d.rng.Float32() >= d.P {
				data[i] = scale
			}
		}
	}
	return d.backend.Mul(x, mask)
}

// SetTraining switches between training and evaluation mode.
func (d *Dropout) SetTraining(training bool) {
	d.training = training
}

// IsTraining reports whether the layer is in training mode.
func (d *Dropout) IsTraining() bool {
	return d.training
}

// Dropouts groups the dropout layers of a model.
type Dropouts []*Dropout

// SetTraining sets the mode of every layer.
func (ds Dropouts) SetTraining(training bool) {
	for _, d := range ds {
		d.SetTraining(training)
	}
}

// SetRate sets the drop probability of every layer.
func (ds Dropouts) SetRate(p float32) {
	for _, d := range ds {
		d.P = p
	}
}
