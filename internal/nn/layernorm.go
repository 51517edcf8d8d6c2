package nn

import (
	"github.com/born-ml/pretrained/internal/tensor"
)

// LayerNorm normalises over the last dimension:
//
//	y = weight * (x - mean(x)) / sqrt(var(x) + eps) + bias
//
// Parameters are named name+".weight" and name+".bias", matching the
// checkpoints (older BERT exports that use gamma/beta are renamed by the
// loader).
type LayerNorm struct {
	Weight  *Parameter // [d_model], initialised to ones
	Bias    *Parameter // [d_model], initialised to zeros
	Epsilon float32
	backend tensor.Backend
}

// NewLayerNorm creates a LayerNorm over a last dimension of size dim.
func NewLayerNorm(name string, dim int, epsilon float32, backend tensor.Backend) *LayerNorm {
	return &LayerNorm{
		Weight:  NewParameter(name+".weight", Ones(tensor.Shape{dim})),
		Bias:    NewParameter(name+".bias", Zeros(tensor.Shape{dim})),
		Epsilon: epsilon,
		backend: backend,
	}
}

// Forward applies the normalisation.
func (l *LayerNorm) Forward(x *RawTensor) *RawTensor {
	return l.backend.LayerNorm(x, l.Weight.Tensor(), l.Bias.Tensor(), l.Epsilon)
}

// Parameters returns [weight, bias].
func (l *LayerNorm) Parameters() []*Parameter {
	return []*Parameter{l.Weight, l.Bias}
}
