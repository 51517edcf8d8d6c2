package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/pretrained/internal/tensor"
)

// Linear implements a fully connected layer: y = x @ W.T + b.
//
// The weight has the PyTorch layout [out_features, in_features], which is how
// BERT, XLM and XLNet checkpoints store dense layers.
type Linear struct {
	InFeatures  int
	OutFeatures int
	Weight      *Parameter // [out_features, in_features]
	Bias        *Parameter // [out_features]
	backend     tensor.Backend
}

// NewLinear creates a Linear layer whose parameters are named
// name+".weight" and name+".bias". Weights are drawn from N(0, 0.02²),
// biases start at zero.
func NewLinear(name string, inFeatures, outFeatures int, backend tensor.Backend, rng *rand.Rand) *Linear {
	return &Linear{
		InFeatures:  inFeatures,
		OutFeatures: outFeatures,
		Weight:      NewParameter(name+".weight", Normal(tensor.Shape{outFeatures, inFeatures}, InitStd, rng)),
		Bias:        NewParameter(name+".bias", Zeros(tensor.Shape{outFeatures})),
		backend:     backend,
	}
}

// Forward applies the layer to the last dimension of x.
//
// Input shape: [..., in_features]. Output shape: [..., out_features].
func (l *Linear) Forward(x *RawTensor) *RawTensor {
	return affine(l.backend, x, l.InFeatures, l.OutFeatures, l.backend.Transpose(l.Weight.Tensor()), l.Bias, "Linear")
}

// Parameters returns [weight, bias].
func (l *Linear) Parameters() []*Parameter {
	return []*Parameter{l.Weight, l.Bias}
}

// Conv1D is the GPT-2 flavour of a dense layer: y = x @ W + b with the
// weight stored as [in_features, out_features].
type Conv1D struct {
	InFeatures  int
	OutFeatures int
	Weight      *Parameter // [in_features, out_features]
	Bias        *Parameter // [out_features]
	backend     tensor.Backend
}

// NewConv1D creates a Conv1D layer named like NewLinear.
func NewConv1D(name string, inFeatures, outFeatures int, backend tensor.Backend, rng *rand.Rand) *Conv1D {
	return &Conv1D{
		InFeatures:  inFeatures,
		OutFeatures: outFeatures,
		Weight:      NewParameter(name+".weight", Normal(tensor.Shape{inFeatures, outFeatures}, InitStd, rng)),
		Bias:        NewParameter(name+".bias", Zeros(tensor.Shape{outFeatures})),
		backend:     backend,
	}
}

// Forward applies the layer to the last dimension of x.
func (c *Conv1D) Forward(x *RawTensor) *RawTensor {
	return affine(c.backend, x, c.InFeatures, c.OutFeatures, c.Weight.Tensor(), c.Bias, "Conv1D")
}

// Parameters returns [weight, bias].
func (c *Conv1D) Parameters() []*Parameter {
	return []*Parameter{c.Weight, c.Bias}
}

// affine computes x @ w + b over the last dimension, where w is [in, out].
func affine(b tensor.Backend, x *RawTensor, in, out int, w *RawTensor, bias *Parameter, layer string) *RawTensor {
	shape := x.Shape()
	if len(shape) == 0 || shape[len(shape)-1] != in {
		panic(fmt.Sprintf("%s.Forward: expected input [..., %d], got %v", layer, in, shape))
	}

	flat := x
	if len(shape) != 2 {
		flat = b.Reshape(x, tensor.Shape{-1, in})
	}
	y := b.MatMul(flat, w)
	if bias != nil {
		// [N, out] + [out] broadcasts over rows.
		y = b.Add(y, bias.Tensor())
	}
	if len(shape) == 2 {
		return y
	}

	outShape := append(shape[:len(shape)-1].Clone(), out)
	return b.Reshape(y, outShape)
}
