// Package ops defines the differentiable operations recorded on a GradientTape.
//
// Each operation keeps references to its inputs and output from the forward
// pass and computes input gradients in Backward. Supported operations:
//   - AddOp, MulOp, MulScalarOp: element-wise arithmetic with broadcasting
//   - MatMulOp: plain and batched matrix products
//   - ReshapeOp, TransposeOp, SliceOp: shape manipulation
//   - SoftmaxOp, GELUOp, TanhOp, LayerNormOp: activations and normalisation
//   - EmbeddingOp: row lookup with scatter-add backward
package ops

import "github.com/born-ml/pretrained/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// The returned slice is aligned with Inputs(); nil entries carry no gradient.
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.RawTensor
}
