package ops

import (
	"github.com/born-ml/pretrained/internal/tensor"
)

// SoftmaxOp represents the softmax operation along the last dimension.
//
// Backward, per row:
//
//	∂L/∂x_j = softmax_j * (∂L/∂softmax_j - Σ_i ∂L/∂softmax_i * softmax_i)
type SoftmaxOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor // cached softmax output
}

// NewSoftmaxOp creates a new softmax operation.
func NewSoftmaxOp(input, output *tensor.RawTensor) *SoftmaxOp {
	return &SoftmaxOp{input: input, output: output}
}

// Inputs returns the input tensors.
func (op *SoftmaxOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *SoftmaxOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes the gradient with respect to input.
func (op *SoftmaxOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	n, cols := rows(op.input.Shape())
	inputGrad := tensor.ZerosLike(op.input)

	s := op.output.AsFloat32()
	g := outputGrad.AsFloat32()
	dx := inputGrad.AsFloat32()
	for r := 0; r < n; r++ {
		base := r * cols
		var dot float32
		for j := 0; j < cols; j++ {
			dot += g[base+j] * s[base+j]
		}
		for j := 0; j < cols; j++ {
			dx[base+j] = s[base+j] * (g[base+j] - dot)
		}
	}
	return []*tensor.RawTensor{inputGrad}
}
