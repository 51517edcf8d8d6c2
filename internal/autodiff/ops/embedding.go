package ops

import (
	"github.com/born-ml/pretrained/internal/backend/cpu"
	"github.com/born-ml/pretrained/internal/tensor"
)

// EmbeddingOp represents an embedding lookup: output[i] = weight[indices[i]].
//
// Backward is a scatter-add: rows selected several times accumulate the
// gradients of every position that selected them.
type EmbeddingOp struct {
	weight  *tensor.RawTensor // [numEmbeddings, embeddingDim]
	indices *tensor.RawTensor // integer ids
	output  *tensor.RawTensor
}

// NewEmbeddingOp creates a new embedding operation.
func NewEmbeddingOp(weight, indices, output *tensor.RawTensor) *EmbeddingOp {
	return &EmbeddingOp{weight: weight, indices: indices, output: output}
}

// Inputs returns only the weight; indices are not differentiable.
func (op *EmbeddingOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.weight}
}

// Output returns the output tensor.
func (op *EmbeddingOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes gradients for the embedding weights.
func (op *EmbeddingOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	dim := op.weight.Shape()[1]
	gradWeight := tensor.ZerosLike(op.weight)
	dw := gradWeight.AsFloat32()
	g := outputGrad.AsFloat32()
	for i, id := range cpu.Indices(op.indices) {
		row := dw[id*dim : (id+1)*dim]
		src := g[i*dim : (i+1)*dim]
		for j := range row {
			row[j] += src[j]
		}
	}
	return []*tensor.RawTensor{gradWeight}
}
