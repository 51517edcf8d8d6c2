package ops

import "github.com/born-ml/pretrained/internal/tensor"

// MatMulOp is a matrix product output = a @ b, either of two matrices or
// batched over every dimension but the trailing two.
//
//	dA = dOut @ bᵀ
//	dB = aᵀ @ dOut
type MatMulOp struct {
	a, b    *tensor.RawTensor
	output  *tensor.RawTensor
	batched bool
}

// NewMatMulOp records a 2D matrix product.
func NewMatMulOp(a, b, output *tensor.RawTensor) *MatMulOp {
	return &MatMulOp{a: a, b: b, output: output}
}

// NewBatchMatMulOp records a batched matrix product.
func NewBatchMatMulOp(a, b, output *tensor.RawTensor) *MatMulOp {
	return &MatMulOp{a: a, b: b, output: output, batched: true}
}

// Backward computes the gradients of a and b. Transpose without axes swaps
// the trailing two dimensions in both cases.
func (op *MatMulOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	product := backend.MatMul
	if op.batched {
		product = backend.BatchMatMul
	}
	return []*tensor.RawTensor{
		product(outputGrad, backend.Transpose(op.b)),
		product(backend.Transpose(op.a), outputGrad),
	}
}

// Inputs returns [a, b].
func (op *MatMulOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.a, op.b}
}

// Output returns a @ b.
func (op *MatMulOp) Output() *tensor.RawTensor {
	return op.output
}
