package ops

import "github.com/born-ml/pretrained/internal/tensor"

// MulOp represents element-wise multiplication: output = a * b.
//
// Backward:
//   - grad_a = outputGrad * b
//   - grad_b = outputGrad * a
type MulOp struct {
	inputs []*tensor.RawTensor // [a, b]
	output *tensor.RawTensor
}

// NewMulOp creates a new MulOp.
func NewMulOp(a, b, output *tensor.RawTensor) *MulOp {
	return &MulOp{
		inputs: []*tensor.RawTensor{a, b},
		output: output,
	}
}

// Backward computes input gradients for multiplication.
func (op *MulOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	a, b := op.inputs[0], op.inputs[1]
	gradA := reduceBroadcast(backend.Mul(outputGrad, b), a.Shape())
	gradB := reduceBroadcast(backend.Mul(outputGrad, a), b.Shape())
	return []*tensor.RawTensor{gradA, gradB}
}

// Inputs returns the input tensors [a, b].
func (op *MulOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the output tensor a * b.
func (op *MulOp) Output() *tensor.RawTensor {
	return op.output
}

// MulScalarOp represents output = x * s for a constant scalar s.
type MulScalarOp struct {
	input  *tensor.RawTensor
	scalar float32
	output *tensor.RawTensor
}

// NewMulScalarOp creates a new MulScalarOp.
func NewMulScalarOp(input *tensor.RawTensor, scalar float32, output *tensor.RawTensor) *MulScalarOp {
	return &MulScalarOp{input: input, scalar: scalar, output: output}
}

// Backward returns outputGrad * s.
func (op *MulScalarOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.MulScalar(outputGrad, op.scalar)}
}

// Inputs returns the input tensor.
func (op *MulScalarOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *MulScalarOp) Output() *tensor.RawTensor {
	return op.output
}
