package ops

import "github.com/born-ml/pretrained/internal/tensor"

// ReshapeOp records a reshape so gradients reach the original tensor.
type ReshapeOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewReshapeOp creates a new ReshapeOp.
func NewReshapeOp(input, output *tensor.RawTensor) *ReshapeOp {
	return &ReshapeOp{input: input, output: output}
}

// Backward reshapes the gradient back to the input shape.
func (op *ReshapeOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Reshape(outputGrad, op.input.Shape())}
}

// Inputs returns the input tensor.
func (op *ReshapeOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *ReshapeOp) Output() *tensor.RawTensor {
	return op.output
}

// TransposeOp records a permutation of dimensions.
//
// The backend copies data on transpose, so without this op the gradient of
// a transposed weight would never reach the parameter itself.
type TransposeOp struct {
	input  *tensor.RawTensor
	axes   []int
	output *tensor.RawTensor
}

// NewTransposeOp creates a new TransposeOp. Empty axes means the trailing
// two dimensions were swapped.
func NewTransposeOp(input *tensor.RawTensor, axes []int, output *tensor.RawTensor) *TransposeOp {
	return &TransposeOp{input: input, axes: append([]int(nil), axes...), output: output}
}

// Backward applies the inverse permutation.
func (op *TransposeOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	if len(op.axes) == 0 {
		return []*tensor.RawTensor{backend.Transpose(outputGrad)}
	}
	inverse := make([]int, len(op.axes))
	for i, ax := range op.axes {
		inverse[ax] = i
	}
	return []*tensor.RawTensor{backend.Transpose(outputGrad, inverse...)}
}

// Inputs returns the input tensor.
func (op *TransposeOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *TransposeOp) Output() *tensor.RawTensor {
	return op.output
}

// SliceOp records the selection of [start, end) along dim.
type SliceOp struct {
	input      *tensor.RawTensor
	dim        int
	start, end int
	output     *tensor.RawTensor
}

// NewSliceOp creates a new SliceOp.
func NewSliceOp(input *tensor.RawTensor, dim, start, end int, output *tensor.RawTensor) *SliceOp {
	return &SliceOp{input: input, dim: input.Shape().NormalizeDim(dim), start: start, end: end, output: output}
}

// Backward scatters the gradient into a zero tensor of the input shape.
func (op *SliceOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	shape := op.input.Shape()
	grad := tensor.ZerosLike(op.input)

	outer := shape[:op.dim].NumElements()
	inner := shape[op.dim+1:].NumElements()
	width := (op.end - op.start) * inner
	src, dst := outputGrad.AsFloat32(), grad.AsFloat32()
	for o := 0; o < outer; o++ {
		dstOff := o*shape[op.dim]*inner + op.start*inner
		copy(dst[dstOff:dstOff+width], src[o*width:(o+1)*width])
	}
	return []*tensor.RawTensor{grad}
}

// Inputs returns the input tensor.
func (op *SliceOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *SliceOp) Output() *tensor.RawTensor {
	return op.output
}
