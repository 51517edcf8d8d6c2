package ops

import "github.com/born-ml/pretrained/internal/tensor"

// AddOp represents an element-wise addition operation: output = a + b.
//
// Backward: the gradient flows unchanged to both inputs, summed over any
// dimensions that were broadcast.
type AddOp struct {
	inputs []*tensor.RawTensor // [a, b]
	output *tensor.RawTensor
}

// NewAddOp creates a new AddOp.
func NewAddOp(a, b, output *tensor.RawTensor) *AddOp {
	return &AddOp{
		inputs: []*tensor.RawTensor{a, b},
		output: output,
	}
}

// Backward computes input gradients for addition.
func (op *AddOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	a, b := op.inputs[0], op.inputs[1]
	return []*tensor.RawTensor{
		reduceBroadcast(outputGrad, a.Shape()),
		reduceBroadcast(outputGrad, b.Shape()),
	}
}

// Inputs returns the input tensors [a, b].
func (op *AddOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the output tensor a + b.
func (op *AddOp) Output() *tensor.RawTensor {
	return op.output
}
