package ops

import (
	"math"

	"github.com/born-ml/pretrained/internal/tensor"
)

// GELUOp represents the erf-based GELU activation.
//
// d/dx GELU(x) = Φ(x) + x·φ(x), with Φ/φ the standard normal CDF/PDF.
type GELUOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewGELUOp creates a new GELUOp.
func NewGELUOp(input, output *tensor.RawTensor) *GELUOp {
	return &GELUOp{input: input, output: output}
}

// Backward computes the gradient for GELU.
func (op *GELUOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	inputGrad := tensor.ZerosLike(op.input)
	dx := inputGrad.AsFloat32()
	g := outputGrad.AsFloat32()
	invSqrt2Pi := 1 / math.Sqrt(2*math.Pi)
	for i, v := range op.input.AsFloat32() {
		x := float64(v)
		cdf := 0.5 * (1 + math.Erf(x/math.Sqrt2))
		pdf := invSqrt2Pi * math.Exp(-0.5*x*x)
		dx[i] = g[i] * float32(cdf+x*pdf)
	}
	return []*tensor.RawTensor{inputGrad}
}

// Inputs returns the input tensors.
func (op *GELUOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *GELUOp) Output() *tensor.RawTensor {
	return op.output
}

// TanhOp represents the hyperbolic tangent activation.
type TanhOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewTanhOp creates a new tanh operation.
func NewTanhOp(input, output *tensor.RawTensor) *TanhOp {
	return &TanhOp{input: input, output: output}
}

// Backward uses the cached output: grad_input = grad_output * (1 - tanh²(x)).
func (op *TanhOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	inputGrad := tensor.ZerosLike(op.input)
	dx := inputGrad.AsFloat32()
	g := outputGrad.AsFloat32()
	for i, y := range op.output.AsFloat32() {
		dx[i] = g[i] * (1 - y*y)
	}
	return []*tensor.RawTensor{inputGrad}
}

// Inputs returns the input tensors.
func (op *TanhOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *TanhOp) Output() *tensor.RawTensor {
	return op.output
}
