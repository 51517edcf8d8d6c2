package ops

import (
	"github.com/born-ml/pretrained/internal/backend/cpu"
	"github.com/born-ml/pretrained/internal/tensor"
)

// LayerNormOp represents y = gamma * x̂ + beta with x̂ = (x - mean) * rstd
// computed over the last dimension.
//
// Backward, per row of width N:
//
//	dgamma += g * x̂
//	dbeta  += g
//	dx = rstd * (dx̂ - mean(dx̂) - x̂ * mean(dx̂ * x̂)),  dx̂ = g * gamma
type LayerNormOp struct {
	inputs []*tensor.RawTensor // [x, gamma, beta]
	eps    float32
	output *tensor.RawTensor
}

// NewLayerNormOp creates a new LayerNormOp.
func NewLayerNormOp(x, gamma, beta *tensor.RawTensor, eps float32, output *tensor.RawTensor) *LayerNormOp {
	return &LayerNormOp{
		inputs: []*tensor.RawTensor{x, gamma, beta},
		eps:    eps,
		output: output,
	}
}

// Backward computes gradients for x, gamma and beta.
func (op *LayerNormOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	x, gamma, beta := op.inputs[0], op.inputs[1], op.inputs[2]
	n, cols := rows(x.Shape())

	gradX := tensor.ZerosLike(x)
	gradGamma := tensor.ZerosLike(gamma)
	gradBeta := tensor.ZerosLike(beta)

	xs, g := x.AsFloat32(), outputGrad.AsFloat32()
	gm := gamma.AsFloat32()
	dx, dg, db := gradX.AsFloat32(), gradGamma.AsFloat32(), gradBeta.AsFloat32()

	xhat := make([]float32, cols)
	dxhat := make([]float32, cols)
	for r := 0; r < n; r++ {
		base := r * cols
		mean, rstd := cpu.LayerNormStats(xs[base:base+cols], op.eps)

		var sumD, sumDX float32
		for j := 0; j < cols; j++ {
			xhat[j] = (xs[base+j] - mean) * rstd
			dxhat[j] = g[base+j] * gm[j]
			dg[j] += g[base+j] * xhat[j]
			db[j] += g[base+j]
			sumD += dxhat[j]
			sumDX += dxhat[j] * xhat[j]
		}
		meanD := sumD / float32(cols)
		meanDX := sumDX / float32(cols)
		for j := 0; j < cols; j++ {
			dx[base+j] = rstd * (dxhat[j] - meanD - xhat[j]*meanDX)
		}
	}

	return []*tensor.RawTensor{gradX, gradGamma, gradBeta}
}

// Inputs returns [x, gamma, beta].
func (op *LayerNormOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the normalised output.
func (op *LayerNormOp) Output() *tensor.RawTensor {
	return op.output
}
