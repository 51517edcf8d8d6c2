package optim

import (
	"math"

	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/pretrained/internal/nn"
)

// GradNorm returns the global L2 norm of all parameter gradients.
// Parameters without a gradient contribute nothing.
func GradNorm(params []*nn.Parameter) float64 {
	var sumSq float64
	for _, p := range params {
		g := p.Grad()
		if g == nil {
			continue
		}
		data := g.AsFloat32()
		n := float64(blas32.Nrm2(blas32.Vector{N: len(data), Inc: 1, Data: data}))
		sumSq += n * n
	}
	return math.Sqrt(sumSq)
}

// ClipGradNorm rescales all gradients in place so that their global L2 norm
// is at most maxNorm. It returns the norm before clipping.
func ClipGradNorm(params []*nn.Parameter, maxNorm float64) float64 {
	total := GradNorm(params)
	if maxNorm <= 0 || total <= maxNorm {
		return total
	}

	// The small epsilon keeps the clipped norm strictly below maxNorm.
	scale := float32(maxNorm / (total + 1e-6))
	for _, p := range params {
		g := p.Grad()
		if g == nil {
			continue
		}
		data := g.AsFloat32()
		blas32.Scal(scale, blas32.Vector{N: len(data), Inc: 1, Data: data})
	}
	return total
}
