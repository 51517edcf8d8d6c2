package cpu

import (
	"math"

	"github.com/born-ml/pretrained/internal/tensor"
)

// Softmax applies a numerically stable softmax along the last dimension.
func (cpu *CPUBackend) Softmax(x *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("softmax", x)
	shape := x.Shape()
	cols := shape[len(shape)-1]
	rows := x.NumElements() / cols

	result := tensor.ZerosLike(x)
	src, dst := x.AsFloat32(), result.AsFloat32()
	cpu.parallel.Range(rows, func(start, end int) {
		for r := start; r < end; r++ {
			softmaxRow(dst[r*cols:(r+1)*cols], src[r*cols:(r+1)*cols])
		}
	})
	return result
}

func softmaxRow(out, row []float32) {
	maxVal := float32(math.Inf(-1))
	for _, v := range row {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float32
	for i, v := range row {
		e := float32(math.Exp(float64(v - maxVal)))
		out[i] = e
		sum += e
	}
	for i := range out {
		out[i] /= sum
	}
}

// GELU applies the exact (erf-based) Gaussian error linear unit.
func (cpu *CPUBackend) GELU(x *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("gelu", x)
	result := tensor.ZerosLike(x)
	dst := result.AsFloat32()
	for i, v := range x.AsFloat32() {
		dst[i] = float32(0.5 * float64(v) * (1 + math.Erf(float64(v)/math.Sqrt2)))
	}
	return result
}

// Tanh applies the hyperbolic tangent.
func (cpu *CPUBackend) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("tanh", x)
	result := tensor.ZerosLike(x)
	dst := result.AsFloat32()
	for i, v := range x.AsFloat32() {
		dst[i] = float32(math.Tanh(float64(v)))
	}
	return result
}

// LayerNorm normalises x over its last dimension and applies gamma/beta.
//
//	y = gamma * (x - mean) / sqrt(var + eps) + beta
func (cpu *CPUBackend) LayerNorm(x, gamma, beta *tensor.RawTensor, eps float32) *tensor.RawTensor {
	requireFloat32("layerNorm", x, gamma, beta)
	shape := x.Shape()
	cols := shape[len(shape)-1]
	rows := x.NumElements() / cols

	result := tensor.ZerosLike(x)
	src, dst := x.AsFloat32(), result.AsFloat32()
	g, b := gamma.AsFloat32(), beta.AsFloat32()
	cpu.parallel.Range(rows, func(start, end int) {
		for r := start; r < end; r++ {
			row := src[r*cols : (r+1)*cols]
			mean, rstd := LayerNormStats(row, eps)
			out := dst[r*cols : (r+1)*cols]
			for i, v := range row {
				out[i] = (v-mean)*rstd*g[i] + b[i]
			}
		}
	})
	return result
}

// LayerNormStats returns the mean and reciprocal standard deviation of row.
// The autodiff LayerNorm operation reuses it in its backward pass.
func LayerNormStats(row []float32, eps float32) (mean, rstd float32) {
	n := float32(len(row))
	for _, v := range row {
		mean += v
	}
	mean /= n
	var variance float32
	for _, v := range row {
		d := v - mean
		variance += d * d
	}
	variance /= n
	rstd = float32(1 / math.Sqrt(float64(variance+eps)))
	return mean, rstd
}
