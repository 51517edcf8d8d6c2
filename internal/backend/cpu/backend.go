// Package cpu implements the CPU backend, with matrix products routed through gonum BLAS.
package cpu

import (
	"fmt"

	"github.com/born-ml/pretrained/internal/parallel"
	"github.com/born-ml/pretrained/internal/tensor"
)

// CPUBackend implements tensor.Backend on the CPU.
// It holds no tensors and is safe to share between models.
type CPUBackend struct {
	parallel parallel.Config
}

// New creates a CPU backend that spreads row loops over all CPUs.
func New() *CPUBackend {
	return NewWithConfig(parallel.DefaultConfig())
}

// NewWithConfig creates a CPU backend with an explicit parallelism setting.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{parallel: cfg}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return binaryFloat32("add", a, b, func(x, y float32) float32 { return x + y })
}

// Mul performs element-wise multiplication with NumPy-style broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return binaryFloat32("mul", a, b, func(x, y float32) float32 { return x * y })
}

// MulScalar multiplies every element by s.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, s float32) *tensor.RawTensor {
	requireFloat32("mulScalar", x)
	result := tensor.ZerosLike(x)
	out := result.AsFloat32()
	for i, v := range x.AsFloat32() {
		out[i] = v * s
	}
	return result
}

func requireFloat32(op string, ts ...*tensor.RawTensor) {
	for _, t := range ts {
		if t.DType() != tensor.Float32 {
			panic(fmt.Sprintf("%s: unsupported dtype %s (only float32 supported)", op, t.DType()))
		}
	}
}

// binaryFloat32 applies fn element-wise with broadcasting.
func binaryFloat32(op string, a, b *tensor.RawTensor, fn func(x, y float32) float32) *tensor.RawTensor {
	requireFloat32(op, a, b)
	outShape, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", op, err))
	}
	result := tensor.MustNewRaw(outShape, tensor.Float32)
	out := result.AsFloat32()
	aData, bData := a.AsFloat32(), b.AsFloat32()

	// Fast path: identical shapes.
	if a.Shape().Equal(b.Shape()) {
		for i := range out {
			out[i] = fn(aData[i], bData[i])
		}
		return result
	}

	outStrides := outShape.ComputeStrides()
	aStrides := computeBroadcastStridesForShape(a.Shape(), outShape)
	bStrides := computeBroadcastStridesForShape(b.Shape(), outShape)
	for i := range out {
		out[i] = fn(aData[computeFlatIndex(i, outStrides, aStrides)], bData[computeFlatIndex(i, outStrides, bStrides)])
	}
	return result
}
