package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/pretrained/internal/tensor"
)

// MatMul performs matrix multiplication: (M, K) @ (K, N) -> (M, N).
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("matmul", a, b)
	aShape, bShape := a.Shape(), b.Shape()
	if len(aShape) != 2 || len(bShape) != 2 {
		panic(fmt.Sprintf("matmul: only 2D tensors supported, got %dD and %dD", len(aShape), len(bShape)))
	}

	m, k := aShape[0], aShape[1]
	kAlt, n := bShape[0], bShape[1]
	if k != kAlt {
		panic(fmt.Sprintf("matmul: shape mismatch [%d,%d] @ [%d,%d]", m, k, kAlt, n))
	}

	result := tensor.MustNewRaw(tensor.Shape{m, n}, tensor.Float32)
	sgemm(result.AsFloat32(), a.AsFloat32(), b.AsFloat32(), m, k, n)
	return result
}

// BatchMatMul multiplies the two trailing dimensions of a and b.
// Leading dimensions must match exactly.
func (cpu *CPUBackend) BatchMatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("batchMatMul", a, b)
	aShape, bShape := a.Shape(), b.Shape()
	rank := len(aShape)
	if rank < 3 || len(bShape) != rank {
		panic(fmt.Sprintf("batchMatMul: expected matching ranks >= 3, got %v and %v", aShape, bShape))
	}
	if !aShape[:rank-2].Equal(bShape[:rank-2]) {
		panic(fmt.Sprintf("batchMatMul: batch dimensions differ: %v vs %v", aShape, bShape))
	}

	m, k := aShape[rank-2], aShape[rank-1]
	kAlt, n := bShape[rank-2], bShape[rank-1]
	if k != kAlt {
		panic(fmt.Sprintf("batchMatMul: shape mismatch %v @ %v", aShape, bShape))
	}

	outShape := append(aShape[:rank-2].Clone(), m, n)
	result := tensor.MustNewRaw(outShape, tensor.Float32)

	batch := aShape[:rank-2].NumElements()
	aData, bData, out := a.AsFloat32(), b.AsFloat32(), result.AsFloat32()
	cpu.parallel.WithMinChunk(1).Range(batch, func(start, end int) {
		for i := start; i < end; i++ {
			sgemm(out[i*m*n:(i+1)*m*n], aData[i*m*k:(i+1)*m*k], bData[i*k*n:(i+1)*k*n], m, k, n)
		}
	})
	return result
}

// sgemm computes c = a @ b for row-major float32 matrices.
func sgemm(c, a, b []float32, m, k, n int) {
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		blas32.General{Rows: m, Cols: k, Stride: k, Data: a},
		blas32.General{Rows: k, Cols: n, Stride: n, Data: b},
		0,
		blas32.General{Rows: m, Cols: n, Stride: n, Data: c},
	)
}
