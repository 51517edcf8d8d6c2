// Package autodiff implements reverse-mode automatic differentiation with the
// decorator pattern.
//
// AutodiffBackend wraps any tensor.Backend and records every differentiable
// operation on a GradientTape while recording is enabled:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	y := backend.Mul(x, x)
//	grads := backend.Tape().Backward([]*tensor.RawTensor{y}, []*tensor.RawTensor{ones}, backend)
//	dx := grads[x] // 2x
package autodiff

import (
	"github.com/born-ml/pretrained/internal/autodiff/ops"
	"github.com/born-ml/pretrained/internal/tensor"
)

// AutodiffBackend wraps a Backend and records operations in a GradientTape.
type AutodiffBackend[B tensor.Backend] struct {
	inner B
	tape  *GradientTape
}

// New creates a new AutodiffBackend wrapping the given backend.
func New[B tensor.Backend](backend B) *AutodiffBackend[B] {
	return &AutodiffBackend[B]{
		inner: backend,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for manual control.
func (b *AutodiffBackend[B]) Tape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend.
func (b *AutodiffBackend[B]) Inner() B {
	return b.inner
}

// Name returns the backend name.
func (b *AutodiffBackend[B]) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

func (b *AutodiffBackend[B]) record(op ops.Operation) {
	if b.tape.IsRecording() {
		b.tape.Record(op)
	}
}

// Add performs element-wise addition and records the operation.
func (b *AutodiffBackend[B]) Add(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Add(x, y)
	b.record(ops.NewAddOp(x, y, result))
	return result
}

// Mul performs element-wise multiplication and records the operation.
func (b *AutodiffBackend[B]) Mul(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Mul(x, y)
	b.record(ops.NewMulOp(x, y, result))
	return result
}

// MulScalar multiplies by a constant and records the operation.
func (b *AutodiffBackend[B]) MulScalar(x *tensor.RawTensor, s float32) *tensor.RawTensor {
	result := b.inner.MulScalar(x, s)
	b.record(ops.NewMulScalarOp(x, s, result))
	return result
}

// MatMul performs matrix multiplication and records the operation.
func (b *AutodiffBackend[B]) MatMul(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.MatMul(x, y)
	b.record(ops.NewMatMulOp(x, y, result))
	return result
}

// BatchMatMul performs batched matrix multiplication and records the operation.
func (b *AutodiffBackend[B]) BatchMatMul(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.BatchMatMul(x, y)
	b.record(ops.NewBatchMatMulOp(x, y, result))
	return result
}

// Reshape reshapes a tensor and records the operation.
//
// Reshape copies, so it must be on the tape for gradients to reach the
// original tensor (for example a bias reshaped for broadcasting).
func (b *AutodiffBackend[B]) Reshape(x *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	result := b.inner.Reshape(x, newShape)
	b.record(ops.NewReshapeOp(x, result))
	return result
}

// Transpose transposes a tensor and records the operation.
func (b *AutodiffBackend[B]) Transpose(x *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	result := b.inner.Transpose(x, axes...)
	b.record(ops.NewTransposeOp(x, axes, result))
	return result
}

// Slice selects a range along dim and records the operation.
func (b *AutodiffBackend[B]) Slice(x *tensor.RawTensor, dim, start, end int) *tensor.RawTensor {
	result := b.inner.Slice(x, dim, start, end)
	b.record(ops.NewSliceOp(x, dim, start, end, result))
	return result
}

// Softmax applies softmax and records the operation.
func (b *AutodiffBackend[B]) Softmax(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Softmax(x)
	b.record(ops.NewSoftmaxOp(x, result))
	return result
}

// GELU applies GELU and records the operation.
func (b *AutodiffBackend[B]) GELU(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.GELU(x)
	b.record(ops.NewGELUOp(x, result))
	return result
}

// Tanh applies tanh and records the operation.
func (b *AutodiffBackend[B]) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Tanh(x)
	b.record(ops.NewTanhOp(x, result))
	return result
}

// LayerNorm applies layer normalisation and records the operation.
func (b *AutodiffBackend[B]) LayerNorm(x, gamma, beta *tensor.RawTensor, eps float32) *tensor.RawTensor {
	result := b.inner.LayerNorm(x, gamma, beta, eps)
	b.record(ops.NewLayerNormOp(x, gamma, beta, eps, result))
	return result
}

// Embedding looks up rows and records the operation.
func (b *AutodiffBackend[B]) Embedding(weight, indices *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Embedding(weight, indices)
	b.record(ops.NewEmbeddingOp(weight, indices, result))
	return result
}

// Clamp is not differentiable and is never recorded.
func (b *AutodiffBackend[B]) Clamp(x *tensor.RawTensor, lo, hi float64) *tensor.RawTensor {
	return b.inner.Clamp(x, lo, hi)
}

// Cast is not differentiable and is never recorded.
func (b *AutodiffBackend[B]) Cast(x *tensor.RawTensor, dtype tensor.DataType) *tensor.RawTensor {
	return b.inner.Cast(x, dtype)
}
