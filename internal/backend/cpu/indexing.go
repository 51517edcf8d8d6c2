package cpu

import (
	"fmt"

	"github.com/born-ml/pretrained/internal/tensor"
)

// Embedding looks up rows of weight [V, D] for the integer indices.
// The output shape is indices.Shape() + [D].
func (cpu *CPUBackend) Embedding(weight, indices *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("embedding", weight)
	wShape := weight.Shape()
	if len(wShape) != 2 {
		panic(fmt.Sprintf("embedding: weight must be 2D, got %v", wShape))
	}
	vocab, dim := wShape[0], wShape[1]

	ids := Indices(indices)
	outShape := append(indices.Shape().Clone(), dim)
	result := tensor.MustNewRaw(outShape, tensor.Float32)

	w, out := weight.AsFloat32(), result.AsFloat32()
	for i, id := range ids {
		if id < 0 || id >= vocab {
			panic(fmt.Sprintf("embedding: index %d out of range [0, %d)", id, vocab))
		}
		copy(out[i*dim:(i+1)*dim], w[id*dim:(id+1)*dim])
	}
	return result
}

// Indices returns the elements of an integer tensor as ints.
func Indices(t *tensor.RawTensor) []int {
	out := make([]int, t.NumElements())
	switch t.DType() {
	case tensor.Int64:
		for i, v := range t.AsInt64() {
			out[i] = int(v)
		}
	case tensor.Int32:
		for i, v := range t.AsInt32() {
			out[i] = int(v)
		}
	default:
		panic(fmt.Sprintf("indices: expected integer tensor, got %s", t.DType()))
	}
	return out
}
