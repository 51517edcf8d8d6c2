package nn

import (
	"math/rand"

	"github.com/born-ml/pretrained/internal/tensor"
)

// InitStd is the standard deviation used by the Hugging Face
// initializer_range default.
const InitStd = 0.02

// Normal creates a tensor with values drawn from N(0, std²).
func Normal(shape tensor.Shape, std float64, rng *rand.Rand) *RawTensor {
	t := tensor.MustNewRaw(shape, tensor.Float32)
	data := t.AsFloat32()
	for i := range data {
		data[i] = float32(rng.NormFloat64() * std)
	}
	return t
}

// Zeros creates a zero-filled float32 tensor.
func Zeros(shape tensor.Shape) *RawTensor {
	return tensor.MustNewRaw(shape, tensor.Float32)
}

// Ones creates a float32 tensor filled with ones.
func Ones(shape tensor.Shape) *RawTensor {
	return tensor.Full(shape, 1)
}
