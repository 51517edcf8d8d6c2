package ops

import (
	"github.com/born-ml/pretrained/internal/tensor"
)

// reduceBroadcast sums a gradient down to targetShape, undoing the
// broadcasting applied in the forward pass.
//
//	Forward:  a[3,1] + b[3,4] -> c[3,4]
//	Backward: grad_c[3,4] -> grad_a[3,1] (sum along dim 1)
func reduceBroadcast(grad *tensor.RawTensor, targetShape tensor.Shape) *tensor.RawTensor {
	if grad.Shape().Equal(targetShape) {
		return grad.Clone()
	}

	gradShape := grad.Shape()
	result := tensor.MustNewRaw(targetShape, tensor.Float32)
	out := result.AsFloat32()

	outStrides := gradShape.ComputeStrides()
	targetStrides := broadcastStrides(targetShape, gradShape)
	for i, g := range grad.AsFloat32() {
		idx := 0
		rem := i
		for d := range outStrides {
			coord := rem / outStrides[d]
			rem %= outStrides[d]
			idx += coord * targetStrides[d]
		}
		out[idx] += g
	}
	return result
}

// broadcastStrides returns the strides of inShape read through outShape;
// broadcast dimensions get stride 0.
func broadcastStrides(inShape, outShape tensor.Shape) []int {
	strides := make([]int, len(outShape))
	offset := len(outShape) - len(inShape)
	orig := inShape.ComputeStrides()
	for i := range outShape {
		inIdx := i - offset
		if inIdx < 0 || inShape[inIdx] == 1 {
			continue
		}
		strides[i] = orig[inIdx]
	}
	return strides
}

// rows splits a tensor shape into (rows, cols) over its last dimension.
func rows(shape tensor.Shape) (int, int) {
	cols := shape[len(shape)-1]
	return shape.NumElements() / cols, cols
}
