package cpu

import (
	"github.com/born-ml/pretrained/internal/tensor"
)

// computeBroadcastStridesForShape computes strides for reading inShape as if
// it had outShape. Broadcast dimensions (padded or of size 1) get stride 0.
func computeBroadcastStridesForShape(inShape, outShape tensor.Shape) []int {
	outDim := len(outShape)
	strides := make([]int, outDim)
	offset := outDim - len(inShape)
	origStrides := inShape.ComputeStrides()

	for i := 0; i < outDim; i++ {
		inIdx := i - offset
		if inIdx < 0 || inShape[inIdx] == 1 {
			continue
		}
		strides[i] = origStrides[inIdx]
	}

	return strides
}

// computeFlatIndex maps a flat output index to the flat input index given
// the output strides and the broadcast-adjusted input strides.
func computeFlatIndex(outIdx int, outStrides, inStrides []int) int {
	flatIdx := 0
	for i := range outStrides {
		coord := outIdx / outStrides[i]
		outIdx %= outStrides[i]
		flatIdx += coord * inStrides[i]
	}
	return flatIdx
}
