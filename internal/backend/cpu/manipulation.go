package cpu

import (
	"fmt"

	"github.com/born-ml/pretrained/internal/tensor"
)

// Reshape returns a copy of x with a new shape holding the same elements.
// A single -1 dimension is inferred.
func (cpu *CPUBackend) Reshape(x *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	shape := inferShape(x.NumElements(), newShape)
	view, err := x.Clone().View(shape)
	if err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	return view
}

func inferShape(numElements int, shape tensor.Shape) tensor.Shape {
	out := shape.Clone()
	inferred := -1
	known := 1
	for i, d := range out {
		if d == -1 {
			if inferred >= 0 {
				panic(fmt.Sprintf("reshape: more than one -1 in %v", shape))
			}
			inferred = i
			continue
		}
		known *= d
	}
	if inferred >= 0 {
		if known == 0 || numElements%known != 0 {
			panic(fmt.Sprintf("reshape: cannot infer dimension of %v for %d elements", shape, numElements))
		}
		out[inferred] = numElements / known
	}
	return out
}

// Transpose permutes the dimensions of x.
// Without axes, the two trailing dimensions are swapped.
func (cpu *CPUBackend) Transpose(x *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := x.Shape()
	rank := len(shape)
	if len(axes) == 0 {
		if rank < 2 {
			panic(fmt.Sprintf("transpose: need at least 2 dimensions, got %v", shape))
		}
		axes = make([]int, rank)
		for i := range axes {
			axes[i] = i
		}
		axes[rank-1], axes[rank-2] = axes[rank-2], axes[rank-1]
	}
	if len(axes) != rank {
		panic(fmt.Sprintf("transpose: %d axes given for shape %v", len(axes), shape))
	}

	outShape := make(tensor.Shape, rank)
	for i, ax := range axes {
		outShape[i] = shape[ax]
	}

	inStrides := x.Strides()
	permStrides := make([]int, rank)
	for i, ax := range axes {
		permStrides[i] = inStrides[ax]
	}

	result := tensor.MustNewRaw(outShape, x.DType())
	outStrides := outShape.ComputeStrides()
	switch x.DType() {
	case tensor.Float32:
		src, dst := x.AsFloat32(), result.AsFloat32()
		for i := range dst {
			dst[i] = src[computeFlatIndex(i, outStrides, permStrides)]
		}
	case tensor.Int64:
		src, dst := x.AsInt64(), result.AsInt64()
		for i := range dst {
			dst[i] = src[computeFlatIndex(i, outStrides, permStrides)]
		}
	default:
		panic(fmt.Sprintf("transpose: unsupported dtype %s", x.DType()))
	}
	return result
}

// Slice selects the half-open range [start, end) along dim.
func (cpu *CPUBackend) Slice(x *tensor.RawTensor, dim, start, end int) *tensor.RawTensor {
	requireFloat32("slice", x)
	shape := x.Shape()
	dim = shape.NormalizeDim(dim)
	if start < 0 || end > shape[dim] || start >= end {
		panic(fmt.Sprintf("slice: invalid range [%d, %d) for dimension %d of %v", start, end, dim, shape))
	}

	outShape := shape.Clone()
	outShape[dim] = end - start
	result := tensor.MustNewRaw(outShape, tensor.Float32)

	outer := shape[:dim].NumElements()
	inner := shape[dim+1:].NumElements()
	src, dst := x.AsFloat32(), result.AsFloat32()
	width := (end - start) * inner
	for o := 0; o < outer; o++ {
		srcOff := o*shape[dim]*inner + start*inner
		copy(dst[o*width:(o+1)*width], src[srcOff:srcOff+width])
	}
	return result
}
