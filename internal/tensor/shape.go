package tensor

import "fmt"

// Shape represents the dimensions of a tensor.
type Shape []int

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks that all dimensions are positive.
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides calculates row-major strides for the shape.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// NormalizeDim resolves a negative dimension index against the rank.
func (s Shape) NormalizeDim(dim int) int {
	if dim < 0 {
		dim += len(s)
	}
	if dim < 0 || dim >= len(s) {
		panic(fmt.Sprintf("dimension %d out of range for shape %v", dim, s))
	}
	return dim
}

// BroadcastShapes implements NumPy-style broadcasting rules.
//
// Shapes are aligned from the right; two dimensions are compatible when they
// are equal or one of them is 1. Missing dimensions are treated as 1.
//
//	(3, 1) + (3, 5) → (3, 5)
//	(2, 1, 1, 4) + (2, 3, 4, 4) → (2, 3, 4, 4)
//	(3, 4) + (3, 5) → error
func BroadcastShapes(a, b Shape) (Shape, error) {
	n := max(len(a), len(b))
	result := make(Shape, n)

	for i := 0; i < n; i++ {
		aDim, bDim := 1, 1
		if idx := len(a) - 1 - i; idx >= 0 {
			aDim = a[idx]
		}
		if idx := len(b) - 1 - i; idx >= 0 {
			bDim = b[idx]
		}

		switch {
		case aDim == bDim, bDim == 1:
			result[n-1-i] = aDim
		case aDim == 1:
			result[n-1-i] = bDim
		default:
			return nil, fmt.Errorf("shapes not compatible for broadcasting: %v vs %v (dimension %d: %d vs %d)",
				a, b, n-1-i, aDim, bDim)
		}
	}

	return result, nil
}
