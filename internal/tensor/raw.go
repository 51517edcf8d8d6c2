package tensor

import (
	"fmt"
	"unsafe"
)

// RawTensor is the low-level, untyped tensor representation.
//
// Data is stored row-major in a byte buffer and reinterpreted through the
// typed accessors (AsFloat32, AsInt64, ...). The autodiff tape keys gradients
// by *RawTensor identity, so backends always return fresh tensors and never
// modify their inputs in place.
type RawTensor struct {
	data   []byte
	shape  Shape
	stride []int
	dtype  DataType
}

// NewRaw creates a zero-filled RawTensor with the given shape and type.
func NewRaw(shape Shape, dtype DataType) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	return &RawTensor{
		data:   make([]byte, shape.NumElements()*dtype.Size()),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
	}, nil
}

// MustNewRaw is like NewRaw but panics on an invalid shape.
// Backends use it where the shape was already derived from valid inputs.
func MustNewRaw(shape Shape, dtype DataType) *RawTensor {
	r, err := NewRaw(shape, dtype)
	if err != nil {
		panic(err)
	}
	return r
}

// FromFloat32 creates a Float32 tensor holding a copy of data.
func FromFloat32(data []float32, shape Shape) (*RawTensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	r, err := NewRaw(shape, Float32)
	if err != nil {
		return nil, err
	}
	copy(r.AsFloat32(), data)
	return r, nil
}

// FromInt64 creates an Int64 tensor holding a copy of data.
func FromInt64(data []int64, shape Shape) (*RawTensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	r, err := NewRaw(shape, Int64)
	if err != nil {
		return nil, err
	}
	copy(r.AsInt64(), data)
	return r, nil
}

// FromInt32 creates an Int32 tensor holding a copy of data.
func FromInt32(data []int32, shape Shape) (*RawTensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	r, err := NewRaw(shape, Int32)
	if err != nil {
		return nil, err
	}
	copy(r.AsInt32(), data)
	return r, nil
}

// Full creates a Float32 tensor filled with value.
func Full(shape Shape, value float32) *RawTensor {
	r := MustNewRaw(shape, Float32)
	data := r.AsFloat32()
	for i := range data {
		data[i] = value
	}
	return r
}

// ZerosLike creates a zero-filled tensor with the shape and type of t.
func ZerosLike(t *RawTensor) *RawTensor {
	return MustNewRaw(t.shape, t.dtype)
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the tensor's row-major strides.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (r *RawTensor) ByteSize() int {
	return len(r.data)
}

// Data returns the raw byte slice.
// WARNING: Direct access to underlying memory.
func (r *RawTensor) Data() []byte {
	return r.data
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
func (r *RawTensor) AsFloat32() []float32 {
	if r.dtype != Float32 {
		panic(fmt.Sprintf("tensor dtype is %s, not float32", r.dtype))
	}
	if len(r.data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, length bounded by NumElements()
	return unsafe.Slice((*float32)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsInt32 interprets the data as []int32.
// Panics if the tensor's dtype is not Int32.
func (r *RawTensor) AsInt32() []int32 {
	if r.dtype != Int32 {
		panic(fmt.Sprintf("tensor dtype is %s, not int32", r.dtype))
	}
	if len(r.data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, length bounded by NumElements()
	return unsafe.Slice((*int32)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsInt64 interprets the data as []int64.
// Panics if the tensor's dtype is not Int64.
func (r *RawTensor) AsInt64() []int64 {
	if r.dtype != Int64 {
		panic(fmt.Sprintf("tensor dtype is %s, not int64", r.dtype))
	}
	if len(r.data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, length bounded by NumElements()
	return unsafe.Slice((*int64)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// Clone returns a deep copy of the tensor.
func (r *RawTensor) Clone() *RawTensor {
	data := make([]byte, len(r.data))
	copy(data, r.data)
	return &RawTensor{
		data:   data,
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
		dtype:  r.dtype,
	}
}

// View returns a tensor sharing r's buffer with a different shape.
// The element count must match.
func (r *RawTensor) View(shape Shape) (*RawTensor, error) {
	if shape.NumElements() != r.NumElements() {
		return nil, fmt.Errorf("cannot view shape %v as %v", r.shape, shape)
	}
	return &RawTensor{
		data:   r.data,
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  r.dtype,
	}, nil
}

// String returns a short description (dtype and shape), not the data.
func (r *RawTensor) String() string {
	return fmt.Sprintf("Tensor(%s, %v)", r.dtype, r.shape)
}
