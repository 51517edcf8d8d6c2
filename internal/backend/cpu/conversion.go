package cpu

import (
	"fmt"

	"github.com/born-ml/pretrained/internal/tensor"
)

// Cast converts x to dtype. Casting to the same dtype returns a copy.
func (cpu *CPUBackend) Cast(x *tensor.RawTensor, dtype tensor.DataType) *tensor.RawTensor {
	if x.DType() == dtype {
		return x.Clone()
	}

	result := tensor.MustNewRaw(x.Shape(), dtype)
	values := toFloat64(x)
	switch dtype {
	case tensor.Float32:
		dst := result.AsFloat32()
		for i, v := range values {
			dst[i] = float32(v)
		}
	case tensor.Int32:
		dst := result.AsInt32()
		for i, v := range values {
			dst[i] = int32(v)
		}
	case tensor.Int64:
		dst := result.AsInt64()
		for i, v := range values {
			dst[i] = int64(v)
		}
	default:
		panic(fmt.Sprintf("cast: unsupported dtype %s", dtype))
	}
	return result
}

// Clamp limits every element of x to [lo, hi], keeping the dtype.
func (cpu *CPUBackend) Clamp(x *tensor.RawTensor, lo, hi float64) *tensor.RawTensor {
	result := tensor.ZerosLike(x)
	switch x.DType() {
	case tensor.Float32:
		dst := result.AsFloat32()
		for i, v := range x.AsFloat32() {
			dst[i] = float32(min(max(float64(v), lo), hi))
		}
	case tensor.Int32:
		dst := result.AsInt32()
		for i, v := range x.AsInt32() {
			dst[i] = int32(min(max(float64(v), lo), hi))
		}
	case tensor.Int64:
		dst := result.AsInt64()
		for i, v := range x.AsInt64() {
			dst[i] = int64(min(max(float64(v), lo), hi))
		}
	default:
		panic(fmt.Sprintf("clamp: unsupported dtype %s", x.DType()))
	}
	return result
}

func toFloat64(x *tensor.RawTensor) []float64 {
	out := make([]float64, x.NumElements())
	switch x.DType() {
	case tensor.Float32:
		for i, v := range x.AsFloat32() {
			out[i] = float64(v)
		}
	case tensor.Int32:
		for i, v := range x.AsInt32() {
			out[i] = float64(v)
		}
	case tensor.Int64:
		for i, v := range x.AsInt64() {
			out[i] = float64(v)
		}
	default:
		panic(fmt.Sprintf("cast: unsupported dtype %s", x.DType()))
	}
	return out
}
