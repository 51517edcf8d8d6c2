// Package tensor provides the core tensor types shared by the backends,
// the autodiff tape and the pretrained model families.
package tensor

// DataType represents runtime type information for tensors.
type DataType int

// Supported data types for tensors.
const (
	Float32 DataType = iota
	Int32
	Int64
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Int64:
		return 8
	default:
		panic("unknown data type")
	}
}

// IsInteger reports whether the data type holds integers.
func (dt DataType) IsInteger() bool {
	return dt == Int32 || dt == Int64
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	default:
		return "unknown"
	}
}
