package loader

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"os"
	"sort"

	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/born-ml/pretrained/internal/tensor"
)

// SafeTensors format:
// [8 bytes: header_size (uint64 LE)]
// [header_size bytes: JSON header]
// [tensor data: raw bytes]

// SafeTensorsDType represents SafeTensors data types.
type SafeTensorsDType string

// SafeTensors dtypes understood by the reader.
const (
	SafeTensorsF16  SafeTensorsDType = "F16"
	SafeTensorsF32  SafeTensorsDType = "F32"
	SafeTensorsBF16 SafeTensorsDType = "BF16"
	SafeTensorsI32  SafeTensorsDType = "I32"
	SafeTensorsI64  SafeTensorsDType = "I64"
)

const maxHeaderSize = 100 * 1024 * 1024

// SafeTensorInfo describes a tensor in SafeTensors format.
type SafeTensorInfo struct {
	DType       SafeTensorsDType `json:"dtype"`
	Shape       []int            `json:"shape"`
	DataOffsets [2]int64         `json:"data_offsets"` // [start, end]
}

// SafeTensorsHeader is the JSON header in SafeTensors format.
type SafeTensorsHeader struct {
	Metadata map[string]string
	Tensors  map[string]SafeTensorInfo
}

// UnmarshalJSON splits the flat header into metadata and tensor entries.
func (h *SafeTensorsHeader) UnmarshalJSON(data []byte) error {
	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(data, &rawMap); err != nil {
		return err
	}

	if metadataRaw, ok := rawMap["__metadata__"]; ok {
		if err := json.Unmarshal(metadataRaw, &h.Metadata); err != nil {
			return errors.Wrap(err, "failed to unmarshal metadata")
		}
	}

	h.Tensors = make(map[string]SafeTensorInfo, len(rawMap))
	for key, value := range rawMap {
		if key == "__metadata__" {
			continue
		}
		var info SafeTensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return errors.Wrapf(err, "failed to unmarshal tensor %s", key)
		}
		h.Tensors[key] = info
	}
	return nil
}

// SafeTensorsReader reads SafeTensors files.
type SafeTensorsReader struct {
	file       *os.File
	header     SafeTensorsHeader
	dataOffset int64
}

// NewSafeTensorsReader opens a SafeTensors file and parses its header.
func NewSafeTensorsReader(path string) (*SafeTensorsReader, error) {
	//nolint:gosec // G304: model paths come from the caller
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open safetensors file")
	}

	var headerSize uint64
	if err := binary.Read(file, binary.LittleEndian, &headerSize); err != nil {
		_ = file.Close()
		return nil, errors.Wrap(err, "failed to read header size")
	}
	if headerSize > maxHeaderSize {
		_ = file.Close()
		return nil, errors.Errorf("invalid header size: %d (too large)", headerSize)
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(file, headerBytes); err != nil {
		_ = file.Close()
		return nil, errors.Wrap(err, "failed to read header")
	}

	var header SafeTensorsHeader
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		_ = file.Close()
		return nil, errors.Wrap(err, "failed to parse header JSON")
	}

	return &SafeTensorsReader{
		file:       file,
		header:     header,
		dataOffset: int64(8 + headerSize), //nolint:gosec // bounded by maxHeaderSize
	}, nil
}

// Close closes the file.
func (r *SafeTensorsReader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// Metadata returns the metadata map from the header.
func (r *SafeTensorsReader) Metadata() map[string]string {
	return r.header.Metadata
}

// TensorNames returns the names of all tensors, sorted.
func (r *SafeTensorsReader) TensorNames() []string {
	names := make([]string, 0, len(r.header.Tensors))
	for name := range r.header.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TensorInfo returns information about a tensor.
func (r *SafeTensorsReader) TensorInfo(name string) (*SafeTensorInfo, error) {
	info, ok := r.header.Tensors[name]
	if !ok {
		return nil, errors.Errorf("tensor %s not found", name)
	}
	return &info, nil
}

// ReadTensorData reads the raw bytes of a tensor.
func (r *SafeTensorsReader) ReadTensorData(name string) ([]byte, error) {
	info, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}

	start := r.dataOffset + info.DataOffsets[0]
	size := info.DataOffsets[1] - info.DataOffsets[0]
	if size < 0 {
		return nil, errors.Errorf("invalid data offsets for tensor %s: [%d, %d]",
			name, info.DataOffsets[0], info.DataOffsets[1])
	}

	data := make([]byte, size)
	if _, err := r.file.ReadAt(data, start); err != nil {
		return nil, errors.Wrapf(err, "failed to read data of tensor %s", name)
	}
	return data, nil
}

// LoadTensor loads a tensor. Floating point tensors of any supported
// precision are returned as Float32.
func (r *SafeTensorsReader) LoadTensor(name string) (*tensor.RawTensor, error) {
	info, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}
	shape := tensor.Shape(info.Shape)
	if err := shape.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid shape for tensor %s", name)
	}

	data, err := r.ReadTensorData(name)
	if err != nil {
		return nil, err
	}

	raw, err := decodeTensor(info.DType, shape, data)
	if err != nil {
		return nil, errors.WithMessagef(err, "tensor %s", name)
	}
	return raw, nil
}

// LoadAll loads every tensor, renaming each through mapper (which may be nil).
// Tensors the mapper drops are skipped.
func (r *SafeTensorsReader) LoadAll(mapper WeightMapper) (map[string]*tensor.RawTensor, error) {
	out := make(map[string]*tensor.RawTensor, len(r.header.Tensors))
	for _, name := range r.TensorNames() {
		target := name
		if mapper != nil {
			var ok bool
			if target, ok = mapper.MapName(name); !ok {
				continue
			}
		}
		raw, err := r.LoadTensor(name)
		if err != nil {
			return nil, err
		}
		out[target] = raw
	}
	return out, nil
}

func decodeTensor(dtype SafeTensorsDType, shape tensor.Shape, data []byte) (*tensor.RawTensor, error) {
	n := shape.NumElements()
	want := n * bytesPerElement(dtype)
	if bytesPerElement(dtype) == 0 {
		return nil, errors.Errorf("unsupported dtype: %s", dtype)
	}
	if len(data) != want {
		return nil, errors.Errorf("%s data has %d bytes, expected %d", dtype, len(data), want)
	}

	switch dtype {
	case SafeTensorsF32, SafeTensorsI32, SafeTensorsI64:
		target := map[SafeTensorsDType]tensor.DataType{
			SafeTensorsF32: tensor.Float32,
			SafeTensorsI32: tensor.Int32,
			SafeTensorsI64: tensor.Int64,
		}[dtype]
		raw, err := tensor.NewRaw(shape, target)
		if err != nil {
			return nil, err
		}
		copy(raw.Data(), data)
		return raw, nil

	case SafeTensorsF16:
		raw, err := tensor.NewRaw(shape, tensor.Float32)
		if err != nil {
			return nil, err
		}
		dst := raw.AsFloat32()
		for i := range dst {
			dst[i] = float16.Frombits(binary.LittleEndian.Uint16(data[2*i:])).Float32()
		}
		return raw, nil

	case SafeTensorsBF16:
		raw, err := tensor.NewRaw(shape, tensor.Float32)
		if err != nil {
			return nil, err
		}
		dst := raw.AsFloat32()
		for i := range dst {
			// bfloat16 is the upper half of an IEEE float32.
			dst[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(data[2*i:])) << 16)
		}
		return raw, nil
	}
	return nil, errors.Errorf("unsupported dtype: %s", dtype)
}

func bytesPerElement(dtype SafeTensorsDType) int {
	switch dtype {
	case SafeTensorsF16, SafeTensorsBF16:
		return 2
	case SafeTensorsF32, SafeTensorsI32:
		return 4
	case SafeTensorsI64:
		return 8
	default:
		return 0
	}
}
