package loader

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"
	"os"
	"sort"

	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/born-ml/pretrained/internal/tensor"
)

// WriteOptions controls how tensors are encoded.
type WriteOptions struct {
	// Metadata is stored under "__metadata__".
	Metadata map[string]string

	// Half stores float32 tensors as F16.
	Half bool
}

// WriteSafeTensors encodes tensors in SafeTensors format. Tensors are laid
// out in name order so the output is deterministic.
func WriteSafeTensors(w io.Writer, tensors map[string]*tensor.RawTensor, opts WriteOptions) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(names)+1)
	if len(opts.Metadata) > 0 {
		header["__metadata__"] = opts.Metadata
	}
	var offset int64
	payloads := make([][]byte, len(names))
	for i, name := range names {
		dtype, payload, err := encodeTensor(tensors[name], opts.Half)
		if err != nil {
			return errors.WithMessagef(err, "tensor %s", name)
		}
		payloads[i] = payload
		header[name] = SafeTensorInfo{
			DType:       dtype,
			Shape:       tensors[name].Shape(),
			DataOffsets: [2]int64{offset, offset + int64(len(payload))},
		}
		offset += int64(len(payload))
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "failed to marshal header")
	}
	// Pad the header with spaces to an 8-byte boundary.
	for len(headerJSON)%8 != 0 {
		headerJSON = append(headerJSON, ' ')
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return errors.Wrap(err, "failed to write header size")
	}
	if _, err := w.Write(headerJSON); err != nil {
		return errors.Wrap(err, "failed to write header")
	}
	for i, payload := range payloads {
		if _, err := w.Write(payload); err != nil {
			return errors.Wrapf(err, "failed to write tensor %s", names[i])
		}
	}
	return nil
}

// SaveSafeTensors writes tensors to a file at path.
func SaveSafeTensors(path string, tensors map[string]*tensor.RawTensor, opts WriteOptions) (err error) {
	//nolint:gosec // G304: output path comes from the caller
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create safetensors file")
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = errors.Wrap(cerr, "failed to close safetensors file")
		}
	}()

	buf := bufio.NewWriter(f)
	if err := WriteSafeTensors(buf, tensors, opts); err != nil {
		return err
	}
	return errors.Wrap(buf.Flush(), "failed to flush safetensors file")
}

func encodeTensor(t *tensor.RawTensor, half bool) (SafeTensorsDType, []byte, error) {
	switch t.DType() {
	case tensor.Float32:
		if !half {
			return SafeTensorsF32, append([]byte(nil), t.Data()...), nil
		}
		values := t.AsFloat32()
		out := make([]byte, 2*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint16(out[2*i:], float16.Fromfloat32(v).Bits())
		}
		return SafeTensorsF16, out, nil
	case tensor.Int32:
		return SafeTensorsI32, append([]byte(nil), t.Data()...), nil
	case tensor.Int64:
		return SafeTensorsI64, append([]byte(nil), t.Data()...), nil
	default:
		return "", nil, errors.Errorf("unsupported dtype %s", t.DType())
	}
}
