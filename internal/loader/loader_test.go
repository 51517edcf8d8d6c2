package loader

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/born-ml/pretrained/internal/tensor"
)

func TestSafeTensors_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.safetensors")
	weights := map[string]*tensor.RawTensor{
		"weight": must.M1(tensor.FromFloat32([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})),
		"bias":   must.M1(tensor.FromFloat32([]float32{0.5, -0.5, 0}, tensor.Shape{3})),
		"ids":    must.M1(tensor.FromInt64([]int64{7, 8}, tensor.Shape{2})),
	}
	require.NoError(t, SaveSafeTensors(path, weights, WriteOptions{Metadata: map[string]string{"format": "pt"}}))

	r, err := NewSafeTensorsReader(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []string{"bias", "ids", "weight"}, r.TensorNames())
	assert.Equal(t, "pt", r.Metadata()["format"])

	w, err := r.LoadTensor("weight")
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3}, w.Shape())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, w.AsFloat32())

	ids, err := r.LoadTensor("ids")
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 8}, ids.AsInt64())

	_, err = r.LoadTensor("missing")
	assert.Error(t, err)
}

func TestSafeTensors_HalfPrecision(t *testing.T) {
	path := filepath.Join(t.TempDir(), "half.safetensors")
	values := []float32{1, -2.5, 0.099975586}
	src := map[string]*tensor.RawTensor{"w": must.M1(tensor.FromFloat32(values, tensor.Shape{3}))}
	require.NoError(t, SaveSafeTensors(path, src, WriteOptions{Half: true}))

	r := must.M1(NewSafeTensorsReader(path))
	defer r.Close()
	info := must.M1(r.TensorInfo("w"))
	assert.Equal(t, SafeTensorsF16, info.DType)

	w := must.M1(r.LoadTensor("w"))
	for i, v := range values {
		assert.Equal(t, float16.Fromfloat32(v).Float32(), w.AsFloat32()[i])
	}
}

func TestDecodeTensor_BF16(t *testing.T) {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint16(data[0:], uint16(math.Float32bits(1.5)>>16))
	binary.LittleEndian.PutUint16(data[2:], uint16(math.Float32bits(-3)>>16))

	raw, err := decodeTensor(SafeTensorsBF16, tensor.Shape{2}, data)
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, -3}, raw.AsFloat32())

	_, err = decodeTensor(SafeTensorsBF16, tensor.Shape{3}, data)
	assert.Error(t, err, "size mismatch")
	_, err = decodeTensor("U8", tensor.Shape{4}, data)
	assert.Error(t, err)
}

func TestWriteSafeTensors_HeaderAlignment(t *testing.T) {
	var buf bytes.Buffer
	src := map[string]*tensor.RawTensor{"x": tensor.Full(tensor.Shape{1}, 1)}
	require.NoError(t, WriteSafeTensors(&buf, src, WriteOptions{}))

	headerSize := binary.LittleEndian.Uint64(buf.Bytes()[:8])
	assert.Zero(t, headerSize%8)
	assert.Equal(t, int(8+headerSize+4), buf.Len())
}

func TestNewSafeTensorsReader_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := NewSafeTensorsReader(filepath.Join(dir, "nope.safetensors"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.safetensors")
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(4)))
	buf.WriteString("{{{{")
	require.NoError(t, os.WriteFile(bad, buf.Bytes(), 0o600))
	_, err = NewSafeTensorsReader(bad)
	assert.Error(t, err)
}

func TestHFMapper(t *testing.T) {
	tests := []struct {
		family string
		in     string
		want   string
		keep   bool
	}{
		{"bert", "bert.encoder.layer.0.attention.output.LayerNorm.gamma", "encoder.layer.0.attention.output.LayerNorm.weight", true},
		{"bert", "bert.embeddings.LayerNorm.beta", "embeddings.LayerNorm.bias", true},
		{"bert", "pooler.dense.weight", "pooler.dense.weight", true},
		{"bert", "cls.predictions.bias", "", false},
		{"gpt2", "transformer.h.0.attn.c_attn.weight", "h.0.attn.c_attn.weight", true},
		{"gpt2", "lm_head.weight", "", false},
		{"xlm", "pred_layer.proj.weight", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NewHFMapper(tt.family).MapName(tt.in)
			assert.Equal(t, tt.keep, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadAll_UsesMapper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.safetensors")
	src := map[string]*tensor.RawTensor{
		"bert.pooler.dense.bias":          tensor.Full(tensor.Shape{2}, 1),
		"cls.predictions.bias":            tensor.Full(tensor.Shape{2}, 2),
		"bert.embeddings.LayerNorm.gamma": tensor.Full(tensor.Shape{2}, 3),
	}
	require.NoError(t, SaveSafeTensors(path, src, WriteOptions{}))

	r := must.M1(NewSafeTensorsReader(path))
	defer r.Close()
	weights, err := r.LoadAll(NewHFMapper("bert"))
	require.NoError(t, err)
	assert.Len(t, weights, 2)
	assert.Contains(t, weights, "pooler.dense.bias")
	assert.Equal(t, []float32{3, 3}, weights["embeddings.LayerNorm.weight"].AsFloat32())
}

func TestConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, SaveConfig(path, map[string]any{"hidden_size": 768, "model_type": "bert"}))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, float64(768), cfg["hidden_size"])
	assert.Equal(t, "bert", cfg["model_type"])

	require.NoError(t, os.WriteFile(path, []byte("null"), 0o600))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}
