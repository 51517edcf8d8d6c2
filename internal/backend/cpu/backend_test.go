package cpu

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/pretrained/internal/parallel"
	"github.com/born-ml/pretrained/internal/tensor"
)

func mustFloat32(t *testing.T, data []float32, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.FromFloat32(data, shape)
	require.NoError(t, err)
	return raw
}

func TestCPUBackend_AddBroadcast(t *testing.T) {
	cpu := New()
	a := mustFloat32(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	b := mustFloat32(t, []float32{10, 20, 30}, tensor.Shape{3})

	out := cpu.Add(a, b)
	assert.Equal(t, tensor.Shape{2, 3}, out.Shape())
	assert.Equal(t, []float32{11, 22, 33, 14, 25, 36}, out.AsFloat32())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, a.AsFloat32(), "inputs are never modified")
}

func TestCPUBackend_MulMask(t *testing.T) {
	cpu := New()
	scores := mustFloat32(t, []float32{1, 1, 1, 1, 1, 1, 1, 1}, tensor.Shape{2, 1, 2, 2})
	mask := mustFloat32(t, []float32{1, 0, 0, 1}, tensor.Shape{2, 1, 1, 2})

	out := cpu.Mul(scores, mask)
	assert.Equal(t, []float32{1, 0, 1, 0, 0, 1, 0, 1}, out.AsFloat32())
}

func TestCPUBackend_MatMul(t *testing.T) {
	cpu := New()
	a := mustFloat32(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	b := mustFloat32(t, []float32{7, 8, 9, 10, 11, 12}, tensor.Shape{3, 2})

	out := cpu.MatMul(a, b)
	assert.Equal(t, tensor.Shape{2, 2}, out.Shape())
	assert.Equal(t, []float32{58, 64, 139, 154}, out.AsFloat32())

	assert.Panics(t, func() { cpu.MatMul(a, a) })
}

func TestCPUBackend_BatchMatMul(t *testing.T) {
	cpu := New()
	a := mustFloat32(t, []float32{1, 0, 0, 1, 2, 0, 0, 2}, tensor.Shape{2, 2, 2})
	b := mustFloat32(t, []float32{1, 2, 3, 4, 1, 2, 3, 4}, tensor.Shape{2, 2, 2})

	out := cpu.BatchMatMul(a, b)
	assert.Equal(t, []float32{1, 2, 3, 4, 2, 4, 6, 8}, out.AsFloat32())
}

func TestCPUBackend_TransposeAndReshape(t *testing.T) {
	cpu := New()
	x := mustFloat32(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})

	tr := cpu.Transpose(x)
	assert.Equal(t, tensor.Shape{3, 2}, tr.Shape())
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, tr.AsFloat32())

	r := cpu.Reshape(x, tensor.Shape{3, -1})
	assert.Equal(t, tensor.Shape{3, 2}, r.Shape())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, r.AsFloat32())
	assert.NotSame(t, x, r)

	x3 := mustFloat32(t, []float32{0, 1, 2, 3, 4, 5, 6, 7}, tensor.Shape{2, 2, 2})
	p := cpu.Transpose(x3, 1, 0, 2)
	assert.Equal(t, []float32{0, 1, 4, 5, 2, 3, 6, 7}, p.AsFloat32())
}

func TestCPUBackend_Slice(t *testing.T) {
	cpu := New()
	x := mustFloat32(t, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, tensor.Shape{2, 3, 2})

	first := cpu.Slice(x, 1, 0, 1)
	assert.Equal(t, tensor.Shape{2, 1, 2}, first.Shape())
	assert.Equal(t, []float32{1, 2, 7, 8}, first.AsFloat32())

	assert.Panics(t, func() { cpu.Slice(x, 1, 2, 4) })
}

func TestCPUBackend_SoftmaxAndLayerNorm(t *testing.T) {
	cpu := New()
	x := mustFloat32(t, []float32{1, 2, 3, 1, 1, 1}, tensor.Shape{2, 3})

	s := cpu.Softmax(x).AsFloat32()
	assert.InDelta(t, 1.0, float64(s[0]+s[1]+s[2]), 1e-6)
	assert.InDelta(t, 1.0/3, float64(s[4]), 1e-6)

	gamma := tensor.Full(tensor.Shape{3}, 1)
	beta := tensor.Full(tensor.Shape{3}, 0)
	ln := cpu.LayerNorm(x, gamma, beta, 1e-5).AsFloat32()
	assert.InDelta(t, 0, float64(ln[0]+ln[1]+ln[2]), 1e-5)
	assert.InDelta(t, 0, float64(ln[3]), 1e-5)
}

func TestCPUBackend_EmbeddingClampCast(t *testing.T) {
	cpu := New()
	weight := mustFloat32(t, []float32{0, 0, 1, 1, 2, 2}, tensor.Shape{3, 2})
	ids, err := tensor.FromInt32([]int32{2, 0}, tensor.Shape{1, 2})
	require.NoError(t, err)

	emb := cpu.Embedding(weight, ids)
	assert.Equal(t, tensor.Shape{1, 2, 2}, emb.Shape())
	assert.Equal(t, []float32{2, 2, 0, 0}, emb.AsFloat32())

	wide := cpu.Cast(ids, tensor.Int64)
	assert.Equal(t, tensor.Int64, wide.DType())
	assert.Equal(t, []int64{2, 0}, wide.AsInt64())
	assert.Equal(t, []int64{1, 0}, cpu.Clamp(wide, 0, 1).AsInt64())

	bad, err := tensor.FromInt64([]int64{3}, tensor.Shape{1})
	require.NoError(t, err)
	assert.Panics(t, func() { cpu.Embedding(weight, bad) })
}

func TestCPUBackend_ParallelMatchesSequential(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	data := make([]float32, 8*130*16)
	for i := range data {
		data[i] = float32(rng.NormFloat64())
	}
	x := mustFloat32(t, data, tensor.Shape{8, 130, 16})
	gamma, beta := tensor.Full(tensor.Shape{16}, 1.5), tensor.Full(tensor.Shape{16}, -0.5)

	par := NewWithConfig(parallel.Config{Workers: 4, MinChunk: 8})
	seq := NewWithConfig(parallel.Sequential())

	assert.Equal(t, seq.Softmax(x).AsFloat32(), par.Softmax(x).AsFloat32())
	assert.Equal(t, seq.LayerNorm(x, gamma, beta, 1e-5).AsFloat32(), par.LayerNorm(x, gamma, beta, 1e-5).AsFloat32())
	xt := seq.Transpose(x, 0, 2, 1)
	assert.Equal(t, seq.BatchMatMul(x, xt).AsFloat32(), par.BatchMatMul(x, xt).AsFloat32())
}
