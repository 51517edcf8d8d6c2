package nn_test

import (
	"math/rand"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/pretrained/internal/autodiff"
	"github.com/born-ml/pretrained/internal/backend/cpu"
	"github.com/born-ml/pretrained/internal/nn"
	"github.com/born-ml/pretrained/internal/tensor"
)

func TestLinear_Forward(t *testing.T) {
	backend := cpu.New()
	layer := nn.NewLinear("dense", 3, 2, backend, rand.New(rand.NewSource(1)))
	require.NoError(t, layer.Weight.SetData(must.M1(tensor.FromFloat32([]float32{1, 0, 0, 0, 1, 1}, tensor.Shape{2, 3}))))
	require.NoError(t, layer.Bias.SetData(must.M1(tensor.FromFloat32([]float32{10, 20}, tensor.Shape{2}))))

	x := must.M1(tensor.FromFloat32([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{1, 2, 3}))
	y := layer.Forward(x)

	assert.Equal(t, tensor.Shape{1, 2, 2}, y.Shape())
	assert.Equal(t, []float32{11, 25, 14, 31}, y.AsFloat32())
	assert.Equal(t, "dense.weight", layer.Weight.Name())
	assert.Equal(t, "dense.bias", layer.Bias.Name())
}

func TestConv1D_MatchesLinearWithTransposedWeight(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(2))
	lin := nn.NewLinear("a", 4, 3, backend, rng)
	conv := nn.NewConv1D("b", 4, 3, backend, rng)
	require.NoError(t, conv.Weight.SetData(backend.Transpose(lin.Weight.Tensor())))

	x := nn.Normal(tensor.Shape{2, 5, 4}, 1, rng)
	assert.InDeltaSlice(t, lin.Forward(x).AsFloat32(), conv.Forward(x).AsFloat32(), 1e-5)
}

func TestParameter_AccumulateGrad(t *testing.T) {
	p := nn.NewParameter("w", nn.Zeros(tensor.Shape{2}))
	g := tensor.Full(tensor.Shape{2}, 1.5)

	require.NoError(t, p.AccumulateGrad(g))
	require.NoError(t, p.AccumulateGrad(g))
	assert.Equal(t, []float32{3, 3}, p.Grad().AsFloat32())
	assert.Equal(t, []float32{1.5, 1.5}, g.AsFloat32(), "the source gradient is not aliased")

	assert.Error(t, p.AccumulateGrad(tensor.Full(tensor.Shape{3}, 1)))

	p.ZeroGrad()
	assert.Nil(t, p.Grad())
}

func TestAccumulateGrads_FromTape(t *testing.T) {
	backend := autodiff.New(cpu.New())
	layer := nn.NewLinear("dense", 3, 2, backend, rand.New(rand.NewSource(3)))
	x := tensor.Full(tensor.Shape{4, 3}, 1)

	backend.Tape().StartRecording()
	y := layer.Forward(x)
	backend.Tape().StopRecording()

	grads, err := backend.Tape().Backward([]*tensor.RawTensor{y}, []*tensor.RawTensor{tensor.Full(y.Shape(), 1)}, backend.Inner())
	require.NoError(t, err)

	n, err := nn.AccumulateGrads(layer.Parameters(), grads)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// dL/db sums over the 4 rows; dL/dW[o][i] = Σ_rows x = 4.
	assert.Equal(t, []float32{4, 4}, layer.Bias.Grad().AsFloat32())
	assert.InDeltaSlice(t, []float32{4, 4, 4, 4, 4, 4}, layer.Weight.Grad().AsFloat32(), 1e-6)
}

func TestDropout(t *testing.T) {
	backend := cpu.New()
	x := tensor.Full(tensor.Shape{1000}, 1)

	d := nn.NewDropout(0.5, backend, rand.New(rand.NewSource(4)))
	assert.Same(t, x, d.Forward(x), "evaluation mode is the identity")

	d.SetTraining(true)
	y := d.Forward(x).AsFloat32()
	zeros := 0
	for _, v := range y {
		if v == 0 {
			zeros++
		} else {
			assert.InDelta(t, 2.0, v, 1e-6)
		}
	}
	assert.InDelta(t, 500, zeros, 100)

	ds := nn.Dropouts{d, nn.NewDropout(0.1, backend, rand.New(rand.NewSource(5)))}
	ds.SetRate(1)
	for _, v := range d.Forward(x).AsFloat32() {
		assert.Zero(t, v)
	}
	ds.SetTraining(false)
	assert.False(t, ds[1].IsTraining())
	assert.Equal(t, float32(1), ds[1].P)
}

func TestMultiHeadAttention_Causal(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(6))
	mha := nn.NewMultiHeadAttention(8, 2, nn.NewConv1D("attn.c_proj", 8, 8, backend, rng), backend)
	mha.QKV = nn.NewConv1D("attn.c_attn", 8, 24, backend, rng)
	mha.Causal = true

	x := nn.Normal(tensor.Shape{2, 3, 8}, 1, rng)
	out, probs, keys, values := mha.Forward(x, nil)

	assert.Equal(t, tensor.Shape{2, 3, 8}, out.Shape())
	assert.Equal(t, tensor.Shape{2, 2, 3, 3}, probs.Shape())
	assert.Equal(t, tensor.Shape{2, 2, 3, 4}, keys.Shape())
	assert.Equal(t, tensor.Shape{2, 2, 3, 4}, values.Shape())

	p := probs.AsFloat32()
	for row := 0; row < 2*2*3; row++ {
		i := row % 3
		var sum float32
		for j := 0; j < 3; j++ {
			sum += p[row*3+j]
			if j > i {
				assert.InDelta(t, 0, p[row*3+j], 1e-6, "future position %d visible from %d", j, i)
			}
		}
		assert.InDelta(t, 1, sum, 1e-5)
	}
	assert.Len(t, mha.Parameters(), 4)
}

func TestMultiHeadAttention_PaddingMask(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(7))
	mha := nn.NewMultiHeadAttention(4, 1, nn.NewLinear("o", 4, 4, backend, rng), backend)
	mha.Query = nn.NewLinear("q", 4, 4, backend, rng)
	mha.Key = nn.NewLinear("k", 4, 4, backend, rng)
	mha.Value = nn.NewLinear("v", 4, 4, backend, rng)

	mask := must.M1(tensor.FromInt64([]int64{1, 1, 0}, tensor.Shape{1, 3}))
	ext := nn.ExtendedAttentionMask(mask)
	assert.Equal(t, tensor.Shape{1, 1, 1, 3}, ext.Shape())
	assert.Equal(t, []float32{0, 0, nn.MaskedValue}, ext.AsFloat32())

	_, probs, _, _ := mha.Forward(nn.Normal(tensor.Shape{1, 3, 4}, 1, rng), ext)
	p := probs.AsFloat32()
	for i := 0; i < 3; i++ {
		assert.InDelta(t, 0, p[i*3+2], 1e-4)
	}
	assert.Len(t, mha.Parameters(), 8)
}

func TestFeedForward(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(8))
	ffn := nn.NewFeedForward(nn.NewLinear("up", 4, 16, backend, rng), nn.NewLinear("down", 16, 4, backend, rng), nil, backend)

	y := ffn.Forward(nn.Normal(tensor.Shape{2, 3, 4}, 1, rng))
	assert.Equal(t, tensor.Shape{2, 3, 4}, y.Shape())
	assert.Equal(t, 16*4+16+4*16+4, nn.CountParameters(ffn.Parameters()))
	assert.Contains(t, nn.ByName(ffn.Parameters()), "down.bias")
}
