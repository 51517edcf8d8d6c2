package nn

import (
	"fmt"
	"math"

	"github.com/born-ml/pretrained/internal/tensor"
)

// MaskedValue is added to attention scores at masked positions.
const MaskedValue = -10000

// MultiHeadAttention implements multi-head self-attention.
//
//	MHA(x) = Concat(head_1, ..., head_h) W_O
//	head_i = softmax(Q_i K_i^T / sqrt(d_head) + mask) V_i
//
// Queries, keys and values come either from three separate projections
// (BERT, XLM, XLNet) or from one fused projection producing [Q | K | V]
// (GPT-2 and OpenAI GPT c_attn). Set QKV for the fused form and leave
// Query, Key and Value nil.
type MultiHeadAttention struct {
	Query, Key, Value Projection
	QKV               Projection
	Output            Projection

	NumHeads int
	EmbedDim int
	Causal   bool
	Dropout  *Dropout // applied to attention probabilities, may be nil
	backend  tensor.Backend
}

// NewMultiHeadAttention creates an attention layer with the given output
// projection. Callers then set either QKV or Query, Key and Value.
func NewMultiHeadAttention(embedDim, numHeads int, output Projection, backend tensor.Backend) *MultiHeadAttention {
	if numHeads <= 0 || embedDim%numHeads != 0 {
		panic(fmt.Sprintf("MultiHeadAttention: embed_dim (%d) must be divisible by num_heads (%d)", embedDim, numHeads))
	}
	return &MultiHeadAttention{
		Output:   output,
		NumHeads: numHeads,
		EmbedDim: embedDim,
		backend:  backend,
	}
}

// Forward computes self-attention over x [batch, seq, embed_dim].
//
// mask is an additive float32 mask broadcastable to [batch, heads, seq, seq]
// (see ExtendedAttentionMask), or nil. It returns the projected output and
// the attention probabilities [batch, heads, seq, seq]. keys and values are
// the per-head key and value tensors, which decoder models expose as their
// cache.
func (m *MultiHeadAttention) Forward(x, mask *RawTensor) (out, probs, keys, values *RawTensor) {
	shape := x.Shape()
	if len(shape) != 3 || shape[2] != m.EmbedDim {
		panic(fmt.Sprintf("MultiHeadAttention.Forward: expected [batch, seq, %d], got %v", m.EmbedDim, shape))
	}
	batch, seq := shape[0], shape[1]
	b := m.backend

	var q, k, v *RawTensor
	if m.QKV != nil {
		qkv := m.QKV.Forward(x)
		q = b.Slice(qkv, -1, 0, m.EmbedDim)
		k = b.Slice(qkv, -1, m.EmbedDim, 2*m.EmbedDim)
		v = b.Slice(qkv, -1, 2*m.EmbedDim, 3*m.EmbedDim)
	} else {
		q, k, v = m.Query.Forward(x), m.Key.Forward(x), m.Value.Forward(x)
	}

	headDim := m.EmbedDim / m.NumHeads
	q = m.splitHeads(q, batch, seq, headDim)
	k = m.splitHeads(k, batch, seq, headDim)
	v = m.splitHeads(v, batch, seq, headDim)

	scores := b.MulScalar(b.BatchMatMul(q, b.Transpose(k)), float32(1/math.Sqrt(float64(headDim))))
	if m.Causal {
		scores = b.Add(scores, CausalMask(seq))
	}
	if mask != nil {
		scores = b.Add(scores, mask)
	}
	probs = b.Softmax(scores)

	attended := probs
	if m.Dropout != nil {
		attended = m.Dropout.Forward(probs)
	}
	ctx := b.BatchMatMul(attended, v)                  // [batch, heads, seq, head_dim]
	ctx = b.Transpose(ctx, 0, 2, 1, 3)                 // [batch, seq, heads, head_dim]
	ctx = b.Reshape(ctx, tensor.Shape{batch, seq, -1}) // [batch, seq, embed_dim]

	return m.Output.Forward(ctx), probs, k, v
}

// splitHeads reshapes [batch, seq, embed] into [batch, heads, seq, head_dim].
func (m *MultiHeadAttention) splitHeads(x *RawTensor, batch, seq, headDim int) *RawTensor {
	x = m.backend.Reshape(x, tensor.Shape{batch, seq, m.NumHeads, headDim})
	return m.backend.Transpose(x, 0, 2, 1, 3)
}

// Parameters returns the parameters of all projections.
func (m *MultiHeadAttention) Parameters() []*Parameter {
	var modules []Module
	if m.QKV != nil {
		modules = append(modules, m.QKV)
	} else {
		modules = append(modules, m.Query, m.Key, m.Value)
	}
	return Collect(append(modules, m.Output)...)
}

// ExtendedAttentionMask turns a [batch, seq] mask of ones (attend) and
// zeros (ignore) into the additive [batch, 1, 1, seq] float32 mask expected
// by MultiHeadAttention.Forward. Integer and float masks are accepted.
func ExtendedAttentionMask(mask *RawTensor) *RawTensor {
	shape := mask.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("ExtendedAttentionMask: expected [batch, seq], got %v", shape))
	}
	out := tensor.MustNewRaw(tensor.Shape{shape[0], 1, 1, shape[1]}, tensor.Float32)
	dst := out.AsFloat32()
	for i, keep := range maskValues(mask) {
		dst[i] = (1 - keep) * MaskedValue
	}
	return out
}

func maskValues(mask *RawTensor) []float32 {
	out := make([]float32, mask.NumElements())
	switch mask.DType() {
	case tensor.Float32:
		copy(out, mask.AsFloat32())
	case tensor.Int64:
		for i, v := range mask.AsInt64() {
			out[i] = float32(v)
		}
	case tensor.Int32:
		for i, v := range mask.AsInt32() {
			out[i] = float32(v)
		}
	}
	return out
}

// CausalMask returns the additive [seq, seq] mask hiding future positions.
func CausalMask(seq int) *RawTensor {
	out := tensor.MustNewRaw(tensor.Shape{seq, seq}, tensor.Float32)
	data := out.AsFloat32()
	for i := 0; i < seq; i++ {
		for j := i + 1; j < seq; j++ {
			data[i*seq+j] = MaskedValue
		}
	}
	return out
}
