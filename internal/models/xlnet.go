package models

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/pretrained/internal/nn"
	"github.com/born-ml/pretrained/internal/tensor"
)

var xlnetDefaults = Config{
	"model_type":     "xlnet",
	"vocab_size":     32000,
	"d_model":        1024,
	"n_layer":        24,
	"n_head":         16,
	"d_inner":        4096,
	"ff_activation":  "gelu",
	"layer_norm_eps": 1e-12,
	"dropout":        0.1,
}

// XLNetModel is an XLNet-style bidirectional encoder.
//
// Attention is plain content attention over sinusoidal position encodings;
// the two-stream relative attention of the original model is not
// implemented, so only the layer norms and feed-forward weights of an XLNet
// checkpoint line up with this model.
//
// Outputs: (last_hidden, mems, [hidden_states], [attentions]). mems is a
// Cache holding the input of every layer.
type XLNetModel struct {
	base

	wordEmbedding    *nn.Embedding
	segmentEmbedding *nn.Embedding
	drop             *nn.Dropout
	layers           []*xlnetLayer

	vocabSize int
	dModel    int
}

type xlnetLayer struct {
	attn     *nn.MultiHeadAttention
	attnNorm *nn.LayerNorm
	ff       *nn.FeedForward
	ffNorm   *nn.LayerNorm
	dropout  *nn.Dropout
}

// NewXLNetModel builds a randomly initialised XLNet model from cfg.
func NewXLNetModel(cfg Config, opts BuildOptions) (*XLNetModel, error) {
	m := &XLNetModel{base: newBase(cfg, xlnetDefaults, opts)}
	c, b, rng := m.cfg, m.backend, m.rng

	m.dModel = c.IntOr("d_model", 0)
	heads := c.IntOr("n_head", 0)
	if m.dModel <= 0 || heads <= 0 || m.dModel%heads != 0 {
		return nil, errors.Errorf("xlnet: d_model %d must be a positive multiple of n_head %d", m.dModel, heads)
	}
	inner := c.IntOr("d_inner", 4*m.dModel)
	eps := float32(c.FloatOr("layer_norm_eps", 1e-12))
	drop := c.FloatOr("dropout", 0.1)
	m.vocabSize = c.IntOr("vocab_size", 0)

	m.wordEmbedding = nn.NewEmbedding("word_embedding", m.vocabSize, m.dModel, b, rng)
	m.segmentEmbedding = nn.NewEmbedding("segment_embedding", 2, m.dModel, b, rng)
	m.drop = m.dropout(drop)
	for i := range c.IntOr("n_layer", 0) {
		prefix := fmt.Sprintf("layer.%d.", i)
		attn := nn.NewMultiHeadAttention(m.dModel, heads, nn.NewLinear(prefix+"rel_attn.o", m.dModel, m.dModel, b, rng), b)
		attn.Query = nn.NewLinear(prefix+"rel_attn.q", m.dModel, m.dModel, b, rng)
		attn.Key = nn.NewLinear(prefix+"rel_attn.k", m.dModel, m.dModel, b, rng)
		attn.Value = nn.NewLinear(prefix+"rel_attn.v", m.dModel, m.dModel, b, rng)
		attn.Dropout = m.dropout(drop)

		m.layers = append(m.layers, &xlnetLayer{
			attn:     attn,
			attnNorm: nn.NewLayerNorm(prefix+"rel_attn.layer_norm", m.dModel, eps, b),
			ff: nn.NewFeedForward(
				nn.NewLinear(prefix+"ff.layer_1", m.dModel, inner, b, rng),
				nn.NewLinear(prefix+"ff.layer_2", inner, m.dModel, b, rng),
				nn.GELU, b),
			ffNorm:  nn.NewLayerNorm(prefix+"ff.layer_norm", m.dModel, eps, b),
			dropout: m.dropout(drop),
		})
	}
	return m, nil
}

// Forward runs the encoder. Recognised kwargs: "attention_mask" and
// "token_type_ids" (segment ids 0 or 1).
func (m *XLNetModel) Forward(ids *tensor.RawTensor, kwargs Kwargs) (Outputs, error) {
	batch, seq, err := checkInput(ids, m.vocabSize, 0)
	if err != nil {
		return nil, err
	}
	mask, err := attentionMask(kwargs, batch, seq)
	if err != nil {
		return nil, err
	}
	segments, err := kwarg(kwargs, "token_type_ids", batch, seq)
	if err != nil {
		return nil, err
	}

	b := m.backend
	x := b.Add(m.wordEmbedding.Forward(ids), sinusoidalPositions(seq, m.dModel))
	if segments != nil {
		x = b.Add(x, m.segmentEmbedding.Forward(b.Clamp(segments, 0, 1)))
	}
	x = m.drop.Forward(x)

	out := layerOutputs{flags: m.flags}
	var mems Cache
	for _, l := range m.layers {
		out.addHidden(x)
		mems = append(mems, x)
		a, probs, _, _ := l.attn.Forward(x, mask)
		x = l.attnNorm.Forward(b.Add(x, l.dropout.Forward(a)))
		x = l.ffNorm.Forward(b.Add(x, l.dropout.Forward(l.ff.Forward(x))))
		out.addAttention(probs)
	}
	out.addHidden(x)
	return out.pack(x, mems), nil
}

// Parameters returns all trainable parameters.
func (m *XLNetModel) Parameters() []*nn.Parameter {
	modules := []nn.Module{m.wordEmbedding, m.segmentEmbedding}
	for _, l := range m.layers {
		modules = append(modules, l.attn, l.attnNorm, l.ff, l.ffNorm)
	}
	return nn.Collect(modules...)
}

// sinusoidalPositions returns the [seq, dim] transformer position encoding.
func sinusoidalPositions(seq, dim int) *tensor.RawTensor {
	out := tensor.MustNewRaw(tensor.Shape{seq, dim}, tensor.Float32)
	data := out.AsFloat32()
	for pos := 0; pos < seq; pos++ {
		for i := 0; i < dim; i += 2 {
			angle := float64(pos) / math.Pow(10000, float64(i)/float64(dim))
			data[pos*dim+i] = float32(math.Sin(angle))
			if i+1 < dim {
				data[pos*dim+i+1] = float32(math.Cos(angle))
			}
		}
	}
	return out
}
