package models

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/born-ml/pretrained/internal/nn"
	"github.com/born-ml/pretrained/internal/tensor"
)

var xlmDefaults = Config{
	"model_type":              "xlm",
	"vocab_size":              30145,
	"emb_dim":                 2048,
	"n_layers":                12,
	"n_heads":                 16,
	"dropout":                 0.1,
	"attention_dropout":       0.1,
	"max_position_embeddings": 512,
	"layer_norm_eps":          1e-12,
}

// XLMModel is the XLM cross-lingual encoder (post-LayerNorm, single
// language). Its width lives under "emb_dim" and is reported through Dim.
//
// Outputs: (last_hidden, [hidden_states], [attentions]).
type XLMModel struct {
	base

	embeddings         *nn.Embedding
	positionEmbeddings *nn.Embedding
	layerNormEmb       *nn.LayerNorm
	drop               *nn.Dropout
	layers             []*xlmLayer

	dim          int
	vocabSize    int
	maxPositions int
}

type xlmLayer struct {
	attn    *nn.MultiHeadAttention
	norm1   *nn.LayerNorm
	ffn     *nn.FeedForward
	norm2   *nn.LayerNorm
	dropout *nn.Dropout
}

// NewXLMModel builds a randomly initialised XLM model from cfg.
func NewXLMModel(cfg Config, opts BuildOptions) (*XLMModel, error) {
	m := &XLMModel{base: newBase(cfg, xlmDefaults, opts)}
	c, b, rng := m.cfg, m.backend, m.rng

	m.dim = c.IntOr("emb_dim", 0)
	heads := c.IntOr("n_heads", 0)
	if m.dim <= 0 || heads <= 0 || m.dim%heads != 0 {
		return nil, errors.Errorf("xlm: emb_dim %d must be a positive multiple of n_heads %d", m.dim, heads)
	}
	eps := float32(c.FloatOr("layer_norm_eps", 1e-12))
	drop := c.FloatOr("dropout", 0.1)
	m.vocabSize = c.IntOr("vocab_size", 0)
	m.maxPositions = c.IntOr("max_position_embeddings", 0)

	m.embeddings = nn.NewEmbedding("embeddings", m.vocabSize, m.dim, b, rng)
	m.positionEmbeddings = nn.NewEmbedding("position_embeddings", m.maxPositions, m.dim, b, rng)
	m.layerNormEmb = nn.NewLayerNorm("layer_norm_emb", m.dim, eps, b)
	m.drop = m.dropout(drop)
	for i := range c.IntOr("n_layers", 0) {
		attn := nn.NewMultiHeadAttention(m.dim, heads, nn.NewLinear(fmt.Sprintf("attentions.%d.out_lin", i), m.dim, m.dim, b, rng), b)
		attn.Query = nn.NewLinear(fmt.Sprintf("attentions.%d.q_lin", i), m.dim, m.dim, b, rng)
		attn.Key = nn.NewLinear(fmt.Sprintf("attentions.%d.k_lin", i), m.dim, m.dim, b, rng)
		attn.Value = nn.NewLinear(fmt.Sprintf("attentions.%d.v_lin", i), m.dim, m.dim, b, rng)
		attn.Dropout = m.dropout(c.FloatOr("attention_dropout", 0.1))

		m.layers = append(m.layers, &xlmLayer{
			attn:  attn,
			norm1: nn.NewLayerNorm(fmt.Sprintf("layer_norm1.%d", i), m.dim, eps, b),
			ffn: nn.NewFeedForward(
				nn.NewLinear(fmt.Sprintf("ffns.%d.lin1", i), m.dim, 4*m.dim, b, rng),
				nn.NewLinear(fmt.Sprintf("ffns.%d.lin2", i), 4*m.dim, m.dim, b, rng),
				nn.GELU, b),
			norm2:   nn.NewLayerNorm(fmt.Sprintf("layer_norm2.%d", i), m.dim, eps, b),
			dropout: m.dropout(drop),
		})
	}
	return m, nil
}

// Dim returns the embedding width.
func (m *XLMModel) Dim() int {
	return m.dim
}

// Forward runs the encoder. An optional "attention_mask" kwarg masks padding.
func (m *XLMModel) Forward(ids *tensor.RawTensor, kwargs Kwargs) (Outputs, error) {
	batch, seq, err := checkInput(ids, m.vocabSize, m.maxPositions)
	if err != nil {
		return nil, err
	}
	mask, err := attentionMask(kwargs, batch, seq)
	if err != nil {
		return nil, err
	}

	b := m.backend
	x := b.Add(m.embeddings.Forward(ids), m.positionEmbeddings.Forward(nn.Positions(seq)))
	x = m.drop.Forward(m.layerNormEmb.Forward(x))

	out := layerOutputs{flags: m.flags}
	out.addHidden(x)
	for _, l := range m.layers {
		a, probs, _, _ := l.attn.Forward(x, mask)
		x = l.norm1.Forward(b.Add(x, l.dropout.Forward(a)))
		x = l.norm2.Forward(b.Add(x, l.dropout.Forward(l.ffn.Forward(x))))
		out.addHidden(x)
		out.addAttention(probs)
	}
	return out.pack(x), nil
}

// Parameters returns all trainable parameters.
func (m *XLMModel) Parameters() []*nn.Parameter {
	modules := []nn.Module{m.embeddings, m.positionEmbeddings, m.layerNormEmb}
	for _, l := range m.layers {
		modules = append(modules, l.attn, l.norm1, l.ffn, l.norm2)
	}
	return nn.Collect(modules...)
}
