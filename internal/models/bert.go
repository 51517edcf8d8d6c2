package models

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/born-ml/pretrained/internal/nn"
	"github.com/born-ml/pretrained/internal/tensor"
)

var bertDefaults = Config{
	"model_type":                   "bert",
	"vocab_size":                   30522,
	"hidden_size":                  768,
	"num_hidden_layers":            12,
	"num_attention_heads":          12,
	"intermediate_size":            3072,
	"hidden_dropout_prob":          0.1,
	"attention_probs_dropout_prob": 0.1,
	"max_position_embeddings":      512,
	"type_vocab_size":              2,
	"layer_norm_eps":               1e-12,
}

// BertModel is a BERT encoder with its pooler.
//
// Outputs: (last_hidden [batch, seq, hidden], pooled [batch, hidden],
// [hidden_states], [attentions]). The pooled output is tanh(W·h_0 + b) of the
// first token.
type BertModel struct {
	base

	wordEmbeddings      *nn.Embedding
	positionEmbeddings  *nn.Embedding
	tokenTypeEmbeddings *nn.Embedding
	embeddingNorm       *nn.LayerNorm
	embeddingDropout    *nn.Dropout
	layers              []*bertLayer
	pooler              *nn.Linear

	vocabSize    int
	maxPositions int
}

type bertLayer struct {
	attention     *nn.MultiHeadAttention
	attentionNorm *nn.LayerNorm
	ffn           *nn.FeedForward
	outputNorm    *nn.LayerNorm
	dropout       *nn.Dropout
}

// NewBertModel builds a randomly initialised BERT model from cfg.
func NewBertModel(cfg Config, opts BuildOptions) (*BertModel, error) {
	m := &BertModel{base: newBase(cfg, bertDefaults, opts)}
	c, b, rng := m.cfg, m.backend, m.rng

	hidden := c.IntOr("hidden_size", 0)
	heads := c.IntOr("num_attention_heads", 0)
	if hidden <= 0 || heads <= 0 || hidden%heads != 0 {
		return nil, errors.Errorf("bert: hidden_size %d must be a positive multiple of num_attention_heads %d", hidden, heads)
	}
	inner := c.IntOr("intermediate_size", 4*hidden)
	eps := float32(c.FloatOr("layer_norm_eps", 1e-12))
	hiddenDrop := c.FloatOr("hidden_dropout_prob", 0.1)
	attnDrop := c.FloatOr("attention_probs_dropout_prob", 0.1)
	m.vocabSize = c.IntOr("vocab_size", 0)
	m.maxPositions = c.IntOr("max_position_embeddings", 0)

	m.wordEmbeddings = nn.NewEmbedding("embeddings.word_embeddings", m.vocabSize, hidden, b, rng)
	m.positionEmbeddings = nn.NewEmbedding("embeddings.position_embeddings", m.maxPositions, hidden, b, rng)
	m.tokenTypeEmbeddings = nn.NewEmbedding("embeddings.token_type_embeddings", c.IntOr("type_vocab_size", 2), hidden, b, rng)
	m.embeddingNorm = nn.NewLayerNorm("embeddings.LayerNorm", hidden, eps, b)
	m.embeddingDropout = m.dropout(hiddenDrop)

	for i := range c.IntOr("num_hidden_layers", 0) {
		prefix := fmt.Sprintf("encoder.layer.%d.", i)
		attn := nn.NewMultiHeadAttention(hidden, heads, nn.NewLinear(prefix+"attention.output.dense", hidden, hidden, b, rng), b)
		attn.Query = nn.NewLinear(prefix+"attention.self.query", hidden, hidden, b, rng)
		attn.Key = nn.NewLinear(prefix+"attention.self.key", hidden, hidden, b, rng)
		attn.Value = nn.NewLinear(prefix+"attention.self.value", hidden, hidden, b, rng)
		attn.Dropout = m.dropout(attnDrop)

		m.layers = append(m.layers, &bertLayer{
			attention:     attn,
			attentionNorm: nn.NewLayerNorm(prefix+"attention.output.LayerNorm", hidden, eps, b),
			ffn: nn.NewFeedForward(
				nn.NewLinear(prefix+"intermediate.dense", hidden, inner, b, rng),
				nn.NewLinear(prefix+"output.dense", inner, hidden, b, rng),
				nn.GELU, b),
			outputNorm: nn.NewLayerNorm(prefix+"output.LayerNorm", hidden, eps, b),
			dropout:    m.dropout(hiddenDrop),
		})
	}
	m.pooler = nn.NewLinear("pooler.dense", hidden, hidden, b, rng)
	return m, nil
}

// Forward runs the encoder. Recognised kwargs: "attention_mask" and
// "token_type_ids", both [batch, seq]; missing ones default to all ones and
// all zeros.
func (m *BertModel) Forward(ids *tensor.RawTensor, kwargs Kwargs) (Outputs, error) {
	batch, seq, err := checkInput(ids, m.vocabSize, m.maxPositions)
	if err != nil {
		return nil, err
	}
	mask, err := attentionMask(kwargs, batch, seq)
	if err != nil {
		return nil, err
	}
	tokenTypes, err := kwarg(kwargs, "token_type_ids", batch, seq)
	if err != nil {
		return nil, err
	}
	if tokenTypes == nil {
		tokenTypes = tensor.MustNewRaw(tensor.Shape{batch, seq}, tensor.Int64)
	}

	b := m.backend
	x := b.Add(m.wordEmbeddings.Forward(ids), m.positionEmbeddings.Forward(nn.Positions(seq)))
	x = b.Add(x, m.tokenTypeEmbeddings.Forward(tokenTypes))
	x = m.embeddingDropout.Forward(m.embeddingNorm.Forward(x))

	out := layerOutputs{flags: m.flags}
	out.addHidden(x)
	for _, layer := range m.layers {
		var probs *tensor.RawTensor
		x, probs = layer.forward(b, x, mask)
		out.addHidden(x)
		out.addAttention(probs)
	}

	first := b.Reshape(b.Slice(x, 1, 0, 1), tensor.Shape{batch, -1})
	pooled := b.Tanh(m.pooler.Forward(first))
	return out.pack(x, pooled), nil
}

func (l *bertLayer) forward(b tensor.Backend, x, mask *tensor.RawTensor) (*tensor.RawTensor, *tensor.RawTensor) {
	a, probs, _, _ := l.attention.Forward(x, mask)
	x = l.attentionNorm.Forward(b.Add(x, l.dropout.Forward(a)))
	f := l.ffn.Forward(x)
	return l.outputNorm.Forward(b.Add(x, l.dropout.Forward(f))), probs
}

// Parameters returns all trainable parameters.
func (m *BertModel) Parameters() []*nn.Parameter {
	modules := []nn.Module{m.wordEmbeddings, m.positionEmbeddings, m.tokenTypeEmbeddings, m.embeddingNorm}
	for _, l := range m.layers {
		modules = append(modules, l.attention, l.attentionNorm, l.ffn, l.outputNorm)
	}
	return nn.Collect(append(modules, m.pooler)...)
}
