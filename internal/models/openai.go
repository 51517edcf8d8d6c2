package models

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/born-ml/pretrained/internal/nn"
	"github.com/born-ml/pretrained/internal/tensor"
)

var openAIGPTDefaults = Config{
	"model_type":         "openai-gpt",
	"vocab_size":         40478,
	"n_positions":        512,
	"n_embd":             768,
	"n_layer":            12,
	"n_head":             12,
	"afn":                "gelu",
	"resid_pdrop":        0.1,
	"embd_pdrop":         0.1,
	"attn_pdrop":         0.1,
	"layer_norm_epsilon": 1e-5,
}

// OpenAIGPTModel is the original GPT decoder (post-LayerNorm blocks).
//
// Outputs: (last_hidden, [hidden_states], [attentions]).
type OpenAIGPTModel struct {
	base

	tokensEmbed    *nn.Embedding
	positionsEmbed *nn.Embedding
	drop           *nn.Dropout
	blocks         []*gptBlock

	vocabSize    int
	maxPositions int
}

// NewOpenAIGPTModel builds a randomly initialised OpenAI GPT model from cfg.
func NewOpenAIGPTModel(cfg Config, opts BuildOptions) (*OpenAIGPTModel, error) {
	m := &OpenAIGPTModel{base: newBase(cfg, openAIGPTDefaults, opts)}
	c, b, rng := m.cfg, m.backend, m.rng

	embd := c.IntOr("n_embd", 0)
	heads := c.IntOr("n_head", 0)
	if embd <= 0 || heads <= 0 || embd%heads != 0 {
		return nil, errors.Errorf("openai-gpt: n_embd %d must be a positive multiple of n_head %d", embd, heads)
	}
	if afn, _ := c.String("afn"); afn != "gelu" {
		return nil, errors.Errorf("openai-gpt: unsupported activation %q", afn)
	}
	eps := float32(c.FloatOr("layer_norm_epsilon", 1e-5))
	m.vocabSize = c.IntOr("vocab_size", 0)
	m.maxPositions = c.IntOr("n_positions", 0)

	m.tokensEmbed = nn.NewEmbedding("tokens_embed", m.vocabSize, embd, b, rng)
	m.positionsEmbed = nn.NewEmbedding("positions_embed", m.maxPositions, embd, b, rng)
	m.drop = m.dropout(c.FloatOr("embd_pdrop", 0.1))
	for i := range c.IntOr("n_layer", 0) {
		m.blocks = append(m.blocks, newGPTBlock(&m.base, fmt.Sprintf("h.%d.", i), embd, heads, 4*embd, eps,
			c.FloatOr("resid_pdrop", 0.1), c.FloatOr("attn_pdrop", 0.1)))
	}
	return m, nil
}

// Forward runs the decoder. An optional "attention_mask" kwarg masks padding.
func (m *OpenAIGPTModel) Forward(ids *tensor.RawTensor, kwargs Kwargs) (Outputs, error) {
	batch, seq, err := checkInput(ids, m.vocabSize, m.maxPositions)
	if err != nil {
		return nil, err
	}
	mask, err := attentionMask(kwargs, batch, seq)
	if err != nil {
		return nil, err
	}

	b := m.backend
	x := m.drop.Forward(b.Add(m.tokensEmbed.Forward(ids), m.positionsEmbed.Forward(nn.Positions(seq))))

	out := layerOutputs{flags: m.flags}
	out.addHidden(x)
	for _, blk := range m.blocks {
		a, probs, _, _ := blk.attn.Forward(x, mask)
		x = blk.ln1.Forward(b.Add(x, blk.dropout.Forward(a)))
		x = blk.ln2.Forward(b.Add(x, blk.dropout.Forward(blk.mlp.Forward(x))))
		out.addHidden(x)
		out.addAttention(probs)
	}
	return out.pack(x), nil
}

// Parameters returns all trainable parameters.
func (m *OpenAIGPTModel) Parameters() []*nn.Parameter {
	modules := []nn.Module{m.tokensEmbed, m.positionsEmbed}
	for _, blk := range m.blocks {
		modules = append(modules, blk.parameters()...)
	}
	return nn.Collect(modules...)
}
