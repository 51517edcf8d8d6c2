package models

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/born-ml/pretrained/internal/nn"
	"github.com/born-ml/pretrained/internal/tensor"
)

var gpt2Defaults = Config{
	"model_type":         "gpt2",
	"vocab_size":         50257,
	"n_positions":        1024,
	"n_embd":             768,
	"n_layer":            12,
	"n_head":             12,
	"resid_pdrop":        0.1,
	"embd_pdrop":         0.1,
	"attn_pdrop":         0.1,
	"layer_norm_epsilon": 1e-5,
}

// GPT2Model is a GPT-2 decoder (pre-LayerNorm blocks, causal attention).
//
// Outputs: (last_hidden, presents, [hidden_states], [attentions]).
// presents is a Cache holding the key and value tensors
// [batch, heads, seq, head_dim] of every layer, in that order.
type GPT2Model struct {
	base

	wte, wpe *nn.Embedding
	drop     *nn.Dropout
	blocks   []*gptBlock
	lnF      *nn.LayerNorm

	vocabSize    int
	maxPositions int
}

// gptBlock is shared by GPT-2 (pre-norm) and OpenAI GPT (post-norm).
type gptBlock struct {
	ln1     *nn.LayerNorm
	attn    *nn.MultiHeadAttention
	ln2     *nn.LayerNorm
	mlp     *nn.FeedForward
	dropout *nn.Dropout
}

func newGPTBlock(m *base, prefix string, embd, heads, inner int, eps float32, residDrop, attnDrop float64) *gptBlock {
	b, rng := m.backend, m.rng
	attn := nn.NewMultiHeadAttention(embd, heads, nn.NewConv1D(prefix+"attn.c_proj", embd, embd, b, rng), b)
	attn.QKV = nn.NewConv1D(prefix+"attn.c_attn", embd, 3*embd, b, rng)
	attn.Causal = true
	attn.Dropout = m.dropout(attnDrop)

	return &gptBlock{
		ln1:  nn.NewLayerNorm(prefix+"ln_1", embd, eps, b),
		attn: attn,
		ln2:  nn.NewLayerNorm(prefix+"ln_2", embd, eps, b),
		mlp: nn.NewFeedForward(
			nn.NewConv1D(prefix+"mlp.c_fc", embd, inner, b, rng),
			nn.NewConv1D(prefix+"mlp.c_proj", inner, embd, b, rng),
			nn.GELU, b),
		dropout: m.dropout(residDrop),
	}
}

func (g *gptBlock) parameters() []nn.Module {
	return []nn.Module{g.ln1, g.attn, g.ln2, g.mlp}
}

// NewGPT2Model builds a randomly initialised GPT-2 model from cfg.
func NewGPT2Model(cfg Config, opts BuildOptions) (*GPT2Model, error) {
	m := &GPT2Model{base: newBase(cfg, gpt2Defaults, opts)}
	c, b, rng := m.cfg, m.backend, m.rng

	embd := c.IntOr("n_embd", 0)
	heads := c.IntOr("n_head", 0)
	if embd <= 0 || heads <= 0 || embd%heads != 0 {
		return nil, errors.Errorf("gpt2: n_embd %d must be a positive multiple of n_head %d", embd, heads)
	}
	inner := c.IntOr("n_inner", 4*embd)
	eps := float32(c.FloatOr("layer_norm_epsilon", 1e-5))
	m.vocabSize = c.IntOr("vocab_size", 0)
	m.maxPositions = c.IntOr("n_positions", 0)

	m.wte = nn.NewEmbedding("wte", m.vocabSize, embd, b, rng)
	m.wpe = nn.NewEmbedding("wpe", m.maxPositions, embd, b, rng)
	m.drop = m.dropout(c.FloatOr("embd_pdrop", 0.1))
	for i := range c.IntOr("n_layer", 0) {
		m.blocks = append(m.blocks, newGPTBlock(&m.base, fmt.Sprintf("h.%d.", i), embd, heads, inner, eps,
			c.FloatOr("resid_pdrop", 0.1), c.FloatOr("attn_pdrop", 0.1)))
	}
	m.lnF = nn.NewLayerNorm("ln_f", embd, eps, b)
	return m, nil
}

// Forward runs the decoder. An optional "attention_mask" kwarg masks padding.
func (m *GPT2Model) Forward(ids *tensor.RawTensor, kwargs Kwargs) (Outputs, error) {
	batch, seq, err := checkInput(ids, m.vocabSize, m.maxPositions)
	if err != nil {
		return nil, err
	}
	mask, err := attentionMask(kwargs, batch, seq)
	if err != nil {
		return nil, err
	}

	b := m.backend
	x := m.drop.Forward(b.Add(m.wte.Forward(ids), m.wpe.Forward(nn.Positions(seq))))

	out := layerOutputs{flags: m.flags}
	var presents Cache
	for _, blk := range m.blocks {
		out.addHidden(x)
		a, probs, k, v := blk.attn.Forward(blk.ln1.Forward(x), mask)
		x = b.Add(x, blk.dropout.Forward(a))
		x = b.Add(x, blk.dropout.Forward(blk.mlp.Forward(blk.ln2.Forward(x))))
		presents = append(presents, k, v)
		out.addAttention(probs)
	}
	x = m.lnF.Forward(x)
	out.addHidden(x)
	return out.pack(x, presents), nil
}

// Parameters returns all trainable parameters.
func (m *GPT2Model) Parameters() []*nn.Parameter {
	modules := []nn.Module{m.wte, m.wpe}
	for _, blk := range m.blocks {
		modules = append(modules, blk.parameters()...)
	}
	return nn.Collect(append(modules, m.lnF)...)
}
