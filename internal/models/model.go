// Package models implements the pretrained transformer families driven by
// the adapter: BERT, GPT-2, OpenAI GPT, XLNet and XLM.
//
// Every family exposes the same Model interface. Forward returns a
// positional Outputs tuple whose first element is the last hidden state;
// the remaining elements depend on the family:
//
//	BERT        (last_hidden, pooled, [hidden_states], [attentions])
//	GPT-2       (last_hidden, presents, [hidden_states], [attentions])
//	OpenAI GPT  (last_hidden, [hidden_states], [attentions])
//	XLNet       (last_hidden, mems, [hidden_states], [attentions])
//	XLM         (last_hidden, [hidden_states], [attentions])
//
// Bracketed fields are present only when requested through OutputFlags.
// Parameter names follow the Hugging Face checkpoints so that weights load
// by name (see FromPretrained).
package models

import (
	"math/rand"

	"github.com/pkg/errors"

	"github.com/born-ml/pretrained/internal/autodiff"
	"github.com/born-ml/pretrained/internal/backend/cpu"
	"github.com/born-ml/pretrained/internal/nn"
	"github.com/born-ml/pretrained/internal/tensor"
)

// Kwargs holds the auxiliary named inputs of a forward pass, such as
// "attention_mask" and "token_type_ids".
type Kwargs map[string]*tensor.RawTensor

// Outputs is the positional output tuple of a forward pass.
type Outputs []any

// Cache holds decoding state returned by a model (GPT-2 presents, XLNet
// mems). Callers that do not decode ignore it.
type Cache []*tensor.RawTensor

// HiddenStates holds the embedding output followed by the output of every
// layer.
type HiddenStates []*tensor.RawTensor

// Attentions holds the attention probabilities of every layer,
// [batch, heads, seq, seq] each.
type Attentions []*tensor.RawTensor

// OutputFlags selects the optional fields of Outputs.
type OutputFlags struct {
	HiddenStates bool
	Attentions   bool
}

// Model is a pretrained transformer.
type Model interface {
	// Forward runs the network on integer ids [batch, seq].
	Forward(ids *tensor.RawTensor, kwargs Kwargs) (Outputs, error)

	// Train switches dropout on. Eval switches it off.
	Train()
	Eval()
	IsTraining() bool

	// SetDropout sets the drop probability of every dropout layer.
	SetDropout(p float32)

	Parameters() []*nn.Parameter
	Config() Config

	// Backend returns the backend the model computes with. When it is an
	// autodiff backend, forward passes can be recorded for backprop.
	Backend() tensor.Backend
}

// Dimensioned is implemented by models whose width is not stored under a
// standard configuration key.
type Dimensioned interface {
	Dim() int
}

// BuildOptions configures model construction.
type BuildOptions struct {
	Flags OutputFlags

	// Backend defaults to autodiff.New(cpu.New()).
	Backend tensor.Backend

	// Rand drives weight initialisation and dropout masks.
	// Defaults to a generator seeded with 0.
	Rand *rand.Rand
}

func (o BuildOptions) withDefaults() BuildOptions {
	if o.Backend == nil {
		o.Backend = autodiff.New(cpu.New())
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(0))
	}
	return o
}

// base carries the state every family shares.
type base struct {
	cfg      Config
	flags    OutputFlags
	backend  tensor.Backend
	rng      *rand.Rand
	dropouts nn.Dropouts
	training bool
}

func newBase(cfg, defaults Config, opts BuildOptions) base {
	opts = opts.withDefaults()
	return base{
		cfg:     withDefaults(cfg, defaults),
		flags:   opts.Flags,
		backend: opts.Backend,
		rng:     opts.Rand,
	}
}

// dropout creates a dropout layer and registers it for mode switching.
func (m *base) dropout(p float64) *nn.Dropout {
	d := nn.NewDropout(float32(p), m.backend, m.rng)
	m.dropouts = append(m.dropouts, d)
	return d
}

func (m *base) Train() {
	m.training = true
	m.dropouts.SetTraining(true)
}

func (m *base) Eval() {
	m.training = false
	m.dropouts.SetTraining(false)
}

func (m *base) IsTraining() bool {
	return m.training
}

func (m *base) SetDropout(p float32) {
	m.dropouts.SetRate(p)
}

func (m *base) Config() Config {
	return m.cfg
}

func (m *base) Backend() tensor.Backend {
	return m.backend
}

// layerOutputs collects the optional per-layer outputs.
type layerOutputs struct {
	flags  OutputFlags
	hidden HiddenStates
	attn   Attentions
}

func (o *layerOutputs) addHidden(h *tensor.RawTensor) {
	if o.flags.HiddenStates {
		o.hidden = append(o.hidden, h)
	}
}

func (o *layerOutputs) addAttention(p *tensor.RawTensor) {
	if o.flags.Attentions {
		o.attn = append(o.attn, p)
	}
}

// pack appends the optional fields to the fixed ones.
func (o *layerOutputs) pack(fixed ...any) Outputs {
	out := Outputs(fixed)
	if o.flags.HiddenStates {
		out = append(out, o.hidden)
	}
	if o.flags.Attentions {
		out = append(out, o.attn)
	}
	return out
}

// checkInput validates ids [batch, seq] against the vocabulary size.
func checkInput(ids *tensor.RawTensor, vocab, maxPositions int) (batch, seq int, err error) {
	shape := ids.Shape()
	if len(shape) != 2 {
		return 0, 0, errors.Errorf("expected ids of shape [batch, seq], got %v", shape)
	}
	if !ids.DType().IsInteger() {
		return 0, 0, errors.Errorf("expected integer ids, got %s", ids.DType())
	}
	if maxPositions > 0 && shape[1] > maxPositions {
		return 0, 0, errors.Errorf("sequence length %d exceeds the %d positions of the model", shape[1], maxPositions)
	}
	for _, id := range cpu.Indices(ids) {
		if id < 0 || id >= vocab {
			return 0, 0, errors.Errorf("token id %d out of range [0, %d)", id, vocab)
		}
	}
	return shape[0], shape[1], nil
}

// kwarg returns kwargs[key] after checking it matches ids, or nil when absent.
func kwarg(kwargs Kwargs, key string, batch, seq int) (*tensor.RawTensor, error) {
	t, ok := kwargs[key]
	if !ok || t == nil {
		return nil, nil
	}
	if !t.Shape().Equal(tensor.Shape{batch, seq}) {
		return nil, errors.Errorf("%s has shape %v, expected [%d %d]", key, t.Shape(), batch, seq)
	}
	return t, nil
}

// attentionMask returns the additive mask for kwargs["attention_mask"], or nil.
func attentionMask(kwargs Kwargs, batch, seq int) (*tensor.RawTensor, error) {
	mask, err := kwarg(kwargs, "attention_mask", batch, seq)
	if err != nil || mask == nil {
		return nil, err
	}
	return nn.ExtendedAttentionMask(mask), nil
}
