package adapter

import (
	"github.com/pkg/errors"

	"github.com/born-ml/pretrained/internal/models"
	"github.com/born-ml/pretrained/internal/tensor"
)

// Activations are the outputs of one forward pass, or the gradients with
// respect to them. Absent fields are nil.
type Activations struct {
	LastHidden    *tensor.RawTensor   // [batch, seq, width]
	Pooled        *tensor.RawTensor   // [batch, width]
	AllHidden     []*tensor.RawTensor // embeddings output, then one per layer
	AllAttentions []*tensor.RawTensor // [batch, heads, seq, seq] per layer

	// IsGrad is true when the activations came from a training forward
	// pass, whose Backprop can be called.
	IsGrad bool
}

// HasLastHidden reports whether the last hidden state is present.
func (a *Activations) HasLastHidden() bool { return a.LastHidden != nil }

// HasPooled reports whether the pooled output is present.
func (a *Activations) HasPooled() bool { return a.Pooled != nil }

// HasAllHidden reports whether per-layer hidden states are present.
func (a *Activations) HasAllHidden() bool { return len(a.AllHidden) > 0 }

// HasAllAttentions reports whether per-layer attentions are present.
func (a *Activations) HasAllAttentions() bool { return len(a.AllAttentions) > 0 }

// fromOutputs repackages a model output tuple.
func fromOutputs(out models.Outputs, isGrad bool) (*Activations, error) {
	if len(out) == 0 {
		return nil, errors.New("model returned no outputs")
	}
	lastHidden, ok := out[0].(*tensor.RawTensor)
	if !ok || lastHidden == nil {
		return nil, errors.Errorf("model output 0 is %T, expected the last hidden state", out[0])
	}

	acts := &Activations{LastHidden: lastHidden, IsGrad: isGrad}
	for i, field := range out[1:] {
		switch v := field.(type) {
		case *tensor.RawTensor:
			acts.Pooled = v
		case models.Cache:
			// Decoding state, not an activation.
		case models.HiddenStates:
			acts.AllHidden = v
		case models.Attentions:
			acts.AllAttentions = v
		default:
			return nil, errors.Errorf("model output %d has unexpected type %T", i+1, field)
		}
	}
	return acts, nil
}
