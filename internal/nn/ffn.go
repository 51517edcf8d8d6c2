package nn

import (
	"github.com/born-ml/pretrained/internal/tensor"
)

// Activation is an element-wise non-linearity evaluated on a backend.
type Activation func(b tensor.Backend, x *RawTensor) *RawTensor

// GELU is the activation used by every supported model family.
func GELU(b tensor.Backend, x *RawTensor) *RawTensor {
	return b.GELU(x)
}

// FeedForward is the position-wise network of a transformer block:
//
//	FFN(x) = Down(act(Up(x)))
type FeedForward struct {
	Up         Projection // [embed_dim] -> [ffn_dim]
	Down       Projection // [ffn_dim] -> [embed_dim]
	Activation Activation
	backend    tensor.Backend
}

// NewFeedForward creates a feed-forward network from two projections.
// A nil activation defaults to GELU.
func NewFeedForward(up, down Projection, act Activation, backend tensor.Backend) *FeedForward {
	if act == nil {
		act = GELU
	}
	return &FeedForward{Up: up, Down: down, Activation: act, backend: backend}
}

// Forward applies the network to x [..., embed_dim].
func (f *FeedForward) Forward(x *RawTensor) *RawTensor {
	return f.Down.Forward(f.Activation(f.backend, f.Up.Forward(x)))
}

// Parameters returns the parameters of both projections.
func (f *FeedForward) Parameters() []*Parameter {
	return Collect(f.Up, f.Down)
}
