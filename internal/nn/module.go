// Package nn implements the neural network building blocks shared by the
// pretrained model families.
//
// This package provides:
//   - Module interface and Parameter with gradient accumulation
//   - Linear and Conv1D projections (HF and GPT-2 weight layouts)
//   - Embedding, LayerNorm and Dropout
//   - MultiHeadAttention (optionally causal) and FeedForward
//
// Layers hold a tensor.Backend and never record anything themselves. Passing
// an autodiff backend makes every forward pass differentiable.
package nn

// Module is the base interface for all neural network components.
type Module interface {
	// Parameters returns all trainable parameters of this module,
	// including those of nested modules.
	Parameters() []*Parameter
}

// Projection is a learned affine map over the last dimension.
// Linear and Conv1D implement it.
type Projection interface {
	Module
	Forward(x *RawTensor) *RawTensor
}

// Collect concatenates the parameters of several modules.
func Collect(modules ...Module) []*Parameter {
	var params []*Parameter
	for _, m := range modules {
		if m == nil {
			continue
		}
		params = append(params, m.Parameters()...)
	}
	return params
}
