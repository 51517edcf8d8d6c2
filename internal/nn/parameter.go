package nn

import (
	"fmt"

	"github.com/born-ml/pretrained/internal/tensor"
)

// RawTensor is a local alias to keep layer signatures short.
type RawTensor = tensor.RawTensor

// Parameter represents a trainable tensor of a model.
//
// Names follow the Hugging Face checkpoint layout (for example
// "encoder.layer.0.attention.self.query.weight") so that SafeTensors files
// can be loaded by name.
//
// The gradient is accumulated across backward passes until ZeroGrad.
type Parameter struct {
	name   string
	tensor *RawTensor
	grad   *RawTensor
}

// NewParameter creates a new trainable parameter.
func NewParameter(name string, t *RawTensor) *Parameter {
	return &Parameter{name: name, tensor: t}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
//
// The pointer is stable for the lifetime of the parameter: optimizers and
// weight loading update its data in place, and the autodiff tape keys
// gradients by it.
func (p *Parameter) Tensor() *RawTensor {
	return p.tensor
}

// Grad returns the accumulated gradient, or nil before the first backward pass.
func (p *Parameter) Grad() *RawTensor {
	return p.grad
}

// SetGrad replaces the gradient.
func (p *Parameter) SetGrad(grad *RawTensor) {
	p.grad = grad
}

// AccumulateGrad adds g to the stored gradient.
func (p *Parameter) AccumulateGrad(g *RawTensor) error {
	if !g.Shape().Equal(p.tensor.Shape()) {
		return fmt.Errorf("parameter %s: gradient shape %v does not match %v", p.name, g.Shape(), p.tensor.Shape())
	}
	if p.grad == nil {
		p.grad = g.Clone()
		return nil
	}
	dst := p.grad.AsFloat32()
	for i, v := range g.AsFloat32() {
		dst[i] += v
	}
	return nil
}

// ZeroGrad clears the gradient.
func (p *Parameter) ZeroGrad() {
	p.grad = nil
}

// SetData copies src into the parameter tensor, keeping its identity.
func (p *Parameter) SetData(src *RawTensor) error {
	if !src.Shape().Equal(p.tensor.Shape()) {
		return fmt.Errorf("parameter %s: shape %v does not match %v", p.name, src.Shape(), p.tensor.Shape())
	}
	if src.DType() != p.tensor.DType() {
		return fmt.Errorf("parameter %s: dtype %s does not match %s", p.name, src.DType(), p.tensor.DType())
	}
	copy(p.tensor.Data(), src.Data())
	return nil
}

// AccumulateGrads adds the gradients computed by a backward pass to the
// parameters they belong to. It returns how many parameters received one.
func AccumulateGrads(params []*Parameter, grads map[*RawTensor]*RawTensor) (int, error) {
	n := 0
	for _, p := range params {
		g, ok := grads[p.tensor]
		if !ok {
			continue
		}
		if err := p.AccumulateGrad(g); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// CountParameters returns the total number of scalar weights.
func CountParameters(params []*Parameter) int {
	n := 0
	for _, p := range params {
		n += p.tensor.NumElements()
	}
	return n
}

// ByName indexes parameters by name.
func ByName(params []*Parameter) map[string]*Parameter {
	out := make(map[string]*Parameter, len(params))
	for _, p := range params {
		out[p.name] = p
	}
	return out
}
