package optim

import (
	"github.com/born-ml/pretrained/internal/nn"
)

// SGD implements stochastic gradient descent with optional momentum.
//
//	v = momentum·v + g
//	θ = θ - lr·v
//
// With momentum 0 this is plain θ = θ - lr·g.
type SGD struct {
	params     []*nn.Parameter
	lr         float32
	momentum   float32
	velocities map[*nn.Parameter][]float32
}

// SGDConfig holds configuration for the SGD optimizer.
type SGDConfig struct {
	LR       float32 // Learning rate (default: 0.01)
	Momentum float32 // Momentum factor in [0, 1) (default: 0)
}

// NewSGD creates a new SGD optimizer.
func NewSGD(params []*nn.Parameter, config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = 0.01
	}
	return &SGD{
		params:     params,
		lr:         config.LR,
		momentum:   config.Momentum,
		velocities: make(map[*nn.Parameter][]float32),
	}
}

// Step applies one update to every parameter holding a gradient.
func (s *SGD) Step() {
	for _, param := range s.params {
		grad := param.Grad()
		if grad == nil {
			continue
		}
		paramData := param.Tensor().AsFloat32()

		if s.momentum == 0 {
			for i, g := range grad.AsFloat32() {
				paramData[i] -= s.lr * g
			}
			continue
		}

		velocity, ok := s.velocities[param]
		if !ok {
			velocity = make([]float32, len(paramData))
			s.velocities[param] = velocity
		}
		for i, g := range grad.AsFloat32() {
			velocity[i] = s.momentum*velocity[i] + g
			paramData[i] -= s.lr * velocity[i]
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD) ZeroGrad() {
	zeroGrads(s.params)
}

// GetLR returns the current learning rate.
func (s *SGD) GetLR() float32 {
	return s.lr
}

// SetLR updates the learning rate.
func (s *SGD) SetLR(lr float32) {
	s.lr = lr
}
