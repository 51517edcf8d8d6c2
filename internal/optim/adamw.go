package optim

import (
	"math"

	"github.com/born-ml/pretrained/internal/nn"
)

// AdamW implements Adam with decoupled weight decay.
//
// Update rule for a parameter θ with gradient g at step t:
//
//	m_t = β1·m_{t-1} + (1-β1)·g
//	v_t = β2·v_{t-1} + (1-β2)·g²
//	m̂ = m_t / (1-β1^t),  v̂ = v_t / (1-β2^t)
//	θ = θ - lr·(m̂ / (sqrt(v̂) + eps) + wd·θ)
//
// Reference: "Decoupled Weight Decay Regularization" (Loshchilov & Hutter, 2019).
type AdamW struct {
	params      []*nn.Parameter
	lr          float32
	beta1       float32
	beta2       float32
	eps         float32
	weightDecay float32
	t           int
	m           map[*nn.Parameter][]float32
	v           map[*nn.Parameter][]float32
}

// AdamWConfig holds configuration for the AdamW optimizer.
type AdamWConfig struct {
	LR          float32    // Learning rate (default: 0.001)
	Betas       [2]float32 // Running average coefficients (default: [0.9, 0.999])
	Eps         float32    // Numerical stability term (default: 1e-8)
	WeightDecay float32    // Decoupled weight decay (default: 0)
}

// NewAdamW creates a new AdamW optimizer over params. Zero fields of config
// take the defaults listed on AdamWConfig.
func NewAdamW(params []*nn.Parameter, config AdamWConfig) *AdamW {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}

	return &AdamW{
		params:      params,
		lr:          config.LR,
		beta1:       config.Betas[0],
		beta2:       config.Betas[1],
		eps:         config.Eps,
		weightDecay: config.WeightDecay,
		m:           make(map[*nn.Parameter][]float32),
		v:           make(map[*nn.Parameter][]float32),
	}
}

// Step performs a single AdamW update. Parameters without a gradient are
// skipped.
func (a *AdamW) Step() {
	a.t++
	biasCorrection1 := float32(1.0 - math.Pow(float64(a.beta1), float64(a.t)))
	biasCorrection2 := float32(1.0 - math.Pow(float64(a.beta2), float64(a.t)))

	for _, param := range a.params {
		grad := param.Grad()
		if grad == nil {
			continue
		}

		paramData := param.Tensor().AsFloat32()
		m, ok := a.m[param]
		if !ok {
			m = make([]float32, len(paramData))
			a.m[param] = m
		}
		v, ok := a.v[param]
		if !ok {
			v = make([]float32, len(paramData))
			a.v[param] = v
		}

		for i, g := range grad.AsFloat32() {
			m[i] = a.beta1*m[i] + (1-a.beta1)*g
			v[i] = a.beta2*v[i] + (1-a.beta2)*g*g
			mHat := m[i] / biasCorrection1
			vHat := v[i] / biasCorrection2
			update := mHat/(float32(math.Sqrt(float64(vHat)))+a.eps) + a.weightDecay*paramData[i]
			paramData[i] -= a.lr * update
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (a *AdamW) ZeroGrad() {
	zeroGrads(a.params)
}

// GetLR returns the current learning rate.
func (a *AdamW) GetLR() float32 {
	return a.lr
}

// SetLR updates the learning rate.
func (a *AdamW) SetLR(lr float32) {
	a.lr = lr
}

// GetTimestep returns the number of steps taken so far.
func (a *AdamW) GetTimestep() int {
	return a.t
}
