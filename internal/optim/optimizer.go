// Package optim implements the optimizers used to fine-tune pretrained models.
//
// This package provides:
//   - Optimizer interface: Step, ZeroGrad and learning-rate access
//   - AdamW: Adam with decoupled weight decay
//   - SGD: stochastic gradient descent with optional momentum
//   - WarmupLinear: linear warmup followed by linear decay of the learning rate
//   - ClipGradNorm: global gradient-norm clipping
//
// Optimizers read the gradients accumulated on nn.Parameter by the backward
// pass:
//
//	opt := optim.NewAdamW(model.Parameters(), optim.AdamWConfig{LR: 1e-3})
//	schedule := optim.NewWarmupLinear(opt, 50, 500)
//
//	grads, _ := tape.Backward(outputs, outputGrads, backend)
//	nn.AccumulateGrads(model.Parameters(), grads)
//	optim.ClipGradNorm(model.Parameters(), 1.0)
//	schedule.Step()
//	opt.Step()
//	opt.ZeroGrad()
package optim

import (
	"github.com/born-ml/pretrained/internal/nn"
)

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step updates every parameter that holds a gradient, in place.
	Step()

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float32

	// SetLR updates the learning rate. Schedules drive it.
	SetLR(lr float32)
}

func zeroGrads(params []*nn.Parameter) {
	for _, p := range params {
		p.ZeroGrad()
	}
}
