package adapter

import (
	"math/rand"

	"k8s.io/klog/v2"

	"github.com/born-ml/pretrained/internal/models"
	"github.com/born-ml/pretrained/internal/nn"
	"github.com/born-ml/pretrained/internal/optim"
	"github.com/born-ml/pretrained/internal/tensor"
)

// Learning-rate schedule attached to the optimizer on first use.
const (
	WarmupSteps = 50
	TotalSteps  = 500
)

// OptimizerConfig is the optimizer configuration passed to Backprop.
type OptimizerConfig struct {
	LR    float32
	Beta1 float32
	Beta2 float32
	Eps   float32

	// L2 is applied as decoupled weight decay.
	L2 float32

	// MaxGradNorm clips the global gradient norm when positive.
	MaxGradNorm float32
}

// OptimizerFactory creates the optimizer on the first Backprop call that
// carries a configuration.
type OptimizerFactory func(params []*nn.Parameter, cfg OptimizerConfig) optim.Optimizer

// NewAdamW is the default OptimizerFactory.
func NewAdamW(params []*nn.Parameter, cfg OptimizerConfig) optim.Optimizer {
	klog.V(1).Infof("Creating AdamW optimizer: lr=%g betas=(%g, %g) eps=%g weight_decay=%g",
		cfg.LR, cfg.Beta1, cfg.Beta2, cfg.Eps, cfg.L2)
	return optim.NewAdamW(params, optim.AdamWConfig{
		LR:          cfg.LR,
		Betas:       [2]float32{cfg.Beta1, cfg.Beta2},
		Eps:         cfg.Eps,
		WeightDecay: cfg.L2,
	})
}

type options struct {
	backend      tensor.Backend
	registry     *models.Registry
	rng          *rand.Rand
	newOptimizer OptimizerFactory
}

// Option configures an Adapter.
type Option func(*options)

// WithBackend sets the backend pretrained models are built on. It must be
// an autodiff backend for BeginUpdate to train.
func WithBackend(backend tensor.Backend) Option {
	return func(o *options) { o.backend = backend }
}

// WithRegistry sets the model registry used by FromPretrained.
func WithRegistry(registry *models.Registry) Option {
	return func(o *options) { o.registry = registry }
}

// WithRand sets the generator for weight initialisation and dropout.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) { o.rng = rng }
}

// WithOptimizerFactory replaces the default AdamW optimizer.
func WithOptimizerFactory(f OptimizerFactory) Option {
	return func(o *options) { o.newOptimizer = f }
}

func buildOptions(opts []Option) options {
	o := options{newOptimizer: NewAdamW}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
