package adapter

import (
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/pretrained/internal/autodiff"
	"github.com/born-ml/pretrained/internal/models"
	"github.com/born-ml/pretrained/internal/nn"
	"github.com/born-ml/pretrained/internal/optim"
	"github.com/born-ml/pretrained/internal/tensor"
)

// Sentinel errors. Match them with errors.Is.
var (
	ErrUnexpectedConfig = errors.New("unexpected config")
	ErrNotSupported     = errors.New("not supported")
	ErrMissingConfigKey = errors.New("missing config key")
	ErrStaleBackprop    = errors.New("stale backprop")
)

// widthKeys are tried in order by OutputWidth.
var widthKeys = []string{"hidden_size", "n_embd", "d_model"}

// Backprop completes a training step: it backpropagates dY into the model
// parameters and, when sgd is non-nil, takes an optimizer step.
//
// Parameters are updated in place, so a Backprop is only valid until the
// next optimizer step. Calling it afterwards fails with ErrStaleBackprop.
type Backprop func(dY *Activations, sgd *OptimizerConfig) error

// recorder is implemented by autodiff backends.
type recorder interface {
	Tape() *autodiff.GradientTape
}

// Adapter wraps a pretrained model. It owns the model and, once the first
// optimizer step happens, the optimizer and its schedule.
type Adapter struct {
	cfg          models.Config
	model        models.Model
	newOptimizer OptimizerFactory

	optimizer optim.Optimizer
	schedule  *optim.WarmupLinear
	steps     int // optimizer steps taken
}

// New wraps model. cfg is copied.
func New(cfg models.Config, model models.Model, opts ...Option) *Adapter {
	o := buildOptions(opts)
	return &Adapter{
		cfg:          cfg.Clone(),
		model:        model,
		newOptimizer: o.newOptimizer,
	}
}

// FromPretrained loads a pretrained model by name or directory and wraps it.
// The model is built to return all hidden states and attentions. Errors
// from the model registry are returned wrapped, so errors.Is still matches
// models.ErrUnknownModel.
func FromPretrained(name string, opts ...Option) (*Adapter, error) {
	o := buildOptions(opts)
	model, err := models.FromPretrained(name, models.LoadOptions{
		BuildOptions: models.BuildOptions{
			Flags:   models.OutputFlags{HiddenStates: true, Attentions: true},
			Backend: o.backend,
			Rand:    o.rng,
		},
		Registry: o.registry,
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "loading pretrained %q", name)
	}

	a := New(models.Config{}, model, opts...)
	a.cfg.Merge(model.Config())
	return a, nil
}

// NewModel builds a randomly initialised model of the named family
// ("bert", "gpt2", ...) and wraps it. Missing cfg keys take the family
// defaults.
func NewModel(family string, cfg models.Config, opts ...Option) (*Adapter, error) {
	o := buildOptions(opts)
	registry := o.registry
	if registry == nil {
		registry = models.DefaultRegistry()
	}
	f, err := registry.LookupModelType(family)
	if err != nil {
		return nil, err
	}
	model, err := f.New(cfg.Clone(), models.BuildOptions{
		Flags:   models.OutputFlags{HiddenStates: true, Attentions: true},
		Backend: o.backend,
		Rand:    o.rng,
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "building %s", family)
	}

	a := New(models.Config{}, model, opts...)
	a.cfg.Merge(model.Config())
	return a, nil
}

// Model returns the wrapped model.
func (a *Adapter) Model() models.Model {
	return a.model
}

// Config returns the configuration the adapter answers width queries from.
func (a *Adapter) Config() models.Config {
	return a.cfg
}

// Optimizer returns the optimizer, or nil before the first optimizer step.
func (a *Adapter) Optimizer() optim.Optimizer {
	return a.optimizer
}

// Schedule returns the learning-rate schedule, or nil before the first
// optimizer step.
func (a *Adapter) Schedule() *optim.WarmupLinear {
	return a.schedule
}

// OutputWidth returns the width of the last hidden state.
func (a *Adapter) OutputWidth() (int, error) {
	for _, key := range widthKeys {
		if v, ok := a.cfg.Int(key); ok {
			return v, nil
		}
	}
	if d, ok := a.model.(models.Dimensioned); ok {
		return d.Dim(), nil
	}
	return 0, errors.Wrapf(ErrUnexpectedConfig, "cannot infer output width from config with keys [%s]",
		strings.Join(a.cfg.Keys(), ", "))
}

// MaxLength returns the longest sequence the model accepts.
func (a *Adapter) MaxLength() (int, error) {
	v, ok := a.cfg.Int("max_position_embeddings")
	if !ok {
		return 0, errors.Wrap(ErrMissingConfigKey, "max_position_embeddings")
	}
	return v, nil
}

// ModelKwargs derives the auxiliary inputs the model family expects. BERT and
// XLNet receive an attention mask (ids clamped to [0, 1], so id 0 is padding)
// and all-zero token type ids; other families receive none.
func (a *Adapter) ModelKwargs(ids *tensor.RawTensor) models.Kwargs {
	switch a.model.(type) {
	case *models.BertModel, *models.XLNetModel:
		return models.Kwargs{
			"attention_mask": a.model.Backend().Clamp(ids, 0, 1),
			"token_type_ids": tensor.ZerosLike(ids),
		}
	default:
		return models.Kwargs{}
	}
}

// Predict runs an evaluation forward pass. It never records gradients and
// never touches the optimizer.
func (a *Adapter) Predict(ids *tensor.RawTensor) (*Activations, error) {
	ids = a.castIDs(ids)
	kwargs := a.ModelKwargs(ids)
	a.model.Eval()

	if rec, ok := a.model.Backend().(recorder); ok && rec.Tape().IsRecording() {
		rec.Tape().StopRecording()
		defer rec.Tape().StartRecording()
	}

	out, err := a.model.Forward(ids, kwargs)
	if err != nil {
		return nil, errors.WithMessage(err, "forward pass")
	}
	return fromOutputs(out, false)
}

// BeginUpdate runs the forward pass of a training step.
//
// With a nil drop it is Predict and the returned Backprop does nothing.
// Otherwise the model runs in training mode while the tape records, and is
// back in evaluation mode when BeginUpdate returns. The value of *drop is
// ignored: dropout layers keep the rates read from the model config. The
// returned Backprop owns a snapshot of the recorded tape, so it stays valid
// across later forward passes, but not across optimizer steps taken by
// another Backprop.
func (a *Adapter) BeginUpdate(ids *tensor.RawTensor, drop *float32) (*Activations, Backprop, error) {
	if drop == nil {
		acts, err := a.Predict(ids)
		if err != nil {
			return nil, nil, err
		}
		return acts, noBackprop, nil
	}

	backend := a.model.Backend()
	rec, ok := backend.(recorder)
	if !ok {
		return nil, nil, errors.Wrapf(ErrNotSupported, "backend %s cannot record gradients", backend.Name())
	}

	ids = a.castIDs(ids)
	kwargs := a.ModelKwargs(ids)

	tape := rec.Tape()
	out, err := func() (models.Outputs, error) {
		a.model.Train()
		tape.Clear()
		tape.StartRecording()
		defer func() {
			tape.StopRecording()
			a.model.Eval()
		}()
		return a.model.Forward(ids, kwargs)
	}()
	snapshot := tape.Snapshot()
	tape.Clear()
	if err != nil {
		return nil, nil, errors.WithMessage(err, "forward pass")
	}

	acts, err := fromOutputs(out, true)
	if err != nil {
		return nil, nil, err
	}
	return acts, a.backprop(snapshot, backend, acts, a.steps), nil
}

func noBackprop(*Activations, *OptimizerConfig) error {
	return nil
}

func (a *Adapter) backprop(tape *autodiff.GradientTape, backend tensor.Backend, y *Activations, steps int) Backprop {
	return func(dY *Activations, sgd *OptimizerConfig) error {
		if dY == nil {
			return errors.New("backprop: nil gradients")
		}
		if a.steps != steps {
			return errors.Wrapf(ErrStaleBackprop, "forward pass ran before optimizer step %d, parameters are now at step %d", steps+1, a.steps)
		}
		if dY.HasAllHidden() || dY.HasAllAttentions() {
			return errors.Wrap(ErrNotSupported, "backprop of all hidden states or attentions")
		}

		var outputs, grads []*tensor.RawTensor
		if dY.HasLastHidden() {
			outputs = append(outputs, y.LastHidden)
			grads = append(grads, dY.LastHidden)
		}
		if dY.HasPooled() {
			if !y.HasPooled() {
				return errors.New("backprop: pooled gradient given but the model has no pooled output")
			}
			outputs = append(outputs, y.Pooled)
			grads = append(grads, dY.Pooled)
		}

		if len(outputs) > 0 {
			paramGrads, err := tape.Backward(outputs, grads, backend)
			if err != nil {
				return errors.WithMessage(err, "backprop")
			}
			if _, err := nn.AccumulateGrads(a.model.Parameters(), paramGrads); err != nil {
				return errors.WithMessage(err, "backprop")
			}
		}

		if sgd != nil {
			a.step(*sgd)
		}
		return nil
	}
}

// step takes one optimizer step, creating the optimizer and schedule on
// first use.
func (a *Adapter) step(cfg OptimizerConfig) {
	params := a.model.Parameters()
	if a.optimizer == nil {
		a.optimizer = a.newOptimizer(params, cfg)
	}
	if a.schedule == nil {
		a.schedule = optim.NewWarmupLinear(a.optimizer, WarmupSteps, TotalSteps)
		klog.V(1).Infof("Attached warmup-linear schedule (%d warmup, %d total steps)", WarmupSteps, TotalSteps)
	}

	if cfg.MaxGradNorm > 0 {
		norm := optim.ClipGradNorm(params, float64(cfg.MaxGradNorm))
		klog.V(2).Infof("Gradient norm %.4g (max %g)", norm, cfg.MaxGradNorm)
	}
	a.schedule.Step()
	a.optimizer.Step()
	a.optimizer.ZeroGrad()
	a.steps++
}

// castIDs converts ids to Int64.
func (a *Adapter) castIDs(ids *tensor.RawTensor) *tensor.RawTensor {
	if ids.DType() == tensor.Int64 {
		return ids
	}
	return a.model.Backend().Cast(ids, tensor.Int64)
}
