package adapter

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/pretrained/internal/models"
	"github.com/born-ml/pretrained/internal/nn"
	"github.com/born-ml/pretrained/internal/optim"
	"github.com/born-ml/pretrained/internal/tensor"
)

var tinyConfigs = map[string]models.Config{
	"bert": {
		"vocab_size": 20, "hidden_size": 8, "num_hidden_layers": 2,
		"num_attention_heads": 2, "intermediate_size": 16, "max_position_embeddings": 16,
	},
	"gpt2": {
		"vocab_size": 20, "n_embd": 8, "n_layer": 2, "n_head": 2, "n_positions": 16,
	},
	"openai-gpt": {
		"vocab_size": 20, "n_embd": 8, "n_layer": 2, "n_head": 2, "n_positions": 16,
	},
	"xlnet": {
		"vocab_size": 20, "d_model": 8, "n_layer": 2, "n_head": 2, "d_inner": 16,
	},
	"xlm": {
		"vocab_size": 20, "emb_dim": 8, "n_layers": 2, "n_heads": 2, "max_position_embeddings": 16,
	},
}

var allOutputs = models.OutputFlags{HiddenStates: true, Attentions: true}

func tinyModel(t *testing.T, family string) models.Model {
	t.Helper()
	f := must.M1(models.DefaultRegistry().LookupModelType(family))
	m, err := f.New(tinyConfigs[family].Clone(), models.BuildOptions{Flags: allOutputs, Rand: rand.New(rand.NewSource(3))})
	require.NoError(t, err)
	return m
}

// tinyAdapter wraps a model the way FromPretrained does.
func tinyAdapter(t *testing.T, family string, opts ...Option) *Adapter {
	t.Helper()
	m := tinyModel(t, family)
	a := New(models.Config{}, m, opts...)
	a.cfg.Merge(m.Config())
	return a
}

func tinyIDs(t *testing.T) *tensor.RawTensor {
	t.Helper()
	return must.M1(tensor.FromInt64([]int64{1, 2, 3, 0, 4, 5, 6, 7}, tensor.Shape{2, 4}))
}

func adamConfig(maxGradNorm float32) *OptimizerConfig {
	return &OptimizerConfig{LR: 1e-3, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8, MaxGradNorm: maxGradNorm}
}

func dropout(p float32) *float32 {
	return &p
}

func TestOutputWidth(t *testing.T) {
	tests := []struct {
		name string
		cfg  models.Config
		want int
	}{
		{"hidden_size", models.Config{"hidden_size": 12, "n_embd": 3}, 12},
		{"n_embd", models.Config{"n_embd": 24.0, "d_model": 5}, 24},
		{"d_model", models.Config{"d_model": 32}, 32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(tt.cfg, tinyModel(t, "gpt2"))
			width, err := a.OutputWidth()
			require.NoError(t, err)
			assert.Equal(t, tt.want, width)
		})
	}

	t.Run("model attribute", func(t *testing.T) {
		a := tinyAdapter(t, "xlm")
		width, err := a.OutputWidth()
		require.NoError(t, err)
		assert.Equal(t, 8, width)
	})

	t.Run("unknown", func(t *testing.T) {
		a := New(models.Config{"vocab_size": 3, "emb_size": 4}, tinyModel(t, "gpt2"))
		_, err := a.OutputWidth()
		require.ErrorIs(t, err, ErrUnexpectedConfig)
		assert.Contains(t, err.Error(), "vocab_size")
		assert.Contains(t, err.Error(), "emb_size")
	})
}

func TestNew_CopiesConfig(t *testing.T) {
	cfg := models.Config{"hidden_size": 8}
	a := New(cfg, tinyModel(t, "bert"))
	cfg["hidden_size"] = 99
	assert.Equal(t, 8, must.M1(a.OutputWidth()))
}

func TestMaxLength(t *testing.T) {
	n, err := tinyAdapter(t, "bert").MaxLength()
	require.NoError(t, err)
	assert.Equal(t, 16, n)

	_, err = tinyAdapter(t, "gpt2").MaxLength()
	assert.ErrorIs(t, err, ErrMissingConfigKey)
}

func TestModelKwargs(t *testing.T) {
	ids := tinyIDs(t)
	for family := range tinyConfigs {
		t.Run(family, func(t *testing.T) {
			kwargs := tinyAdapter(t, family).ModelKwargs(ids)
			if family != "bert" && family != "xlnet" {
				assert.Empty(t, kwargs)
				return
			}
			require.Len(t, kwargs, 2)
			mask := kwargs["attention_mask"]
			assert.Equal(t, ids.Shape(), mask.Shape())
			assert.Equal(t, []int64{1, 1, 1, 0, 1, 1, 1, 1}, mask.AsInt64())
			types := kwargs["token_type_ids"]
			assert.Equal(t, ids.Shape(), types.Shape())
			assert.Equal(t, make([]int64, 8), types.AsInt64())
		})
	}
}

func TestPredict(t *testing.T) {
	tests := []struct {
		family string
		pooled bool
	}{
		{"bert", true},
		{"gpt2", false},
		{"openai-gpt", false},
		{"xlnet", false},
		{"xlm", false},
	}
	for _, tt := range tests {
		t.Run(tt.family, func(t *testing.T) {
			a := tinyAdapter(t, tt.family)
			acts, err := a.Predict(tinyIDs(t))
			require.NoError(t, err)

			assert.False(t, acts.IsGrad)
			assert.Equal(t, tensor.Shape{2, 4, 8}, acts.LastHidden.Shape())
			assert.Equal(t, tt.pooled, acts.HasPooled())
			assert.Len(t, acts.AllHidden, 3)
			assert.Len(t, acts.AllAttentions, 2)
			assert.False(t, a.Model().IsTraining())
		})
	}
}

func TestPredict_CastsIDs(t *testing.T) {
	a := tinyAdapter(t, "gpt2")
	ids32 := must.M1(tensor.FromInt32([]int32{1, 2, 3, 0, 4, 5, 6, 7}, tensor.Shape{2, 4}))
	got := must.M1(a.Predict(ids32))
	want := must.M1(a.Predict(tinyIDs(t)))
	assert.Equal(t, want.LastHidden.AsFloat32(), got.LastHidden.AsFloat32())
}

func TestPredict_LeavesOptimizerAlone(t *testing.T) {
	a := tinyAdapter(t, "bert")
	acts, backprop, err := a.BeginUpdate(tinyIDs(t), dropout(0.1))
	require.NoError(t, err)
	require.NoError(t, backprop(&Activations{LastHidden: acts.LastHidden.Clone()}, adamConfig(0)))

	opt, sched := a.Optimizer(), a.Schedule()
	require.NotNil(t, opt)
	lr, step := opt.GetLR(), sched.LastStep()
	timestep := opt.(*optim.AdamW).GetTimestep()

	for range 3 {
		_, err := a.Predict(tinyIDs(t))
		require.NoError(t, err)
	}

	assert.Same(t, opt, a.Optimizer())
	assert.Same(t, sched, a.Schedule())
	assert.Equal(t, lr, opt.GetLR())
	assert.Equal(t, step, sched.LastStep())
	assert.Equal(t, timestep, opt.(*optim.AdamW).GetTimestep())
}

func TestBeginUpdate_NilDropoutIsPredict(t *testing.T) {
	a := tinyAdapter(t, "bert")
	want := must.M1(a.Predict(tinyIDs(t)))

	got, backprop, err := a.BeginUpdate(tinyIDs(t), nil)
	require.NoError(t, err)
	assert.Equal(t, want.IsGrad, got.IsGrad)
	assert.Equal(t, want.LastHidden.AsFloat32(), got.LastHidden.AsFloat32())
	assert.Equal(t, want.Pooled.AsFloat32(), got.Pooled.AsFloat32())
	assert.Len(t, got.AllHidden, len(want.AllHidden))
	assert.Len(t, got.AllAttentions, len(want.AllAttentions))

	// The callback ignores whatever it is given.
	assert.NoError(t, backprop(nil, nil))
	assert.NoError(t, backprop(&Activations{AllHidden: got.AllHidden}, adamConfig(1)))
	assert.Nil(t, a.Optimizer())
	for _, p := range a.Model().Parameters() {
		assert.Nil(t, p.Grad(), p.Name())
	}
}

func TestBeginUpdate_RestoresEvalMode(t *testing.T) {
	a := tinyAdapter(t, "gpt2")
	acts, _, err := a.BeginUpdate(tinyIDs(t), dropout(0.5))
	require.NoError(t, err)
	assert.True(t, acts.IsGrad)
	assert.False(t, a.Model().IsTraining())
}

func TestBeginUpdate_TrainsWithConfigDropout(t *testing.T) {
	a := tinyAdapter(t, "bert")
	require.Equal(t, 0.1, a.Model().Config().FloatOr("hidden_dropout_prob", 0))
	eval := must.M1(a.Predict(tinyIDs(t))).LastHidden.AsFloat32()

	// The rate passed to BeginUpdate only selects training mode.
	for range 2 {
		acts, _, err := a.BeginUpdate(tinyIDs(t), dropout(0))
		require.NoError(t, err)
		assert.NotEqual(t, eval, acts.LastHidden.AsFloat32())
	}
	assert.Equal(t, eval, must.M1(a.Predict(tinyIDs(t))).LastHidden.AsFloat32())
}

func TestBackprop_StaleAfterOptimizerStep(t *testing.T) {
	a := tinyAdapter(t, "gpt2")
	y1, backprop1, err := a.BeginUpdate(tinyIDs(t), dropout(0))
	require.NoError(t, err)
	y2, backprop2, err := a.BeginUpdate(tinyIDs(t), dropout(0))
	require.NoError(t, err)
	require.NoError(t, backprop2(&Activations{LastHidden: tensor.Full(y2.LastHidden.Shape(), 1)}, adamConfig(0)))
	timestep := a.Optimizer().(*optim.AdamW).GetTimestep()

	err = backprop1(&Activations{LastHidden: tensor.Full(y1.LastHidden.Shape(), 1)}, adamConfig(0))
	require.ErrorIs(t, err, ErrStaleBackprop)
	assert.Equal(t, timestep, a.Optimizer().(*optim.AdamW).GetTimestep())
	for _, p := range a.Model().Parameters() {
		assert.Nil(t, p.Grad(), "%s got a gradient", p.Name())
	}

	// A forward pass after the step is valid again.
	y3, backprop3, err := a.BeginUpdate(tinyIDs(t), dropout(0))
	require.NoError(t, err)
	assert.NoError(t, backprop3(&Activations{LastHidden: tensor.Full(y3.LastHidden.Shape(), 1)}, adamConfig(0)))
}

func TestBackprop_UnsupportedSlots(t *testing.T) {
	for _, dY := range []func(y *Activations) *Activations{
		func(y *Activations) *Activations {
			return &Activations{LastHidden: y.LastHidden, AllHidden: y.AllHidden}
		},
		func(y *Activations) *Activations {
			return &Activations{AllAttentions: y.AllAttentions}
		},
	} {
		a := tinyAdapter(t, "bert")
		y, backprop, err := a.BeginUpdate(tinyIDs(t), dropout(0))
		require.NoError(t, err)

		err = backprop(dY(y), adamConfig(1))
		require.ErrorIs(t, err, ErrNotSupported)
		assert.Nil(t, a.Optimizer())
		for _, p := range a.Model().Parameters() {
			assert.Nil(t, p.Grad(), "%s got a gradient", p.Name())
		}
	}
}

func TestBackprop_AccumulatesWithoutOptimizer(t *testing.T) {
	a := tinyAdapter(t, "bert")
	y, backprop, err := a.BeginUpdate(tinyIDs(t), dropout(0))
	require.NoError(t, err)

	dY := &Activations{
		LastHidden: tensor.Full(y.LastHidden.Shape(), 1),
		Pooled:     tensor.Full(y.Pooled.Shape(), 1),
	}
	require.NoError(t, backprop(dY, nil))
	assert.Nil(t, a.Optimizer())

	params := nn.ByName(a.Model().Parameters())
	require.NotNil(t, params["pooler.dense.weight"].Grad())
	require.NotNil(t, params["embeddings.word_embeddings.weight"].Grad())
	assert.Positive(t, optim.GradNorm(a.Model().Parameters()))
}

func TestBackprop_PooledGradientWithoutPooledOutput(t *testing.T) {
	a := tinyAdapter(t, "gpt2")
	y, backprop, err := a.BeginUpdate(tinyIDs(t), dropout(0))
	require.NoError(t, err)
	err = backprop(&Activations{Pooled: tensor.Full(tensor.Shape{2, 8}, 1), LastHidden: y.LastHidden}, nil)
	assert.Error(t, err)
}

func TestBackprop_CreatesOptimizerOnce(t *testing.T) {
	created := 0
	factory := func(params []*nn.Parameter, cfg OptimizerConfig) optim.Optimizer {
		created++
		return NewAdamW(params, cfg)
	}
	a := tinyAdapter(t, "gpt2", WithOptimizerFactory(factory))
	before := nn.ByName(a.Model().Parameters())["h.0.attn.c_attn.weight"].Tensor().Clone()

	var (
		opt   optim.Optimizer
		sched *optim.WarmupLinear
	)
	for i := 1; i <= 2; i++ {
		y, backprop, err := a.BeginUpdate(tinyIDs(t), dropout(0.1))
		require.NoError(t, err)
		require.NoError(t, backprop(&Activations{LastHidden: y.LastHidden.Clone()}, adamConfig(0)))

		if i == 1 {
			opt, sched = a.Optimizer(), a.Schedule()
			require.NotNil(t, opt)
			require.NotNil(t, sched)
		}
		assert.Same(t, opt, a.Optimizer())
		assert.Same(t, sched, a.Schedule())
		assert.Equal(t, i, sched.LastStep())
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 2, opt.(*optim.AdamW).GetTimestep())
	assert.InDelta(t, 1e-3*sched.Multiplier(2), opt.GetLR(), 1e-9)

	after := nn.ByName(a.Model().Parameters())["h.0.attn.c_attn.weight"].Tensor()
	assert.NotEqual(t, before.AsFloat32(), after.AsFloat32(), "the optimizer step moved the weights")
	for _, p := range a.Model().Parameters() {
		assert.Nil(t, p.Grad(), "%s was not cleared", p.Name())
	}
}

// spyOptimizer records the gradient norms seen when Step is called.
type spyOptimizer struct {
	optim.Optimizer
	params     []*nn.Parameter
	totalNorms []float64
	maxParam   float64
}

func (s *spyOptimizer) Step() {
	s.totalNorms = append(s.totalNorms, optim.GradNorm(s.params))
	for _, p := range s.params {
		s.maxParam = math.Max(s.maxParam, optim.GradNorm([]*nn.Parameter{p}))
	}
	s.Optimizer.Step()
}

func TestBackprop_ClipsBeforeStep(t *testing.T) {
	spy := &spyOptimizer{}
	factory := func(params []*nn.Parameter, cfg OptimizerConfig) optim.Optimizer {
		spy.params = params
		spy.Optimizer = NewAdamW(params, cfg)
		return spy
	}
	a := tinyAdapter(t, "bert", WithOptimizerFactory(factory))

	const maxNorm = 0.01
	y, backprop, err := a.BeginUpdate(tinyIDs(t), dropout(0.1))
	require.NoError(t, err)
	dY := &Activations{LastHidden: tensor.Full(y.LastHidden.Shape(), 10)}
	require.NoError(t, backprop(dY, adamConfig(maxNorm)))

	require.Len(t, spy.totalNorms, 1)
	assert.LessOrEqual(t, spy.totalNorms[0], maxNorm*(1+1e-4))
	assert.LessOrEqual(t, spy.maxParam, maxNorm*(1+1e-4))
	assert.Positive(t, spy.totalNorms[0])
}

func TestBackprop_SnapshotOutlivesLaterPasses(t *testing.T) {
	a := tinyAdapter(t, "xlm")
	y1, backprop1, err := a.BeginUpdate(tinyIDs(t), dropout(0))
	require.NoError(t, err)
	_, _, err = a.BeginUpdate(tinyIDs(t), dropout(0))
	require.NoError(t, err)

	require.NoError(t, backprop1(&Activations{LastHidden: tensor.Full(y1.LastHidden.Shape(), 1)}, nil))
	assert.Positive(t, optim.GradNorm(a.Model().Parameters()))
}

func TestFromPretrained(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bert-tiny")
	require.NoError(t, models.SavePretrained(tinyModel(t, "bert"), dir))

	a, err := FromPretrained(dir, WithRand(rand.New(rand.NewSource(5))))
	require.NoError(t, err)
	assert.IsType(t, &models.BertModel{}, a.Model())
	assert.Equal(t, 8, must.M1(a.OutputWidth()))
	assert.Equal(t, 16, must.M1(a.MaxLength()))

	acts := must.M1(a.Predict(tinyIDs(t)))
	assert.True(t, acts.HasAllHidden(), "hidden states are requested")
	assert.True(t, acts.HasAllAttentions(), "attentions are requested")

	t.Setenv(models.EnvOffline, "1")
	_, err = FromPretrained("roberta-base")
	assert.ErrorIs(t, err, models.ErrUnknownModel)
}

func TestFromPretrained_WithRegistry(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "my-decoder")
	require.NoError(t, models.SavePretrained(tinyModel(t, "gpt2"), dir))

	registry := models.NewRegistry()
	bert := must.M1(models.DefaultRegistry().LookupModelType("bert"))
	registry.Register(bert)

	_, err := FromPretrained(dir, WithRegistry(registry))
	assert.ErrorIs(t, err, models.ErrUnknownModel)

	a, err := FromPretrained(dir)
	require.NoError(t, err)
	assert.Equal(t, "gpt2", models.FamilyOf(a.Model()))
}

func TestNewModel(t *testing.T) {
	a, err := NewModel("xlnet", tinyConfigs["xlnet"], WithRand(rand.New(rand.NewSource(8))))
	require.NoError(t, err)
	assert.Equal(t, 8, must.M1(a.OutputWidth()))
	assert.Len(t, a.ModelKwargs(tinyIDs(t)), 2)

	_, err = NewModel("roberta", models.Config{})
	assert.ErrorIs(t, err, models.ErrUnknownModel)
}
