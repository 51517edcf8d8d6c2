package adapter_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/pretrained/adapter"
	"github.com/born-ml/pretrained/tensor"
)

var tinyGPT2 = adapter.Config{"vocab_size": 20, "n_embd": 8, "n_layer": 1, "n_head": 2, "n_positions": 16}

func TestFromPretrained_UnknownModel(t *testing.T) {
	t.Setenv("BORN_PRETRAINED_HOME", t.TempDir())
	t.Setenv("HF_HUB_OFFLINE", "1")
	_, err := adapter.FromPretrained("roberta-base")
	assert.ErrorIs(t, err, adapter.ErrUnknownModel)
}

func TestNewModel_UnknownFamily(t *testing.T) {
	_, err := adapter.NewModel("roberta", adapter.Config{})
	assert.ErrorIs(t, err, adapter.ErrUnknownModel)
}

func TestSaveLoadAndTrain(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "gpt2-tiny")
	_, err := adapter.FromPretrained(dir)
	require.Error(t, err, "nothing saved yet")

	built, err := adapter.NewModel("gpt2", tinyGPT2)
	require.NoError(t, err)
	require.NoError(t, adapter.SavePretrained(built.Model(), dir))

	a, err := adapter.FromPretrained(dir)
	require.NoError(t, err)
	width, err := a.OutputWidth()
	require.NoError(t, err)
	assert.Equal(t, 8, width)

	ids, err := tensor.FromInt64([]int64{1, 2, 3, 4}, tensor.Shape{1, 4})
	require.NoError(t, err)
	drop := float32(0.1)
	acts, backprop, err := a.BeginUpdate(ids, &drop)
	require.NoError(t, err)
	require.NoError(t, backprop(&adapter.Activations{LastHidden: tensor.Full(acts.LastHidden.Shape(), 1)},
		&adapter.OptimizerConfig{LR: 1e-3, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8, MaxGradNorm: 1}))
	assert.NotNil(t, a.Optimizer())
	assert.Equal(t, 1, a.Schedule().LastStep())
}
