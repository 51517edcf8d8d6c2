package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	run, err := Parse([]byte("model: bert-base-uncased\n"))
	require.NoError(t, err)

	assert.Equal(t, "bert-base-uncased", run.Model)
	assert.Equal(t, 10, run.Steps)
	require.NotNil(t, run.Dropout)
	assert.Equal(t, float32(0.1), *run.Dropout)
	assert.Equal(t, Optimizer{
		Kind: "adamw", LearnRate: 0.001, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8, MaxGradNorm: 1,
	}, run.Optimizer)
}

func TestParse_Overrides(t *testing.T) {
	run, err := Parse([]byte(`
model: gpt2
steps: 3
dropout: 0.2
texts: ["a", "b"]
optimizer:
  kind: sgd
  learn_rate: 0.5
  L2: 0.01
  max_grad_norm: 0
  momentum: 0.9
output: out
`))
	require.NoError(t, err)
	assert.Equal(t, 3, run.Steps)
	assert.Equal(t, float32(0.2), *run.Dropout)
	assert.Equal(t, []string{"a", "b"}, run.Texts)
	assert.Equal(t, "sgd", run.Optimizer.Kind)
	assert.Equal(t, float32(0.5), run.Optimizer.LearnRate)
	assert.Equal(t, float32(0.01), run.Optimizer.L2)
	assert.Zero(t, run.Optimizer.MaxGradNorm)
	assert.Equal(t, float32(0.9), run.Optimizer.Beta1, "untouched fields keep their defaults")
	assert.Equal(t, "out", run.Output)
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"missing model": "steps: 3\n",
		"zero steps":    "model: bert\nsteps: 0\n",
		"dropout range": "model: bert\ndropout: 1.5\n",
		"learn rate":    "model: bert\noptimizer:\n  learn_rate: -1\n",
		"kind":          "model: bert\noptimizer:\n  kind: lamb\n",
		"yaml":          "model: [\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: xlm\nsteps: 2\n"), 0o600))

	run, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "xlm", run.Model)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
