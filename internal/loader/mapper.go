package loader

import (
	"strings"
)

// WeightMapper renames checkpoint tensors to the parameter names of a model.
type WeightMapper interface {
	// MapName returns the parameter name for a checkpoint tensor, or false
	// when the tensor should be skipped.
	MapName(name string) (string, bool)
}

// HFMapper maps Hugging Face checkpoints onto bare base models.
//
// Checkpoints saved from task models nest the base model under a wrapper
// prefix ("bert.", "transformer.", ...), and older exports name LayerNorm
// parameters gamma and beta. HFMapper strips the prefix, renames the legacy
// names and drops task heads that live outside the base model.
type HFMapper struct {
	prefixes []string
	heads    []string
}

// NewHFMapper returns a mapper for the given model family name
// ("bert", "gpt2", "openai-gpt", "xlnet", "xlm").
func NewHFMapper(family string) *HFMapper {
	m := &HFMapper{
		heads: []string{"cls.", "lm_head.", "lm_loss.", "pred_layer.", "qa_outputs.", "classifier.", "sequence_summary."},
	}
	switch family {
	case "bert":
		m.prefixes = []string{"bert."}
	case "gpt2", "openai-gpt", "xlnet", "xlm":
		m.prefixes = []string{"transformer."}
	}
	return m
}

// MapName implements WeightMapper.
func (m *HFMapper) MapName(name string) (string, bool) {
	for _, p := range m.prefixes {
		if strings.HasPrefix(name, p) {
			name = strings.TrimPrefix(name, p)
			break
		}
	}
	for _, h := range m.heads {
		if strings.HasPrefix(name, h) {
			return "", false
		}
	}

	switch {
	case strings.HasSuffix(name, ".gamma"):
		name = strings.TrimSuffix(name, ".gamma") + ".weight"
	case strings.HasSuffix(name, ".beta"):
		name = strings.TrimSuffix(name, ".beta") + ".bias"
	}
	return name, true
}
