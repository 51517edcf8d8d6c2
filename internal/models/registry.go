package models

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/born-ml/pretrained/internal/loader"
)

// ErrUnknownModel is returned when a name maps to no registered family.
var ErrUnknownModel = errors.New("unknown model")

// Constructor builds a randomly initialised model of one family.
type Constructor func(cfg Config, opts BuildOptions) (Model, error)

// ConfigLoader reads the configuration of a pretrained model directory.
type ConfigLoader func(dir string) (Config, error)

// Family describes one model family.
type Family struct {
	// Name is the family name, also used as the checkpoint mapper key.
	Name string

	// Prefix is matched against the lower-cased base name of a model
	// identifier ("bert-base-uncased" -> "bert").
	Prefix string

	// ModelType is the "model_type" value of config.json.
	ModelType string

	LoadConfig ConfigLoader
	New        Constructor
}

// Registry maps model identifiers to families. Lookups try families in
// registration order, so more specific prefixes must be registered first.
type Registry struct {
	families []Family
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// DefaultRegistry returns a registry with every built-in family.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Family{Name: "bert", Prefix: "bert", ModelType: "bert", New: func(cfg Config, opts BuildOptions) (Model, error) {
		return NewBertModel(cfg, opts)
	}})
	r.Register(Family{Name: "xlnet", Prefix: "xlnet", ModelType: "xlnet", New: func(cfg Config, opts BuildOptions) (Model, error) {
		return NewXLNetModel(cfg, opts)
	}})
	r.Register(Family{Name: "openai-gpt", Prefix: "openai", ModelType: "openai-gpt", New: func(cfg Config, opts BuildOptions) (Model, error) {
		return NewOpenAIGPTModel(cfg, opts)
	}})
	r.Register(Family{Name: "gpt2", Prefix: "gpt2", ModelType: "gpt2", New: func(cfg Config, opts BuildOptions) (Model, error) {
		return NewGPT2Model(cfg, opts)
	}})
	r.Register(Family{Name: "xlm", Prefix: "xlm", ModelType: "xlm", New: func(cfg Config, opts BuildOptions) (Model, error) {
		return NewXLMModel(cfg, opts)
	}})
	return r
}

// Register adds a family. A nil LoadConfig reads dir/config.json.
func (r *Registry) Register(f Family) {
	if f.LoadConfig == nil {
		f.LoadConfig = LoadConfigFile
	}
	r.families = append(r.families, f)
}

// Lookup finds the family whose prefix starts the base name of name.
func (r *Registry) Lookup(name string) (Family, error) {
	base := strings.ToLower(filepath.Base(name))
	for _, f := range r.families {
		if strings.HasPrefix(base, f.Prefix) {
			return f, nil
		}
	}
	return Family{}, errors.Wrapf(ErrUnknownModel, "no family matches %q", name)
}

// LookupModelType finds the family for a config.json "model_type".
func (r *Registry) LookupModelType(modelType string) (Family, error) {
	for _, f := range r.families {
		if f.ModelType == modelType {
			return f, nil
		}
	}
	return Family{}, errors.Wrapf(ErrUnknownModel, "no family for model_type %q", modelType)
}

// Names returns the registered family names.
func (r *Registry) Names() []string {
	names := make([]string, len(r.families))
	for i, f := range r.families {
		names[i] = f.Name
	}
	return names
}

// FamilyOf returns the family name of a built-in model.
func FamilyOf(m Model) string {
	switch m.(type) {
	case *BertModel:
		return "bert"
	case *GPT2Model:
		return "gpt2"
	case *OpenAIGPTModel:
		return "openai-gpt"
	case *XLNetModel:
		return "xlnet"
	case *XLMModel:
		return "xlm"
	}
	s, _ := m.Config().String("model_type")
	return s
}

// LoadConfigFile reads dir/config.json.
func LoadConfigFile(dir string) (Config, error) {
	cfg, err := loader.LoadConfig(filepath.Join(dir, ConfigFile))
	if err != nil {
		return nil, err
	}
	return Config(cfg), nil
}
