package loader

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// LoadConfig reads a Hugging Face config.json into a generic map.
// Numbers decode as float64, as with encoding/json.
func LoadConfig(path string) (map[string]any, error) {
	//nolint:gosec // G304: model paths come from the caller
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config")
	}
	var cfg map[string]any
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %s", path)
	}
	if cfg == nil {
		return nil, errors.Errorf("config %s is empty", path)
	}
	return cfg, nil
}

// SaveConfig writes cfg as indented JSON.
func SaveConfig(path string, cfg map[string]any) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	return errors.Wrap(os.WriteFile(path, append(data, '\n'), 0o600), "failed to write config")
}
