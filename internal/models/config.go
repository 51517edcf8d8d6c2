package models

import (
	"encoding/json"
	"math"
	"sort"
)

// Config is a model configuration as loaded from a Hugging Face
// config.json. Numbers decode as float64; the accessors convert.
type Config map[string]any

// Int returns the integer value of key. Floats with a fractional part are
// rejected.
func (c Config) Int(key string) (int, bool) {
	switch v := c[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case int32:
		return int(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

// IntOr returns the integer value of key, or def.
func (c Config) IntOr(key string, def int) int {
	if v, ok := c.Int(key); ok {
		return v
	}
	return def
}

// Float returns the numeric value of key.
func (c Config) Float(key string) (float64, bool) {
	switch v := c[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// FloatOr returns the numeric value of key, or def.
func (c Config) FloatOr(key string, def float64) float64 {
	if v, ok := c.Float(key); ok {
		return v
	}
	return def
}

// String returns the string value of key.
func (c Config) String(key string) (string, bool) {
	s, ok := c[key].(string)
	return s, ok
}

// Has reports whether key is present.
func (c Config) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// Keys returns the keys in sorted order.
func (c Config) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy.
func (c Config) Clone() Config {
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Merge copies every entry of other into c, overwriting existing keys.
func (c Config) Merge(other Config) {
	for k, v := range other {
		c[k] = v
	}
}

// withDefaults returns a copy of cfg with the missing keys of defaults added.
func withDefaults(cfg, defaults Config) Config {
	out := defaults.Clone()
	out.Merge(cfg)
	return out
}
