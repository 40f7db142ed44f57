package stubs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const logPrefix = "stubs:loader"

// File is the on-disk form of a stub set.
//
//	enabled: true
//	stubs:
//	  get_session_info: {tempo: 120, signature_numerator: 4}
type File struct {
	Enabled *bool                  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Stubs   map[string]interface{} `json:"stubs" yaml:"stubs"`
}

// LoadFile reads a stub file. Files ending in .yaml or .yml are parsed as
// YAML; anything else as JSON with numbers kept as json.Number.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read %s: %w", logPrefix, path, err)
	}

	var f File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("%s - failed to parse %s: %w", logPrefix, path, err)
		}
		for name, result := range f.Stubs {
			f.Stubs[name] = normalizeYAML(result)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("%s - failed to parse %s: %w", logPrefix, path, err)
		}
	}
	for name, result := range f.Stubs {
		if _, err := json.Marshal(result); err != nil {
			return nil, fmt.Errorf("%s - stub %s in %s cannot be sent as JSON: %w", logPrefix, name, path, err)
		}
	}
	return &f, nil
}

// normalizeYAML turns the map[interface{}]interface{} values yaml.v3 produces
// for mappings with non-string keys into map[string]interface{}.
func normalizeYAML(v interface{}) interface{} {
	switch x := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(x))
		for k, val := range x {
			m[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return m
	case map[string]interface{}:
		for k, val := range x {
			x[k] = normalizeYAML(val)
		}
		return x
	case []interface{}:
		for i, val := range x {
			x[i] = normalizeYAML(val)
		}
		return x
	default:
		return v
	}
}

// Apply adds every stub in f to s and sets the enabled flag when f names one.
func (f *File) Apply(s *Store) {
	for name, result := range f.Stubs {
		s.Add(name, result)
	}
	if f.Enabled != nil {
		s.SetEnabled(*f.Enabled)
	}
}

// Load builds a store from path. An empty path yields an empty, enabled store.
func Load(path string) (*Store, error) {
	s := NewStore()
	if path == "" {
		return s, nil
	}
	f, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	f.Apply(s)
	slog.Info(fmt.Sprintf("%s - Loaded %d stubs from %s (enabled=%t)", logPrefix, s.Len(), path, s.Enabled()))
	return s, nil
}
