package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// errNotMapping is returned for documents whose root is a list or a scalar.
var errNotMapping = errors.New("document root must be a mapping of settings")

// decoders maps a lowercased file extension to its document decoder.
var decoders = map[string]func([]byte) (Config, error){
	".yaml": FromYAML,
	".yml":  FromYAML,
	".json": FromJSON,
}

// FromFile reads a flowbus config document. The format follows the extension
// (.yaml, .yml, .json, any case). Every error names path.
func FromFile(path string) (Config, error) {
	ext := strings.ToLower(filepath.Ext(path))
	decode, ok := decoders[ext]
	if !ok {
		return Config{}, fmt.Errorf("config %s: unsupported config file extension %q", path, ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}

	c, err := decode(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

// FromYAML decodes a YAML settings document. An empty document yields an
// empty Config, so every setting keeps its default.
func FromYAML(data []byte) (Config, error) {
	var root any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	return fromRoot(root)
}

// FromJSON decodes a JSON settings document.
func FromJSON(data []byte) (Config, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return New(nil), nil
	}
	var root any
	if err := json.Unmarshal(data, &root); err != nil {
		return Config{}, fmt.Errorf("parse json: %w", err)
	}
	return fromRoot(root)
}

func fromRoot(root any) (Config, error) {
	switch v := root.(type) {
	case nil:
		return New(nil), nil
	case map[string]any:
		return New(v), nil
	default:
		return Config{}, fmt.Errorf("%w, got %T", errNotMapping, root)
	}
}
