package config

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse overlays YAML content onto base and validates the result.
// Keys absent from content keep their base value; unknown keys are errors.
func Parse(content string, base Config) (Config, []Warning, error) {
	cfg := base
	if strings.TrimSpace(content) != "" {
		decoder := yaml.NewDecoder(strings.NewReader(content))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, nil, fmt.Errorf("decode yaml: %w", err)
		}

		var extra yaml.Node
		if err := decoder.Decode(&extra); err == nil {
			return Config{}, nil, fmt.Errorf("decode yaml: line %d: multiple documents are not supported", extra.Line)
		}
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
