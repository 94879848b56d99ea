package config

import (
	"errors"
	"fmt"
	"os"
)

// Loaded is a resolved config plus where it came from.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	// Exists is false when Path was missing and defaults were used.
	Exists bool
}

// Load reads the config at explicitPath, or the default location when empty.
// A missing file yields defaults and a warning; anything unreadable is an error.
func Load(explicitPath string) (Loaded, error) {
	path, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}
	loaded := Loaded{Path: path, Config: Default()}

	content, err := readConfigFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		loaded.Warnings = append(loaded.Warnings, Warning{
			Message: fmt.Sprintf("config file %q not found; using defaults", path),
		})
		return loaded, nil
	case err != nil:
		return Loaded{}, err
	}

	cfg, warnings, err := Parse(string(content), loaded.Config)
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	loaded.Config = cfg
	loaded.Warnings = warnings
	loaded.Exists = true
	return loaded, nil
}

func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("stat config %q: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %q is a directory", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	return content, nil
}
