package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ResolvePath applies CLI/XDG/home fallback rules for config.yaml location.
func ResolvePath(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}

	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "parley", "config.yaml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for config fallback")
	}

	return filepath.Join(home, ".config", "parley", "config.yaml"), nil
}

// ModelsDir returns models.dir, defaulting to the XDG data directory.
func ModelsDir(cfg Config) (string, error) {
	if dir := strings.TrimSpace(cfg.Models.Dir); dir != "" {
		return expandHome(dir)
	}
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"), "models")
}

// JournalDir returns journal.dir, defaulting to the XDG state directory.
func JournalDir(cfg Config) (string, error) {
	if dir := strings.TrimSpace(cfg.Journal.Dir); dir != "" {
		return expandHome(dir)
	}
	return xdgDir("XDG_STATE_HOME", filepath.Join(".local", "state"), "journal")
}

// LogFile returns log.file, defaulting to the XDG state directory.
func LogFile(cfg Config) (string, error) {
	if file := strings.TrimSpace(cfg.Log.File); file != "" {
		return expandHome(file)
	}
	return xdgDir("XDG_STATE_HOME", filepath.Join(".local", "state"), "log.jsonl")
}

func xdgDir(env, homeRel, leaf string) (string, error) {
	if xdg := strings.TrimSpace(os.Getenv(env)); xdg != "" {
		return filepath.Join(xdg, "parley", leaf), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for " + leaf + " directory")
	}
	return filepath.Join(home, homeRel, "parley", leaf), nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for " + path)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
