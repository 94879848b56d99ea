// Package logging writes the runtime JSONL log.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/parleyhq/parley/internal/version"
)

// Options selects verbosity and destination. An empty File means
// $XDG_STATE_HOME/parley/log.jsonl.
type Options struct {
	Level string
	File  string
}

// Runtime is an open log: the logger plus the file behind it.
type Runtime struct {
	Logger *slog.Logger
	Path   string
	file   *os.File
}

// Close releases the log file. A zero Runtime closes cleanly.
func (r Runtime) Close() error {
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}

// New opens (appending) the log file and returns a JSON logger on it.
func New(opts Options) (Runtime, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return Runtime{}, err
	}

	path := strings.TrimSpace(opts.File)
	if path == "" {
		if path, err = defaultPath(); err != nil {
			return Runtime{}, fmt.Errorf("resolve log path: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Runtime{}, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return Runtime{}, fmt.Errorf("open log %s: %w", path, err)
	}

	logger := slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: lvl})).
		With("pid", os.Getpid(), "version", version.Current().Version)
	return Runtime{Logger: logger, Path: path, file: f}, nil
}

// ParseLevel maps debug|info|warn|error to a slog level; empty means info.
func ParseLevel(level string) (slog.Level, error) {
	var lvl slog.Level
	name := strings.ToLower(strings.TrimSpace(level))
	switch name {
	case "":
		return slog.LevelInfo, nil
	case "warning":
		name = "warn"
	}
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
	return lvl, nil
}

func defaultPath() (string, error) {
	state := strings.TrimSpace(os.Getenv("XDG_STATE_HOME"))
	if state == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		state = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(state, "parley", "log.jsonl"), nil
}
