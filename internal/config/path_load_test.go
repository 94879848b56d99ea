package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvePathPrecedence(t *testing.T) {
	explicit := "/tmp/custom.yaml"
	resolved, err := ResolvePath(explicit)
	require.NoError(t, err)
	require.Equal(t, explicit, resolved)

	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(xdg, "parley", "config.yaml"), resolved)

	t.Setenv("XDG_CONFIG_HOME", "")
	home := t.TempDir()
	t.Setenv("HOME", home)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".config", "parley", "config.yaml"), resolved)
}

func TestModelsAndJournalDirDefaults(t *testing.T) {
	data := t.TempDir()
	state := t.TempDir()
	t.Setenv("XDG_DATA_HOME", data)
	t.Setenv("XDG_STATE_HOME", state)

	cfg := Default()
	dir, err := ModelsDir(cfg)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(data, "parley", "models"), dir)

	dir, err = JournalDir(cfg)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(state, "parley", "journal"), dir)

	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg.Models.Dir = "~/models"
	dir, err = ModelsDir(cfg)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "models"), dir)

	cfg.Journal.Dir = "/var/lib/parley"
	dir, err = JournalDir(cfg)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/parley", dir)

	file, err := LogFile(cfg)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(state, "parley", "log.jsonl"), file)

	cfg.Log.File = "~/parley.log"
	file, err = LogFile(cfg)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "parley.log"), file)
}

func TestLoadMissingConfigUsesDefaultsWithWarning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, path, loaded.Path)
	require.False(t, loaded.Exists)
	require.Equal(t, Default(), loaded.Config)
	require.NotEmpty(t, loaded.Warnings)
	require.Contains(t, loaded.Warnings[0].Message, "not found")
}

func TestLoadExistingYAMLOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := `
audio:
  input: alsa_input.usb-mic
  sample_rate: 44100
pipeline:
  queue_size: 4
resample:
  method: sinc
chat:
  enable: true
  url: ws://127.0.0.1:7880/chat
  room: standup
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.True(t, loaded.Exists)
	require.Equal(t, path, loaded.Path)

	cfg := loaded.Config
	require.Equal(t, "alsa_input.usb-mic", cfg.Audio.Input)
	require.Equal(t, "default", cfg.Audio.Fallback)
	require.Equal(t, 44100, cfg.Audio.SampleRate)
	require.Equal(t, 4096, cfg.Audio.ChunkFrames)
	require.Equal(t, 4, cfg.Pipeline.QueueSize)
	require.Equal(t, 16000, cfg.Pipeline.SampleRate)
	require.Equal(t, "sinc", cfg.Resample.Method)
	require.True(t, cfg.Chat.Enable)
	require.Equal(t, "standup", cfg.Chat.Room)
	require.Equal(t, "parley", cfg.Chat.Identity)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, Default().VAD, cfg.VAD)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("audio:\n  inptu: default\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "inptu")
}

func TestLoadParseErrorIncludesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("audio: [not, a, map"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse config")
	require.Contains(t, err.Error(), path)
}

func TestParseEmptyContentReturnsBase(t *testing.T) {
	cfg, warnings, err := Parse("  \n", Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, Default(), cfg)
}

func TestParseRejectsMultipleDocuments(t *testing.T) {
	_, _, err := Parse("log:\n  level: info\n---\nlog:\n  level: debug\n", Default())
	require.ErrorContains(t, err, "multiple documents")
}

func TestMarshalRoundTripsThroughParse(t *testing.T) {
	cfg := Default()
	cfg.Journal.Enable = true
	cfg.Health.Listen = "127.0.0.1:7070"

	data, err := Marshal(cfg)
	require.NoError(t, err)

	parsed, _, err := Parse(string(data), Config{})
	require.NoError(t, err)
	require.Equal(t, cfg, parsed)
}

func TestLoadRejectsDirectory(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "is a directory")
}
