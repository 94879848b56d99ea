package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/audio"
	"github.com/parleyhq/parley/internal/config"
)

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestCheckEnv(t *testing.T) {
	t.Setenv("TEST_DOCTOR_ENV", "/run/user/1000")

	check := checkEnv(
		"TEST_DOCTOR_ENV",
		func(v string) bool { return strings.HasPrefix(v, "/run") },
		"looks good",
		"unexpected",
	)

	require.True(t, check.Pass)
	require.Equal(t, "looks good", check.Message)
}

func hmmBundle(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"hmm-acoustic.bin", "hmm-language.arpa", "hmm-lexicon.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}
	return dir
}

func TestCheckModels(t *testing.T) {
	cfg := config.Default()
	cfg.Models.Dir = hmmBundle(t)
	check := checkModels(cfg)
	require.True(t, check.Pass, check.Message)
	require.Contains(t, check.Message, "family hmm")

	cfg.Models.Dir = t.TempDir()
	check = checkModels(cfg)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "no recognizer model found")
}

func TestCheckScorer(t *testing.T) {
	cfg := config.Default()
	require.True(t, checkScorer(cfg).Pass)
}

func TestCheckAudioSelection(t *testing.T) {
	cfg := config.Default()
	ok := func(_ context.Context, p audio.Policy) (audio.Selection, error) {
		require.Equal(t, "default", p.Input)
		return audio.Selection{Device: audio.Device{ID: "alsa_input.mic"}, Warning: "fell back"}, nil
	}
	check := checkAudioSelection(context.Background(), cfg, ok)
	require.True(t, check.Pass)
	require.Equal(t, `selected "alsa_input.mic" (fell back)`, check.Message)

	denied := func(context.Context, audio.Policy) (audio.Selection, error) {
		return audio.Selection{}, fmt.Errorf("%w: source muted", audio.ErrPermissionDenied)
	}
	check = checkAudioSelection(context.Background(), cfg, denied)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "source muted")
}

func TestCheckJournalDir(t *testing.T) {
	cfg := config.Default()
	cfg.Journal.Dir = filepath.Join(t.TempDir(), "journal")
	check := checkJournalDir(cfg)
	require.True(t, check.Pass, check.Message)

	entries, err := os.ReadDir(cfg.Journal.Dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestCheckHealthRewritesWildcardHost(t *testing.T) {
	var dialed string
	probe := func(_ context.Context, addr string, _ time.Duration) (string, error) {
		dialed = addr
		return "NOT_SERVING", nil
	}
	check := checkHealth(context.Background(), ":7070", probe)
	require.Equal(t, "127.0.0.1:7070", dialed)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "NOT_SERVING")

	failing := func(context.Context, string, time.Duration) (string, error) {
		return "", errors.New("connection refused")
	}
	check = checkHealth(context.Background(), "127.0.0.1:7070", failing)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "unreachable")
}

func TestRunAllPassing(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	cfg := config.Default()
	cfg.Models.Dir = hmmBundle(t)
	cfg.Journal.Enable = true
	cfg.Journal.Dir = t.TempDir()
	cfg.Health.Listen = "127.0.0.1:7070"

	probes := Probes{
		SelectDevice: func(context.Context, audio.Policy) (audio.Selection, error) {
			return audio.Selection{Device: audio.Device{ID: "mic"}}, nil
		},
		Health: func(context.Context, string, time.Duration) (string, error) { return "SERVING", nil },
	}

	report := Run(context.Background(), config.Loaded{Path: "/tmp/config.yaml", Config: cfg, Exists: true}, probes)
	require.True(t, report.OK(), report.String())

	names := make([]string, 0, len(report.Checks))
	for _, check := range report.Checks {
		names = append(names, check.Name)
	}
	require.Equal(t, []string{"config", "XDG_RUNTIME_DIR", "models", "vad.scorer", "audio.device", "journal.dir", "health"}, names)
}

func TestRunSkipsUnconfiguredProbes(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")

	cfg := config.Default()
	cfg.Models.Dir = hmmBundle(t)

	report := Run(context.Background(), config.Loaded{Path: "/tmp/missing.yaml", Config: cfg}, Probes{})
	require.False(t, report.OK())
	require.Len(t, report.Checks, 4)
	require.Contains(t, report.Checks[0].Message, "using defaults")
	require.False(t, report.Checks[1].Pass)
}
