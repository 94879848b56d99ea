// Package doctor runs runtime readiness diagnostics for config, models, audio, and endpoints.
package doctor

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parleyhq/parley/internal/asr"
	"github.com/parleyhq/parley/internal/audio"
	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/health"
	"github.com/parleyhq/parley/internal/models"
	"github.com/parleyhq/parley/internal/vad/silero"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Probes are the live checks; tests replace them.
type Probes struct {
	SelectDevice func(context.Context, audio.Policy) (audio.Selection, error)
	Health       func(ctx context.Context, addr string, timeout time.Duration) (string, error)
}

// DefaultProbes talks to PulseAudio and the gRPC health endpoint.
func DefaultProbes() Probes {
	return Probes{SelectDevice: audio.SelectDevice, Health: health.Check}
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, loaded config.Loaded, probes Probes) Report {
	cfg := loaded.Config
	checks := []Check{}

	configMsg := fmt.Sprintf("loaded %q", loaded.Path)
	if !loaded.Exists {
		configMsg = fmt.Sprintf("%q not found; using defaults", loaded.Path)
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: configMsg})

	checks = append(checks, checkEnv("XDG_RUNTIME_DIR", func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "runtime dir set for the control socket", "XDG_RUNTIME_DIR is empty; toggle/status cannot reach the owner"))

	checks = append(checks, checkModels(cfg))
	checks = append(checks, checkScorer(cfg))

	if probes.SelectDevice != nil {
		checks = append(checks, checkAudioSelection(ctx, cfg, probes.SelectDevice))
	}
	if cfg.Journal.Enable {
		checks = append(checks, checkJournalDir(cfg))
	}
	if addr := strings.TrimSpace(cfg.Health.Listen); addr != "" && probes.Health != nil {
		checks = append(checks, checkHealth(ctx, addr, probes.Health))
	}

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkModels resolves the model bundle and verifies this build can load it.
func checkModels(cfg config.Config) Check {
	dir, err := config.ModelsDir(cfg)
	if err != nil {
		return Check{Name: "models", Pass: false, Message: err.Error()}
	}
	set, err := models.Resolve(dir)
	if err != nil {
		return Check{Name: "models", Pass: false, Message: err.Error()}
	}
	if !asr.FamilyAvailable(set.Family) {
		return Check{Name: "models", Pass: false, Message: fmt.Sprintf("family %s found in %s but %v", set.Family, dir, asr.ErrFamilyUnavailable)}
	}
	return Check{Name: "models", Pass: true, Message: fmt.Sprintf("family %s via %s in %s", set.Family, set.Source, dir)}
}

// checkScorer verifies the configured VAD scorer is linked.
func checkScorer(cfg config.Config) Check {
	if cfg.VAD.Scorer != "silero" {
		return Check{Name: "vad.scorer", Pass: true, Message: cfg.VAD.Scorer}
	}
	if !silero.Available {
		return Check{Name: "vad.scorer", Pass: false, Message: silero.ErrUnavailable.Error()}
	}
	return Check{Name: "vad.scorer", Pass: true, Message: "silero"}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config, selectDevice func(context.Context, audio.Policy) (audio.Selection, error)) Check {
	selection, err := selectDevice(ctx, audio.Policy{Input: cfg.Audio.Input, Fallback: cfg.Audio.Fallback})
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkJournalDir verifies the journal directory is creatable and writable.
func checkJournalDir(cfg config.Config) Check {
	dir, err := config.JournalDir(cfg)
	if err != nil {
		return Check{Name: "journal.dir", Pass: false, Message: err.Error()}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Check{Name: "journal.dir", Pass: false, Message: err.Error()}
	}
	probe, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return Check{Name: "journal.dir", Pass: false, Message: fmt.Sprintf("not writable: %v", err)}
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return Check{Name: "journal.dir", Pass: true, Message: filepath.Clean(dir)}
}

// checkHealth asks a running owner for its pipeline status.
func checkHealth(ctx context.Context, addr string, probe func(context.Context, string, time.Duration) (string, error)) Check {
	if host, port, err := net.SplitHostPort(addr); err == nil && (host == "" || host == "0.0.0.0") {
		addr = net.JoinHostPort("127.0.0.1", port)
	}
	status, err := probe(ctx, addr, 2*time.Second)
	if err != nil {
		return Check{Name: "health", Pass: false, Message: fmt.Sprintf("%s unreachable: %v", addr, err)}
	}
	return Check{Name: "health", Pass: status == "SERVING", Message: fmt.Sprintf("%s reports %s", addr, status)}
}
