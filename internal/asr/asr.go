// Package asr decodes finished speech segments into text.
package asr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/parleyhq/parley/internal/models"
)

// ErrFamilyUnavailable reports a model family this binary cannot load.
var ErrFamilyUnavailable = errors.New("model family unavailable in this build")

// Session holds the decoding state of one segment. Sessions are not reused.
type Session interface {
	AcceptWaveform(sampleRate int, samples []float32) error
	Decode() error
	Text() string
	Release()
}

// Engine is a loaded, read-only model that hands out sessions.
type Engine interface {
	Family() models.Family
	NewSession() (Session, error)
	Close() error
}

// Recognizer runs the open-feed-decode-read-release cycle against an engine.
type Recognizer struct {
	engine Engine
}

// NewRecognizer wraps a loaded engine.
func NewRecognizer(engine Engine) *Recognizer {
	return &Recognizer{engine: engine}
}

// Family returns the engine family, or "" when no engine is attached.
func (r *Recognizer) Family() models.Family {
	if r == nil || r.engine == nil {
		return ""
	}
	return r.engine.Family()
}

// Decode transcribes one whole segment. Calling it without an engine is a
// programming error and panics.
func (r *Recognizer) Decode(waveform []float32, sampleRate int) (string, error) {
	if r == nil || r.engine == nil {
		panic("asr: decode called before the engine was loaded")
	}

	session, err := r.engine.NewSession()
	if err != nil {
		return "", fmt.Errorf("open session: %w", err)
	}
	defer session.Release()

	if err := session.AcceptWaveform(sampleRate, waveform); err != nil {
		return "", fmt.Errorf("accept waveform: %w", err)
	}
	if err := session.Decode(); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	return strings.TrimSpace(session.Text()), nil
}

// Close releases the engine.
func (r *Recognizer) Close() error {
	if r == nil || r.engine == nil {
		return nil
	}
	return r.engine.Close()
}

// LoadOptions tunes engine construction.
type LoadOptions struct {
	SampleRate int
	NumThreads int
	Logger     *slog.Logger
}

// Load builds the engine for set.Family.
func Load(ctx context.Context, set models.Set, opts LoadOptions) (Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	if opts.NumThreads <= 0 {
		opts.NumThreads = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	opts.Logger.Info("loading recognizer",
		"family", string(set.Family),
		"source", set.Source,
		"dir", set.Dir,
	)

	var (
		engine Engine
		err    error
	)
	switch set.Family {
	case models.FamilyHMM:
		engine, err = newHMMEngine(set, opts)
	case "":
		return nil, fmt.Errorf("%w: empty family", models.ErrNoModelFound)
	default:
		engine, err = newSherpaEngine(set, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s engine: %w", set.Family, err)
	}

	if err := ctx.Err(); err != nil {
		_ = engine.Close()
		return nil, err
	}
	return engine, nil
}

// FamilyAvailable reports whether this build can load f.
func FamilyAvailable(f models.Family) bool {
	switch {
	case f == models.FamilyHMM:
		return true
	case len(models.RequiredRoles(f)) > 0:
		return SherpaAvailable
	default:
		return false
	}
}
