//go:build !sherpa

// Package silero scores VAD windows with the Silero model through sherpa-onnx.
package silero

import "fmt"

// Available reports whether this build links the native runtime.
const Available = false

// Scorer is a placeholder in builds without the native runtime.
type Scorer struct{}

// New always fails in this build.
func New(path string, _, _ int, _ float64) (*Scorer, error) {
	return nil, fmt.Errorf("silero model %s: %w", path, ErrUnavailable)
}

func (s *Scorer) Score([]float32) float64 { return 0 }

func (s *Scorer) Reset() {}

func (s *Scorer) Close() error { return nil }
