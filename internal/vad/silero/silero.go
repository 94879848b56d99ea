//go:build sherpa

// Package silero scores VAD windows with the Silero model through sherpa-onnx.
package silero

import (
	"fmt"
	"os"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// Available reports whether this build links the native runtime.
const Available = true

// Scorer wraps a sherpa-onnx voice activity detector. The wrapped detector
// keeps its own segment queue; Score drains it since segmentation happens in
// the caller's hysteresis.
type Scorer struct {
	model      string
	sampleRate int
	windowSize int
	detector   *sherpa.VoiceActivityDetector
}

// New loads the Silero model at path.
func New(path string, sampleRate, windowSize int, threshold float64) (*Scorer, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("silero model: %w", err)
	}

	cfg := sherpa.VadModelConfig{}
	cfg.SileroVad.Model = path
	cfg.SileroVad.Threshold = float32(threshold)
	cfg.SileroVad.MinSilenceDuration = 0
	cfg.SileroVad.MinSpeechDuration = 0
	cfg.SileroVad.WindowSize = windowSize
	cfg.SampleRate = sampleRate
	cfg.NumThreads = 1
	cfg.Provider = "cpu"

	detector := sherpa.NewVoiceActivityDetector(&cfg, 30)
	if detector == nil {
		return nil, fmt.Errorf("silero model %s: detector init failed", path)
	}

	return &Scorer{
		model:      path,
		sampleRate: sampleRate,
		windowSize: windowSize,
		detector:   detector,
	}, nil
}

func (s *Scorer) Score(window []float32) float64 {
	s.detector.AcceptWaveform(window)
	for !s.detector.IsEmpty() {
		s.detector.Pop()
	}
	if s.detector.IsSpeech() {
		return 1
	}
	return 0
}

func (s *Scorer) Reset() {
	s.detector.Reset()
}

// Close releases the native detector.
func (s *Scorer) Close() error {
	if s.detector != nil {
		sherpa.DeleteVoiceActivityDetector(s.detector)
		s.detector = nil
	}
	return nil
}
