//go:build sherpa

package asr

import (
	"github.com/parleyhq/parley/internal/asr/sherpa"
	"github.com/parleyhq/parley/internal/models"
)

// SherpaAvailable reports whether sherpa families can be loaded.
const SherpaAvailable = true

type sherpaEngine struct {
	engine *sherpa.Engine
}

func newSherpaEngine(set models.Set, opts LoadOptions) (Engine, error) {
	engine, err := sherpa.Open(set, opts.SampleRate)
	if err != nil {
		return nil, err
	}
	return &sherpaEngine{engine: engine}, nil
}

func (e *sherpaEngine) Family() models.Family { return e.engine.Family() }

func (e *sherpaEngine) NewSession() (Session, error) {
	return &sherpaSession{stream: e.engine.NewStream()}, nil
}

func (e *sherpaEngine) Close() error { return e.engine.Close() }

type sherpaSession struct {
	stream *sherpa.Stream
}

func (s *sherpaSession) AcceptWaveform(sampleRate int, samples []float32) error {
	s.stream.AcceptWaveform(sampleRate, samples)
	return nil
}

func (s *sherpaSession) Decode() error {
	s.stream.Decode()
	return nil
}

func (s *sherpaSession) Text() string { return s.stream.Text() }

func (s *sherpaSession) Release() { s.stream.Release() }
