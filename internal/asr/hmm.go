package asr

import (
	"fmt"

	transcript "github.com/ieee0824/transcript-go"
	"github.com/ieee0824/transcript-go/feature"

	"github.com/parleyhq/parley/internal/models"
)

// hmmEngine runs the pure-Go HMM/n-gram decoder.
type hmmEngine struct {
	rate       int
	recognizer *transcript.Recognizer
}

func newHMMEngine(set models.Set, opts LoadOptions) (*hmmEngine, error) {
	featCfg := feature.DefaultConfig()
	featCfg.SampleRate = opts.SampleRate
	featCfg.HighFreq = float64(opts.SampleRate) / 2

	rec, err := transcript.NewRecognizer(
		set.File("acoustic"),
		set.File("language"),
		set.File("lexicon"),
		transcript.WithFeatureConfig(featCfg),
	)
	if err != nil {
		return nil, err
	}
	return &hmmEngine{rate: opts.SampleRate, recognizer: rec}, nil
}

func (e *hmmEngine) Family() models.Family { return models.FamilyHMM }

func (e *hmmEngine) NewSession() (Session, error) {
	return &hmmSession{engine: e}, nil
}

func (e *hmmEngine) Close() error { return nil }

type hmmSession struct {
	engine  *hmmEngine
	samples []float64
	text    string
}

func (s *hmmSession) AcceptWaveform(sampleRate int, samples []float32) error {
	if sampleRate != s.engine.rate {
		return fmt.Errorf("hmm engine expects %d Hz, got %d Hz", s.engine.rate, sampleRate)
	}
	for _, v := range samples {
		s.samples = append(s.samples, float64(v))
	}
	return nil
}

func (s *hmmSession) Decode() error {
	result, err := s.engine.recognizer.RecognizeSamples(s.samples)
	if err != nil {
		return err
	}
	if result != nil {
		s.text = result.Text
	}
	return nil
}

func (s *hmmSession) Text() string { return s.text }

func (s *hmmSession) Release() {
	s.samples = nil
}
