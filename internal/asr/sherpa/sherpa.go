//go:build sherpa

package sherpa

import (
	"errors"
	"fmt"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/parleyhq/parley/internal/models"
)

var errInit = errors.New("recognizer init failed")

// Engine is a loaded offline recognizer. Decode calls on separate streams
// only read the recognizer.
type Engine struct {
	family     models.Family
	recognizer *sherpa.OfflineRecognizer
}

// Open builds the recognizer for set.
func Open(set models.Set, sampleRate int) (*Engine, error) {
	cfg := sherpa.OfflineRecognizerConfig{}
	cfg.FeatConfig.SampleRate = sampleRate
	cfg.FeatConfig.FeatureDim = 80
	cfg.DecodingMethod = "greedy_search"
	cfg.ModelConfig.Tokens = set.Tokens
	cfg.ModelConfig.NumThreads = 1
	cfg.ModelConfig.Provider = "cpu"

	switch set.Family {
	case models.FamilySenseVoice:
		cfg.ModelConfig.SenseVoice.Model = set.File("model")
		cfg.ModelConfig.SenseVoice.Language = set.Options.Language
		if set.Options.UseITN {
			cfg.ModelConfig.SenseVoice.UseInverseTextNormalization = 1
		}
	case models.FamilyWhisper:
		cfg.ModelConfig.Whisper.Encoder = set.File("encoder")
		cfg.ModelConfig.Whisper.Decoder = set.File("decoder")
		cfg.ModelConfig.Whisper.Language = set.Options.Language
		cfg.ModelConfig.Whisper.Task = "transcribe"
		cfg.ModelConfig.Whisper.TailPaddings = -1
	case models.FamilyTransducer, models.FamilyNemoTransducer:
		cfg.ModelConfig.Transducer.Encoder = set.File("encoder")
		cfg.ModelConfig.Transducer.Decoder = set.File("decoder")
		cfg.ModelConfig.Transducer.Joiner = set.File("joiner")
		cfg.ModelConfig.ModelType = string(set.Family)
	case models.FamilyParaformer:
		cfg.ModelConfig.Paraformer.Model = set.File("model")
	case models.FamilyTeleSpeechCTC:
		cfg.ModelConfig.TeleSpeechCtc = set.File("model")
	case models.FamilyMoonshine:
		cfg.ModelConfig.Moonshine.Preprocessor = set.File("preprocessor")
		cfg.ModelConfig.Moonshine.Encoder = set.File("encoder")
		cfg.ModelConfig.Moonshine.UncachedDecoder = set.File("uncached_decoder")
		cfg.ModelConfig.Moonshine.CachedDecoder = set.File("cached_decoder")
	default:
		return nil, fmt.Errorf("family %q is not a sherpa family", set.Family)
	}

	recognizer := sherpa.NewOfflineRecognizer(&cfg)
	if recognizer == nil {
		return nil, fmt.Errorf("%s: %w", set.Family, errInit)
	}
	return &Engine{family: set.Family, recognizer: recognizer}, nil
}

func (e *Engine) Family() models.Family { return e.family }

// NewStream opens one decoding stream.
func (e *Engine) NewStream() *Stream {
	return &Stream{engine: e, stream: sherpa.NewOfflineStream(e.recognizer)}
}

// Close releases the native recognizer.
func (e *Engine) Close() error {
	if e.recognizer != nil {
		sherpa.DeleteOfflineRecognizer(e.recognizer)
		e.recognizer = nil
	}
	return nil
}

// Stream is a single-segment decoding stream.
type Stream struct {
	engine *Engine
	stream *sherpa.OfflineStream
}

func (s *Stream) AcceptWaveform(sampleRate int, samples []float32) {
	s.stream.AcceptWaveform(sampleRate, samples)
}

func (s *Stream) Decode() {
	s.engine.recognizer.Decode(s.stream)
}

func (s *Stream) Text() string {
	result := s.stream.GetResult()
	if result == nil {
		return ""
	}
	return result.Text
}

func (s *Stream) Release() {
	if s.stream != nil {
		sherpa.DeleteOfflineStream(s.stream)
		s.stream = nil
	}
}
