package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/parleyhq/parley/internal/resample"
	"github.com/parleyhq/parley/internal/transcript"
	"github.com/parleyhq/parley/internal/vad"
)

// Recording is a finished waveform to transcribe without a live source.
type Recording struct {
	Samples    []float32
	SampleRate int
}

// TranscribeRecording segments a whole recording and decodes every segment in
// order. Unlike Stop, the trailing open segment is flushed and decoded.
func TranscribeRecording(rec Recording, modelRate int, det *vad.Detector, dec Decoder, opts transcript.Options) ([]Transcript, error) {
	samples, err := resample.Resample(rec.Samples, rec.SampleRate, modelRate)
	if err != nil {
		return nil, err
	}

	det.Reset()
	window := det.WindowSize()
	var segments []vad.Segment
	drain := func() {
		for !det.IsEmpty() {
			segments = append(segments, det.Front())
			det.Pop()
		}
	}
	for len(samples) >= window {
		det.AcceptWaveform(samples[:window])
		samples = samples[window:]
		drain()
	}
	det.Flush()
	drain()

	out := make([]Transcript, 0, len(segments))
	for i, segment := range segments {
		started := time.Now()
		text, err := dec.Decode(segment.Samples, modelRate)
		if err != nil {
			return out, fmt.Errorf("decode segment %d: %w", i, err)
		}
		text = transcript.Normalize(text, opts)
		if text == "" {
			continue
		}
		out = append(out, Transcript{
			ID:            uuid.NewString(),
			Text:          text,
			Start:         samplesToDuration(segment.Start, modelRate),
			Duration:      segment.Duration(modelRate),
			DecodedAt:     time.Now(),
			DecodeLatency: time.Since(started),
		})
	}
	return out, nil
}
