// Package vad segments a stream of fixed-size windows into speech utterances.
package vad

import (
	"fmt"
	"time"
)

// Scorer maps one window to a speech probability in [0, 1].
type Scorer interface {
	Score(window []float32) float64
	Reset()
}

// Config controls segmentation. Durations are converted to samples at SampleRate.
type Config struct {
	SampleRate int
	WindowSize int
	Threshold  float64
	MinSpeech  time.Duration
	MinSilence time.Duration
	// MaxSpeech cuts segments that run longer; zero disables the cut.
	MaxSpeech time.Duration
	Padding   time.Duration
}

// DefaultConfig matches a Silero-style setup at 16 kHz.
func DefaultConfig() Config {
	return Config{
		SampleRate: 16000,
		WindowSize: 512,
		Threshold:  0.5,
		MinSpeech:  250 * time.Millisecond,
		MinSilence: 500 * time.Millisecond,
		MaxSpeech:  20 * time.Second,
		Padding:    200 * time.Millisecond,
	}
}

// Segment is one finalized utterance.
type Segment struct {
	// Start is the absolute sample index since the last Reset.
	Start   int64
	Samples []float32
}

// Duration returns the segment length at the given sample rate.
func (s Segment) Duration(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(s.Samples)) * time.Second / time.Duration(sampleRate)
}

// Detector applies hysteresis over Scorer output and queues finished segments.
// It is not safe for concurrent use.
type Detector struct {
	cfg    Config
	scorer Scorer

	minSpeech  int64
	minSilence int64
	maxSpeech  int64
	padding    int64

	pos        int64
	audio      []float32
	audioStart int64

	triggered  bool
	segStart   int64
	candidate  int64
	speechRun  int64
	silenceRun int64

	queue []Segment
}

// New creates a Detector. It panics on a config that cannot segment anything.
func New(cfg Config, scorer Scorer) *Detector {
	if cfg.SampleRate <= 0 || cfg.WindowSize <= 0 {
		panic(fmt.Sprintf("vad: invalid config sample_rate=%d window_size=%d", cfg.SampleRate, cfg.WindowSize))
	}
	if scorer == nil {
		panic("vad: nil scorer")
	}
	return &Detector{
		cfg:        cfg,
		scorer:     scorer,
		minSpeech:  samplesFor(cfg.MinSpeech, cfg.SampleRate),
		minSilence: samplesFor(cfg.MinSilence, cfg.SampleRate),
		maxSpeech:  samplesFor(cfg.MaxSpeech, cfg.SampleRate),
		padding:    samplesFor(cfg.Padding, cfg.SampleRate),
	}
}

func samplesFor(d time.Duration, rate int) int64 {
	return int64(d) * int64(rate) / int64(time.Second)
}

// WindowSize returns the window length AcceptWaveform requires.
func (d *Detector) WindowSize() int {
	return d.cfg.WindowSize
}

// AcceptWaveform consumes exactly one window.
func (d *Detector) AcceptWaveform(window []float32) {
	if len(window) != d.cfg.WindowSize {
		panic(fmt.Sprintf("vad: window has %d samples, want %d", len(window), d.cfg.WindowSize))
	}

	speech := d.scorer.Score(window) >= d.cfg.Threshold
	n := int64(len(window))
	windowStart := d.pos
	d.audio = append(d.audio, window...)
	d.pos += n

	if !d.triggered {
		if !speech {
			d.speechRun = 0
			d.trimTo(d.pos - d.padding)
			return
		}
		if d.speechRun == 0 {
			d.candidate = windowStart
		}
		d.speechRun += n
		if d.speechRun >= d.minSpeech {
			d.triggered = true
			d.segStart = max(d.candidate-d.padding, d.audioStart)
			d.silenceRun = 0
		}
		return
	}

	if speech {
		d.silenceRun = 0
	} else {
		d.silenceRun += n
	}

	switch {
	case d.silenceRun >= d.minSilence:
		end := min(d.pos-d.silenceRun+d.padding, d.pos)
		d.emit(d.segStart, end)
		d.triggered = false
		d.speechRun = 0
		d.silenceRun = 0
		d.trimTo(max(end, d.pos-d.padding))
	case d.maxSpeech > 0 && d.pos-d.segStart >= d.maxSpeech:
		d.emit(d.segStart, d.pos)
		d.segStart = d.pos
		d.trimTo(d.pos)
	}
}

// IsEmpty reports whether no finished segment is queued.
func (d *Detector) IsEmpty() bool {
	return len(d.queue) == 0
}

// Front returns the oldest queued segment.
func (d *Detector) Front() Segment {
	if len(d.queue) == 0 {
		panic("vad: front on empty segment queue")
	}
	return d.queue[0]
}

// Pop removes the oldest queued segment.
func (d *Detector) Pop() {
	if len(d.queue) == 0 {
		return
	}
	d.queue[0] = Segment{}
	d.queue = d.queue[1:]
	if len(d.queue) == 0 {
		d.queue = nil
	}
}

// IsSpeech reports whether a segment is currently open.
func (d *Detector) IsSpeech() bool {
	return d.triggered
}

// Flush closes an open segment at the current position.
func (d *Detector) Flush() {
	if !d.triggered {
		return
	}
	end := d.pos
	if d.silenceRun > d.padding {
		end = d.pos - d.silenceRun + d.padding
	}
	d.emit(d.segStart, end)
	d.triggered = false
	d.speechRun = 0
	d.silenceRun = 0
	d.trimTo(d.pos)
}

// Reset clears detector state, queued segments and the scorer.
func (d *Detector) Reset() {
	d.scorer.Reset()
	d.pos = 0
	d.audio = nil
	d.audioStart = 0
	d.triggered = false
	d.segStart = 0
	d.candidate = 0
	d.speechRun = 0
	d.silenceRun = 0
	d.queue = nil
}

func (d *Detector) emit(start, end int64) {
	if end <= start {
		return
	}
	samples := make([]float32, end-start)
	copy(samples, d.audio[start-d.audioStart:end-d.audioStart])
	d.queue = append(d.queue, Segment{Start: start, Samples: samples})
}

// trimTo drops retained audio before the absolute index abs.
func (d *Detector) trimTo(abs int64) {
	if abs <= d.audioStart {
		return
	}
	drop := min(abs-d.audioStart, int64(len(d.audio)))
	if drop == int64(len(d.audio)) {
		d.audio = d.audio[:0]
	} else {
		d.audio = append(d.audio[:0], d.audio[drop:]...)
	}
	d.audioStart += drop
}
