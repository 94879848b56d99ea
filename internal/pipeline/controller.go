// Package pipeline wires capture, resampling, VAD and recognition into one
// start/stop controller.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parleyhq/parley/internal/audio"
	"github.com/parleyhq/parley/internal/fsm"
	"github.com/parleyhq/parley/internal/metrics"
	"github.com/parleyhq/parley/internal/ready"
	"github.com/parleyhq/parley/internal/resample"
	"github.com/parleyhq/parley/internal/ringbuf"
	"github.com/parleyhq/parley/internal/transcript"
	"github.com/parleyhq/parley/internal/vad"
)

var (
	// ErrEngineNotReady is returned by Start before initialization succeeded.
	ErrEngineNotReady = errors.New("speech engine is not ready")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("pipeline is closed")
)

// Decoder turns one whole segment into text.
type Decoder interface {
	Decode(waveform []float32, sampleRate int) (string, error)
}

// Loader performs the one-time initialization work and returns the decoder.
type Loader func(ctx context.Context) (Decoder, error)

// ConverterFactory builds a converter from the capture rate to the model rate.
type ConverterFactory func(inputRate int) (resample.Converter, error)

// Transcript is one published utterance.
type Transcript struct {
	ID            string
	Text          string
	Start         time.Duration
	Duration      time.Duration
	DecodedAt     time.Time
	DecodeLatency time.Duration
}

// Config tunes the controller.
type Config struct {
	SampleRate       int
	QueueSize        int
	DecodeInline     bool
	TranscriptBuffer int
	Normalize        transcript.Options
}

// Deps are the collaborators the controller drives.
type Deps struct {
	Source     audio.Source
	Converters ConverterFactory
	Buffer     *ringbuf.Buffer
	Detector   *vad.Detector
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

type job struct {
	generation uint64
	segment    vad.Segment
}

// Controller owns the capture lifecycle. Start, Stop, Toggle and Close are
// safe for concurrent use.
type Controller struct {
	cfg          Config
	source       audio.Source
	newConverter ConverterFactory
	logger       *slog.Logger
	metrics      *metrics.Metrics
	readiness    *ready.Latch

	initOnce  sync.Once
	closeOnce sync.Once

	// lifecycleMu serializes Start/Stop/Close. It is never taken by the
	// capture callback, so Stop can wait for in-flight callbacks.
	lifecycleMu sync.Mutex

	mu          sync.Mutex
	state       fsm.State
	decoder     Decoder
	initErr     error
	stream      audio.Stream
	capturing   bool
	generation  uint64
	converter   resample.Converter
	buffer      *ringbuf.Buffer
	detector    *vad.Detector
	overruns    int64
	resampleErr uint64 // generation whose resample failure was logged
	latest      string
	closed      bool
	transcripts chan Transcript

	queue      chan job
	quit       chan struct{}
	workerDone chan struct{}
}

// New constructs a controller and starts its decode worker.
func New(cfg Config, deps Deps) *Controller {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 8
	}
	if cfg.TranscriptBuffer <= 0 {
		cfg.TranscriptBuffer = 32
	}
	if deps.Source == nil {
		panic("pipeline: nil audio source")
	}
	if deps.Buffer == nil || deps.Detector == nil {
		panic("pipeline: ring buffer and detector are required")
	}
	if deps.Converters == nil {
		deps.Converters = func(inputRate int) (resample.Converter, error) {
			return resample.New(resample.MethodAverage, inputRate, cfg.SampleRate)
		}
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	c := &Controller{
		cfg:          cfg,
		source:       deps.Source,
		newConverter: deps.Converters,
		logger:       deps.Logger,
		metrics:      deps.Metrics,
		readiness:    ready.New(),
		state:        fsm.StateUninitialized,
		buffer:       deps.Buffer,
		detector:     deps.Detector,
		transcripts:  make(chan Transcript, cfg.TranscriptBuffer),
		queue:        make(chan job, cfg.QueueSize),
		quit:         make(chan struct{}),
		workerDone:   make(chan struct{}),
	}
	go c.worker()
	return c
}

// Init runs loader once in the background. Later calls are no-ops.
func (c *Controller) Init(ctx context.Context, loader Loader) {
	c.initOnce.Do(func() {
		c.mu.Lock()
		if err := c.transitionLocked(fsm.EventInit); err != nil {
			c.mu.Unlock()
			c.readiness.Fail(err)
			return
		}
		c.mu.Unlock()

		go c.runInit(ctx, loader)
	})
}

func (c *Controller) runInit(ctx context.Context, loader Loader) {
	started := time.Now()
	decoder, err := loader(ctx)
	if err == nil && decoder == nil {
		err = errors.New("loader returned no decoder")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		closeDecoder(decoder)
		c.readiness.Fail(ErrClosed)
		return
	}
	if err != nil {
		c.initErr = err
		_ = c.transitionLocked(fsm.EventFail)
		c.mu.Unlock()

		c.logger.Error("pipeline init failed", "error", err.Error())
		c.readiness.Fail(err)
		return
	}
	c.decoder = decoder
	_ = c.transitionLocked(fsm.EventLoaded)
	c.mu.Unlock()

	c.logger.Info("pipeline ready", "init_ms", time.Since(started).Milliseconds())
	c.readiness.Fire()
}

// Readiness exposes the one-shot readiness latch.
func (c *Controller) Readiness() *ready.Latch {
	return c.readiness
}

// InitErr returns the initialization failure, if any.
func (c *Controller) InitErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initErr
}

// State returns the lifecycle state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Capturing reports whether the microphone is open.
func (c *Controller) Capturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturing
}

// LatestText returns the most recently published transcript text.
func (c *Controller) LatestText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

// Transcripts delivers every published transcript. The channel is closed by Close.
func (c *Controller) Transcripts() <-chan Transcript {
	return c.transcripts
}

// Start opens the microphone. It is a no-op while capturing.
func (c *Controller) Start(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	return c.startLocked(ctx)
}

// Stop closes the microphone and discards buffered audio. It is a no-op
// when not capturing.
func (c *Controller) Stop() error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	return c.stopLocked()
}

// Toggle stops when capturing, otherwise starts.
func (c *Controller) Toggle(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.Capturing() {
		return c.stopLocked()
	}
	return c.startLocked(ctx)
}

// Close stops capture, stops the worker and closes Transcripts. It is idempotent.
func (c *Controller) Close() error {
	var stopErr error
	c.closeOnce.Do(func() {
		c.lifecycleMu.Lock()
		stopErr = c.stopLocked()

		c.mu.Lock()
		c.closed = true
		_ = c.transitionLocked(fsm.EventClose)
		close(c.quit)
		c.mu.Unlock()
		c.lifecycleMu.Unlock()

		<-c.workerDone

		c.mu.Lock()
		close(c.transcripts)
		decoder := c.decoder
		c.decoder = nil
		c.mu.Unlock()

		closeDecoder(decoder)
	})
	return stopErr
}

func (c *Controller) startLocked(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.capturing:
		c.mu.Unlock()
		return nil
	case c.state != fsm.StateReady:
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrEngineNotReady, state)
	}
	c.generation++
	gen := c.generation
	c.capturing = true
	c.mu.Unlock()

	stream, err := c.source.Open(ctx, func(chunk []float32, sampleRate int) {
		c.onChunk(gen, chunk, sampleRate)
	}, func(err error) {
		c.onStreamEnd(gen, err)
	})
	if err != nil {
		c.mu.Lock()
		c.capturing = false
		c.resetLocked()
		c.mu.Unlock()

		c.metrics.CaptureFailures.Inc()
		c.logger.Warn("capture start failed", "error", err.Error())
		return fmt.Errorf("start capture: %w", err)
	}

	c.mu.Lock()
	c.stream = stream
	_ = c.transitionLocked(fsm.EventStart)
	c.mu.Unlock()

	c.metrics.Capturing.Set(1)
	c.logger.Info("capture started", "generation", gen)
	return nil
}

func (c *Controller) stopLocked() error {
	c.mu.Lock()
	if !c.capturing {
		c.mu.Unlock()
		return nil
	}
	c.capturing = false
	c.generation++
	stream := c.stream
	c.stream = nil
	c.resetLocked()
	_ = c.transitionLocked(fsm.EventStop)
	c.mu.Unlock()

	dropped := c.drainQueue()
	c.metrics.Capturing.Set(0)

	var err error
	if stream != nil {
		if err = stream.Close(); err != nil {
			c.logger.Warn("capture close failed", "error", err.Error())
		}
	}
	c.logger.Info("capture stopped", "dropped_segments", dropped)
	return err
}

// onStreamEnd returns the controller to ready when capture generation gen
// ended on its own. Ends reported for an older generation are ignored.
func (c *Controller) onStreamEnd(gen uint64, err error) {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	c.mu.Lock()
	current := c.capturing && gen == c.generation
	c.mu.Unlock()
	if !current {
		return
	}

	c.metrics.CaptureFailures.Inc()
	c.logger.Warn("capture ended unexpectedly", "generation", gen, "error", err.Error())
	_ = c.stopLocked()
}

func (c *Controller) resetLocked() {
	c.buffer.Reset()
	c.detector.Reset()
	if c.converter != nil {
		c.converter.Reset()
	}
	c.overruns = 0
}

func (c *Controller) transitionLocked(event fsm.Event) error {
	next, err := fsm.Transition(c.state, event)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

// onChunk runs on the capture goroutine for capture generation gen.
func (c *Controller) onChunk(gen uint64, chunk []float32, sampleRate int) {
	c.mu.Lock()
	if !c.capturing || gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.metrics.Chunks.Inc()

	if c.converter == nil || c.converter.InputRate() != sampleRate {
		converter, err := c.newConverter(sampleRate)
		if err != nil {
			c.resampleFailedLocked(gen, "resampler setup failed", err, "sample_rate", sampleRate)
			return
		}
		c.converter = converter
	}

	converted, err := c.converter.Convert(chunk)
	if err != nil {
		c.resampleFailedLocked(gen, "resample failed", err)
		return
	}

	c.buffer.Push(converted)
	if overruns := c.buffer.Overruns(); overruns > c.overruns {
		c.metrics.OverrunSamples.Add(float64(overruns - c.overruns))
		c.overruns = overruns
	}

	window := c.detector.WindowSize()
	for c.buffer.Size() >= window {
		c.detector.AcceptWaveform(c.buffer.Get(0, window))
		c.buffer.Pop(window)
		c.metrics.Windows.Inc()
	}

	var segments []vad.Segment
	for !c.detector.IsEmpty() {
		segments = append(segments, c.detector.Front())
		c.detector.Pop()
	}
	c.mu.Unlock()

	for _, segment := range segments {
		c.metrics.SegmentsEmitted.Inc()
		c.dispatch(job{generation: gen, segment: segment})
	}
}

// resampleFailedLocked counts a discarded chunk and logs only the first
// failure of each capture generation. It releases c.mu.
func (c *Controller) resampleFailedLocked(gen uint64, msg string, err error, attrs ...any) {
	first := c.resampleErr != gen
	c.resampleErr = gen
	c.mu.Unlock()

	c.metrics.ResampleErrors.Inc()
	if first {
		c.logger.Error(msg, append(attrs, "generation", gen, "error", err.Error())...)
	}
}

func (c *Controller) dispatch(j job) {
	if c.cfg.DecodeInline {
		c.decode(j)
		return
	}

	select {
	case c.queue <- j:
		c.metrics.QueueDepth.Set(float64(len(c.queue)))
	default:
		c.metrics.SegmentsDropped.WithLabelValues("queue_full").Inc()
		c.logger.Warn("decode queue full; dropping segment",
			"queue_size", c.cfg.QueueSize,
			"segment_samples", len(j.segment.Samples),
		)
	}
}

func (c *Controller) drainQueue() int {
	dropped := 0
	for {
		select {
		case <-c.queue:
			dropped++
		default:
			if dropped > 0 {
				c.metrics.SegmentsDropped.WithLabelValues("stopped").Add(float64(dropped))
			}
			c.metrics.QueueDepth.Set(0)
			return dropped
		}
	}
}

func (c *Controller) worker() {
	defer close(c.workerDone)
	for {
		select {
		case <-c.quit:
			return
		case j := <-c.queue:
			c.metrics.QueueDepth.Set(float64(len(c.queue)))
			c.decode(j)
		}
	}
}

func (c *Controller) current(gen uint64) bool {
	return !c.closed && gen == c.generation
}

func (c *Controller) decode(j job) {
	c.mu.Lock()
	if !c.current(j.generation) {
		c.mu.Unlock()
		c.metrics.SegmentsDropped.WithLabelValues("stale").Inc()
		return
	}
	decoder := c.decoder
	c.mu.Unlock()

	started := time.Now()
	text, err := decoder.Decode(j.segment.Samples, c.cfg.SampleRate)
	latency := time.Since(started)
	c.metrics.Decodes.Inc()
	c.metrics.DecodeLatency.Observe(latency.Seconds())
	if err != nil {
		c.metrics.DecodeErrors.Inc()
		c.logger.Error("decode failed", "error", err.Error(), "segment_samples", len(j.segment.Samples))
		return
	}

	text = transcript.Normalize(text, c.cfg.Normalize)
	if text == "" {
		return
	}

	t := Transcript{
		ID:            uuid.NewString(),
		Text:          text,
		Start:         samplesToDuration(j.segment.Start, c.cfg.SampleRate),
		Duration:      j.segment.Duration(c.cfg.SampleRate),
		DecodedAt:     time.Now(),
		DecodeLatency: latency,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.current(j.generation) {
		c.metrics.SegmentsDropped.WithLabelValues("stale").Inc()
		return
	}
	c.latest = text
	select {
	case c.transcripts <- t:
	default:
		c.metrics.SegmentsDropped.WithLabelValues("subscriber_slow").Inc()
		c.logger.Warn("transcript channel full; dropping transcript", "id", t.ID)
	}
	c.logger.Info("transcript published",
		"id", t.ID,
		"chars", len(text),
		"decode_ms", latency.Milliseconds(),
	)
}

func samplesToDuration(samples int64, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(rate)
}

func closeDecoder(decoder Decoder) {
	if closer, ok := decoder.(io.Closer); ok {
		_ = closer.Close()
	}
}
