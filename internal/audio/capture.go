package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const bytesPerSample = 4 // float32 mono

// streamPollInterval is how often a running capture checks whether Pulse
// dropped the record stream.
const streamPollInterval = 250 * time.Millisecond

// ErrStreamEnded is passed to EndFunc when capture stops without Close.
var ErrStreamEnded = errors.New("audio stream ended")

// ChunkFunc receives one fixed-size chunk at the capture rate. It runs on the
// Pulse reader goroutine and must not retain chunk past its return.
type ChunkFunc func(chunk []float32, sampleRate int)

// EndFunc is called at most once, from a goroutine of its own, when a
// stream ends without Close: its ctx was cancelled or the server went away.
// err wraps ErrStreamEnded.
type EndFunc func(err error)

// Stream is a running capture. Close stops delivery and waits for any
// callback still in flight.
type Stream interface {
	Close() error
}

// Source acquires the microphone.
type Source interface {
	Open(ctx context.Context, onChunk ChunkFunc, onEnd EndFunc) (Stream, error)
}

// PulseConfig configures a PulseSource.
type PulseConfig struct {
	Policy      Policy
	SampleRate  int
	ChunkFrames int
	Logger      *slog.Logger
}

// PulseSource captures mono float32 audio from a Pulse input source.
type PulseSource struct {
	cfg PulseConfig
}

// NewPulseSource applies defaults to cfg.
func NewPulseSource(cfg PulseConfig) *PulseSource {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.ChunkFrames <= 0 {
		cfg.ChunkFrames = 4096
	}
	return &PulseSource{cfg: cfg}
}

// Open selects a device and starts one record stream delivering chunks to onChunk.
func (s *PulseSource) Open(ctx context.Context, onChunk ChunkFunc, onEnd EndFunc) (Stream, error) {
	selection, err := SelectDevice(ctx, s.cfg.Policy)
	if err != nil {
		return nil, err
	}
	if selection.Warning != "" && s.cfg.Logger != nil {
		s.cfg.Logger.Warn("audio device fallback", "warning", selection.Warning, "device", selection.Device.ID)
	}

	client, err := newClient()
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(selection.Device.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: resolve source %q: %v", ErrPermissionDenied, selection.Device.ID, err)
	}

	capture := newCapture(selection.Device, s.cfg.SampleRate, s.cfg.ChunkFrames, onChunk)
	capture.onEnd = onEnd
	capture.client = client

	writer := pulse.NewWriter(writerFunc(capture.onPCM), pulseproto.FormatFloat32LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(s.cfg.SampleRate),
		pulse.RecordBufferFragmentSize(uint32(s.cfg.ChunkFrames*bytesPerSample)),
		pulse.RecordMediaName("parley capture"),
	)
	if err != nil {
		_ = capture.Close()
		return nil, fmt.Errorf("%w: create pulse record stream: %v", ErrPermissionDenied, err)
	}

	capture.stream = stream
	stream.Start()

	if s.cfg.Logger != nil {
		s.cfg.Logger.Info("audio capture started",
			"device", selection.Device.ID,
			"sample_rate", s.cfg.SampleRate,
			"chunk_frames", s.cfg.ChunkFrames,
		)
	}

	go capture.watch(ctx, streamPollInterval, func() error {
		if !stream.Closed() {
			return nil
		}
		if err := stream.Error(); err != nil {
			return fmt.Errorf("pulse record stream closed: %w", err)
		}
		return errors.New("pulse record stream closed by server")
	})

	return capture, nil
}

// Capture chunks a Pulse record stream into fixed-size float32 slices.
type Capture struct {
	device      Device
	sampleRate  int
	chunkFrames int
	onChunk     ChunkFunc
	onEnd       EndFunc

	client *pulse.Client
	stream *pulse.RecordStream

	stopCh chan struct{}

	mu      sync.Mutex
	pending []byte
	stopped bool

	inflight sync.WaitGroup
	frames   atomic.Int64
}

func newCapture(device Device, sampleRate, chunkFrames int, onChunk ChunkFunc) *Capture {
	return &Capture{
		device:      device,
		sampleRate:  sampleRate,
		chunkFrames: chunkFrames,
		onChunk:     onChunk,
		stopCh:      make(chan struct{}),
	}
}

// Device returns the selected source.
func (c *Capture) Device() Device {
	return c.device
}

// FramesCaptured reports the number of samples delivered to the callback.
func (c *Capture) FramesCaptured() int64 {
	return c.frames.Load()
}

// Close stops the stream, drops any partial chunk and waits for callbacks.
func (c *Capture) Close() error {
	c.shutdown()
	return nil
}

// watch ends the capture when ctx is done or lost reports an error.
// lost is polled every interval under the capture mutex and never after Close.
func (c *Capture) watch(ctx context.Context, interval time.Duration, lost func() error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		var cause error
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			cause = ctx.Err()
		case <-ticker.C:
			c.mu.Lock()
			if !c.stopped {
				cause = lost()
			}
			c.mu.Unlock()
			if cause == nil {
				continue
			}
		}

		if c.shutdown() && c.onEnd != nil {
			c.onEnd(fmt.Errorf("%w: %w", ErrStreamEnded, cause))
		}
		return
	}
}

// shutdown releases the stream once and reports whether this call did it.
func (c *Capture) shutdown() bool {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return false
	}
	c.stopped = true
	close(c.stopCh)
	c.pending = nil
	c.mu.Unlock()

	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	if c.client != nil {
		c.client.Close()
	}

	c.inflight.Wait()
	return true
}

// onPCM receives raw float32 LE frames from Pulse.
func (c *Capture) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, io.EOF
	}
	// Add under the same mutex as stopped so Close cannot Wait first.
	c.inflight.Add(1)
	defer c.inflight.Done()

	c.pending = append(c.pending, buffer...)
	chunkBytes := c.chunkFrames * bytesPerSample
	var chunks [][]float32
	for len(c.pending) >= chunkBytes {
		chunks = append(chunks, decodeFloat32LE(c.pending[:chunkBytes]))
		c.pending = c.pending[chunkBytes:]
	}
	c.mu.Unlock()

	for _, chunk := range chunks {
		select {
		case <-c.stopCh:
			return 0, io.EOF
		default:
		}
		c.frames.Add(int64(len(chunk)))
		if c.onChunk != nil {
			c.onChunk(chunk, c.sampleRate)
		}
	}
	return len(buffer), nil
}

func decodeFloat32LE(b []byte) []float32 {
	out := make([]float32, len(b)/bytesPerSample)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*bytesPerSample:]))
	}
	return out
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
