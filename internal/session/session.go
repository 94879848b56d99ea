// Package session owns one conferencing session: it drives the capture
// pipeline, forwards transcripts to sinks and answers IPC commands.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/parleyhq/parley/internal/fsm"
	"github.com/parleyhq/parley/internal/ipc"
	"github.com/parleyhq/parley/internal/pipeline"
	"github.com/parleyhq/parley/internal/ready"
)

// Pipeline is the controller surface a session drives.
type Pipeline interface {
	Init(context.Context, pipeline.Loader)
	Readiness() *ready.Latch
	InitErr() error
	State() fsm.State
	Capturing() bool
	LatestText() string
	Transcripts() <-chan pipeline.Transcript
	Start(context.Context) error
	Stop() error
	Toggle(context.Context) error
	Close() error
}

// Options tunes one session run.
type Options struct {
	// AutoStart opens the microphone as soon as the engine is ready.
	AutoStart bool
	// Device is reported by status; it is the configured input selector.
	Device string
	// SinkTimeout bounds each sink publish.
	SinkTimeout time.Duration
}

// Result summarizes one Run.
type Result struct {
	Published  int
	SinkErrors int
	InitErr    error
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Session coordinates pipeline lifecycle, transcript fan-out and IPC.
type Session struct {
	logger   *slog.Logger
	pipeline Pipeline
	sinks    []Sink
	opts     Options

	mu     sync.Mutex
	family string

	quit     chan struct{}
	quitOnce sync.Once
}

// New constructs a session around p.
func New(logger *slog.Logger, p Pipeline, opts Options, sinks ...Sink) *Session {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.SinkTimeout <= 0 {
		opts.SinkTimeout = 5 * time.Second
	}
	return &Session{
		logger:   logger,
		pipeline: p,
		sinks:    sinks,
		opts:     opts,
		quit:     make(chan struct{}),
	}
}

// SetFamily records the loaded recognizer family for status replies.
func (s *Session) SetFamily(family string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.family = family
}

func (s *Session) familyName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.family
}

// Run initializes the pipeline and forwards transcripts until ctx ends or a
// quit command arrives. The pipeline is always closed before Run returns.
func (s *Session) Run(ctx context.Context, loader pipeline.Loader) Result {
	result := Result{StartedAt: time.Now()}

	s.pipeline.Init(ctx, loader)
	if s.opts.AutoStart {
		s.pipeline.Readiness().Subscribe(func() {
			go func() {
				if err := s.pipeline.Start(ctx); err != nil {
					s.logger.Error("auto start failed", "error", err.Error())
				}
			}()
		})
	}

	transcripts := s.pipeline.Transcripts()
	readyDone := s.pipeline.Readiness().Resolved()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-s.quit:
			break loop
		case <-readyDone:
			readyDone = nil
			if err := s.pipeline.Readiness().Err(); err != nil {
				result.InitErr = err
				s.logger.Error("session init failed", "error", err.Error())
			}
		case tr, ok := <-transcripts:
			if !ok {
				break loop
			}
			s.publish(ctx, tr, &result)
		}
	}

	if err := s.pipeline.Close(); err != nil {
		result.Err = fmt.Errorf("close pipeline: %w", err)
	}
	for tr := range transcripts {
		s.publish(context.WithoutCancel(ctx), tr, &result)
	}
	if result.InitErr == nil {
		result.InitErr = s.pipeline.InitErr()
	}

	result.FinishedAt = time.Now()
	return result
}

func (s *Session) publish(ctx context.Context, tr pipeline.Transcript, result *Result) {
	result.Published++
	s.logger.Info("transcript published",
		"id", tr.ID,
		"chars", len(tr.Text),
		"start_ms", tr.Start.Milliseconds(),
		"duration_ms", tr.Duration.Milliseconds(),
		"decode_ms", tr.DecodeLatency.Milliseconds(),
	)

	for _, sink := range s.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, s.opts.SinkTimeout)
		err := sink.Publish(sinkCtx, tr)
		cancel()
		if err != nil {
			result.SinkErrors++
			s.logger.Error("sink publish failed", "sink", sink.Name(), "id", tr.ID, "error", err.Error())
		}
	}
}

// Handle serves IPC commands for the owner session.
func (s *Session) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		return s.status("status")
	case ipc.CommandText:
		resp := s.status("")
		resp.Text = s.pipeline.LatestText()
		return resp
	case ipc.CommandToggle:
		return s.lifecycle(func() error { return s.pipeline.Toggle(ctx) }, "toggled")
	case ipc.CommandStart:
		return s.lifecycle(func() error { return s.pipeline.Start(ctx) }, "capturing")
	case ipc.CommandStop:
		return s.lifecycle(s.pipeline.Stop, "stopped")
	case ipc.CommandQuit:
		s.quitOnce.Do(func() { close(s.quit) })
		return s.status("quitting")
	default:
		resp := s.status("")
		resp.OK = false
		resp.Error = fmt.Sprintf("unknown command: %s", req.Command)
		return resp
	}
}

func (s *Session) lifecycle(op func() error, message string) ipc.Response {
	if err := op(); err != nil {
		resp := s.status("")
		resp.OK = false
		resp.Error = describe(err, s.pipeline.InitErr())
		return resp
	}
	return s.status(message)
}

func (s *Session) status(message string) ipc.Response {
	return ipc.Response{
		OK:        true,
		State:     string(s.pipeline.State()),
		Capturing: s.pipeline.Capturing(),
		Family:    s.familyName(),
		Device:    s.opts.Device,
		Message:   message,
	}
}

// describe prefers the init failure over the generic not-ready error.
func describe(err, initErr error) string {
	if errors.Is(err, pipeline.ErrEngineNotReady) && initErr != nil {
		return fmt.Sprintf("%v: %v", err, initErr)
	}
	return err.Error()
}
