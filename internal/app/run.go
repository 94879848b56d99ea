package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/parleyhq/parley/internal/asr"
	"github.com/parleyhq/parley/internal/audio"
	"github.com/parleyhq/parley/internal/chat"
	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/health"
	"github.com/parleyhq/parley/internal/ipc"
	"github.com/parleyhq/parley/internal/journal"
	"github.com/parleyhq/parley/internal/metrics"
	"github.com/parleyhq/parley/internal/models"
	"github.com/parleyhq/parley/internal/pipeline"
	"github.com/parleyhq/parley/internal/resample"
	"github.com/parleyhq/parley/internal/ringbuf"
	"github.com/parleyhq/parley/internal/session"
	"github.com/parleyhq/parley/internal/transcript"
	"github.com/parleyhq/parley/internal/vad"
	"github.com/parleyhq/parley/internal/vad/silero"
)

type ownerOptions struct {
	autoStart bool
	room      string
}

func newRunCommand(env *commandEnv) *cobra.Command {
	var opts ownerOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the owner session in the foreground",
		Long: `run loads the recognizer in the background, serves the control socket and
forwards every transcript to stdout, the chat room and the journal.
Capture starts on "parley toggle" or immediately with --start.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOwner(cmd, env, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.autoStart, "start", false, "open the microphone as soon as the recognizer is ready")
	cmd.Flags().StringVar(&opts.room, "room", "", "chat room to publish into (default: chat.room)")
	return cmd
}

// runOwner becomes the owner session and blocks until quit, a signal or init failure.
func runOwner(cmd *cobra.Command, env *commandEnv, opts ownerOptions) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cfg := env.config()
	logger := env.logger
	stdout := cmd.OutOrStdout()

	room := strings.TrimSpace(opts.room)
	if room == "" {
		room = cfg.Chat.Room
	}

	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return err
	}
	listener, err := ipc.Acquire(ctx, socketPath, ipc.AcquireOptions{ProbeTimeout: 180 * time.Millisecond, Retries: 8})
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			resp, _, forwardErr := tryForward(ctx, socketPath, ipc.CommandToggle)
			if forwardErr != nil {
				return forwardErr
			}
			printState(cmd, resp)
			return nil
		}
		return err
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	m := metrics.New()
	var background []func() error
	if addr := strings.TrimSpace(cfg.Metrics.Listen); addr != "" {
		metricsListener, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen metrics: %w", err)
		}
		defer func() { _ = metricsListener.Close() }()
		background = append(background, func() error { return m.Serve(ctx, metricsListener, logger) })
	}

	var set *models.Set
	if cfg.VAD.Scorer == "silero" {
		resolved, err := resolveModels(cfg)
		if err != nil {
			return err
		}
		set = &resolved
	}
	vadModel := ""
	if set != nil {
		vadModel = set.VAD
	}
	detector, closeScorer, err := buildDetector(cfg, vadModel)
	if err != nil {
		return err
	}
	defer func() { _ = closeScorer() }()

	controller := pipeline.New(pipeline.Config{
		SampleRate:   cfg.Pipeline.SampleRate,
		QueueSize:    cfg.Pipeline.QueueSize,
		DecodeInline: cfg.Pipeline.DecodeInline,
		Normalize:    transcript.Options{CapitalizeSentences: cfg.Transcript.CapitalizeSentences},
	}, pipeline.Deps{
		Source: audio.NewPulseSource(audio.PulseConfig{
			Policy:      audio.Policy{Input: cfg.Audio.Input, Fallback: cfg.Audio.Fallback},
			SampleRate:  cfg.Audio.SampleRate,
			ChunkFrames: cfg.Audio.ChunkFrames,
			Logger:      logger,
		}),
		Converters: func(inputRate int) (resample.Converter, error) {
			return resample.New(cfg.Resample.Method, inputRate, cfg.Pipeline.SampleRate)
		},
		Buffer:   ringbuf.New(cfg.Pipeline.BufferSeconds * cfg.Pipeline.SampleRate),
		Detector: detector,
		Logger:   logger,
		Metrics:  m,
	})

	if addr := strings.TrimSpace(cfg.Health.Listen); addr != "" {
		healthListener, err := net.Listen("tcp", addr)
		if err != nil {
			_ = controller.Close()
			return fmt.Errorf("listen health: %w", err)
		}
		defer func() { _ = healthListener.Close() }()
		hs := health.NewServer(logger)
		hs.Bind(controller.Readiness())
		background = append(background, func() error { return hs.Serve(ctx, healthListener) })
	}

	sinks := []session.Sink{session.WriterSink(stdout)}
	if cfg.Journal.Enable {
		dir, err := config.JournalDir(cfg)
		if err != nil {
			_ = controller.Close()
			return err
		}
		j, err := journal.Open(journal.Options{Dir: dir, Logger: logger})
		if err != nil {
			_ = controller.Close()
			return err
		}
		defer func() { _ = j.Close() }()
		sinks = append(sinks, session.JournalSink(j, room, cfg.Chat.Identity))
	}
	if cfg.Chat.Enable {
		sender, err := chat.NewWebSocketSender(chat.Config{
			URL:          cfg.Chat.URL,
			WriteTimeout: time.Duration(cfg.Chat.WriteTimeoutMS) * time.Millisecond,
			Logger:       logger,
		})
		if err != nil {
			_ = controller.Close()
			return err
		}
		defer func() { _ = sender.Close() }()
		sinks = append(sinks, session.ChatSink(sender, room, cfg.Chat.Identity))
	}

	sess := session.New(logger, controller, session.Options{
		AutoStart: opts.autoStart,
		Device:    cfg.Audio.Input,
	}, sinks...)

	loader := func(ctx context.Context) (pipeline.Decoder, error) {
		resolved := set
		if resolved == nil {
			s, err := resolveModels(cfg)
			if err != nil {
				return nil, err
			}
			resolved = &s
		}
		engine, err := asr.Load(ctx, *resolved, asr.LoadOptions{
			SampleRate: cfg.Pipeline.SampleRate,
			NumThreads: cfg.Models.NumThreads,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		sess.SetFamily(string(engine.Family()))
		return asr.NewRecognizer(engine), nil
	}

	// An owner that cannot load a recognizer would only ever answer "not ready".
	go func() {
		latch := controller.Readiness()
		select {
		case <-latch.Resolved():
			if latch.Err() != nil {
				cancel()
			}
		case <-ctx.Done():
		}
	}()

	for _, serve := range background {
		go func() {
			if err := serve(); err != nil {
				logger.Error("endpoint failed", "error", err.Error())
			}
		}()
	}

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, sess)
	}()

	logger.Info("owner session started", "socket", socketPath, "room", room, "auto_start", opts.autoStart)
	result := sess.Run(ctx, loader)
	serverCancel()
	serverErr := <-serverErrCh

	logSessionResult(logger, result)

	if result.InitErr != nil {
		return fmt.Errorf("initialize recognizer: %w", result.InitErr)
	}
	if serverErr != nil {
		return fmt.Errorf("ipc server failed: %w", serverErr)
	}
	return result.Err
}

func resolveModels(cfg config.Config) (models.Set, error) {
	dir, err := config.ModelsDir(cfg)
	if err != nil {
		return models.Set{}, err
	}
	return models.Resolve(dir)
}

// buildDetector assembles the VAD with the configured scorer. The returned
// close func releases native scorer state.
func buildDetector(cfg config.Config, vadModel string) (*vad.Detector, func() error, error) {
	vcfg := vad.Config{
		SampleRate: cfg.Pipeline.SampleRate,
		WindowSize: cfg.VAD.WindowSize,
		Threshold:  cfg.VAD.Threshold,
		MinSpeech:  time.Duration(cfg.VAD.MinSpeechMS) * time.Millisecond,
		MinSilence: time.Duration(cfg.VAD.MinSilenceMS) * time.Millisecond,
		MaxSpeech:  time.Duration(cfg.VAD.MaxSpeechMS) * time.Millisecond,
		Padding:    time.Duration(cfg.VAD.PaddingMS) * time.Millisecond,
	}

	switch cfg.VAD.Scorer {
	case "silero":
		if vadModel == "" {
			return nil, nil, fmt.Errorf("vad.scorer silero: %w: no silero_vad.onnx in the model bundle", models.ErrNoModelFound)
		}
		scorer, err := silero.New(vadModel, vcfg.SampleRate, vcfg.WindowSize, vcfg.Threshold)
		if err != nil {
			return nil, nil, err
		}
		return vad.New(vcfg, scorer), scorer.Close, nil
	default:
		scorer := vad.NewEnergyScorer(cfg.VAD.EnergyFloor, cfg.VAD.EnergyCeiling)
		return vad.New(vcfg, scorer), func() error { return nil }, nil
	}
}

func logSessionResult(logger *slog.Logger, result session.Result) {
	if logger == nil {
		return
	}
	fields := []any{
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		"published", result.Published,
		"sink_errors", result.SinkErrors,
	}

	err := result.InitErr
	if err == nil {
		err = result.Err
	}
	if err != nil {
		logger.Error("session failed", append(fields, "error", err.Error())...)
		return
	}
	logger.Info("session complete", fields...)
}
