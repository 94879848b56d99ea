package config

import (
	"fmt"
	"net"
	"strings"
)

var (
	resampleMethods = []string{"average", "sinc"}
	vadScorers      = []string{"energy", "silero"}
	logLevels       = []string{"debug", "info", "warn", "error"}
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if cfg.Audio.SampleRate <= 0 {
		return nil, fmt.Errorf("audio.sample_rate must be > 0")
	}
	if cfg.Audio.ChunkFrames <= 0 {
		return nil, fmt.Errorf("audio.chunk_frames must be > 0")
	}
	if cfg.Pipeline.SampleRate <= 0 {
		return nil, fmt.Errorf("pipeline.sample_rate must be > 0")
	}
	if cfg.Pipeline.BufferSeconds <= 0 {
		return nil, fmt.Errorf("pipeline.buffer_seconds must be > 0")
	}
	if cfg.Pipeline.QueueSize <= 0 {
		return nil, fmt.Errorf("pipeline.queue_size must be > 0")
	}
	if !oneOf(cfg.Resample.Method, resampleMethods) {
		return nil, fmt.Errorf("resample.method must be one of: %s", strings.Join(resampleMethods, ", "))
	}

	if !oneOf(cfg.VAD.Scorer, vadScorers) {
		return nil, fmt.Errorf("vad.scorer must be one of: %s", strings.Join(vadScorers, ", "))
	}
	if cfg.VAD.WindowSize <= 0 {
		return nil, fmt.Errorf("vad.window_size must be > 0")
	}
	if cfg.VAD.Threshold <= 0 || cfg.VAD.Threshold >= 1 {
		return nil, fmt.Errorf("vad.threshold must be in (0, 1)")
	}
	if cfg.VAD.MinSpeechMS < 0 || cfg.VAD.MinSilenceMS < 0 || cfg.VAD.PaddingMS < 0 {
		return nil, fmt.Errorf("vad durations must be >= 0")
	}
	if cfg.VAD.MaxSpeechMS <= cfg.VAD.MinSpeechMS {
		return nil, fmt.Errorf("vad.max_speech_ms must be > vad.min_speech_ms")
	}
	if cfg.VAD.Scorer == "energy" && cfg.VAD.EnergyCeiling <= cfg.VAD.EnergyFloor {
		return nil, fmt.Errorf("vad.energy_ceiling must be > vad.energy_floor")
	}
	bufferSamples := cfg.Pipeline.BufferSeconds * cfg.Pipeline.SampleRate
	if bufferSamples < cfg.VAD.WindowSize {
		return nil, fmt.Errorf("pipeline.buffer_seconds holds %d samples, fewer than vad.window_size=%d", bufferSamples, cfg.VAD.WindowSize)
	}

	if cfg.Models.NumThreads <= 0 {
		return nil, fmt.Errorf("models.num_threads must be > 0")
	}

	if cfg.Chat.Enable {
		url := strings.TrimSpace(cfg.Chat.URL)
		if url == "" {
			return nil, fmt.Errorf("chat.url must not be empty when chat.enable=true")
		}
		if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
			return nil, fmt.Errorf("chat.url must use ws:// or wss://")
		}
		if strings.TrimSpace(cfg.Chat.Room) == "" {
			return nil, fmt.Errorf("chat.room must not be empty when chat.enable=true")
		}
		if strings.TrimSpace(cfg.Chat.Identity) == "" {
			warnings = append(warnings, Warning{Message: "chat.identity is empty; messages will have no sender"})
		}
	}
	if cfg.Chat.WriteTimeoutMS < 0 {
		return nil, fmt.Errorf("chat.write_timeout_ms must be >= 0")
	}

	for name, addr := range map[string]string{"metrics.listen": cfg.Metrics.Listen, "health.listen": cfg.Health.Listen} {
		if strings.TrimSpace(addr) == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return nil, fmt.Errorf("%s %q is not host:port: %v", name, addr, err)
		}
	}

	if !oneOf(cfg.Log.Level, logLevels) {
		return nil, fmt.Errorf("log.level must be one of: %s", strings.Join(logLevels, ", "))
	}

	if cfg.Pipeline.DecodeInline {
		warnings = append(warnings, Warning{Message: "pipeline.decode_inline=true decodes inside the capture callback and may stall audio"})
	}
	if cfg.VAD.Scorer == "silero" {
		warnings = append(warnings, Warning{Message: "vad.scorer=silero requires a build with -tags sherpa and a silero_vad.onnx model"})
	}

	return warnings, nil
}

func oneOf(value string, allowed []string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range allowed {
		if value == candidate {
			return true
		}
	}
	return false
}
