package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Audio: AudioConfig{
			Input:       "default",
			Fallback:    "default",
			SampleRate:  48000,
			ChunkFrames: 4096,
		},
		Pipeline: PipelineConfig{
			SampleRate:    16000,
			BufferSeconds: 30,
			QueueSize:     8,
		},
		Resample: ResampleConfig{Method: "average"},
		VAD: VADConfig{
			Scorer:        "energy",
			WindowSize:    512,
			Threshold:     0.5,
			MinSpeechMS:   250,
			MinSilenceMS:  500,
			MaxSpeechMS:   20000,
			PaddingMS:     200,
			EnergyFloor:   0.01,
			EnergyCeiling: 0.05,
		},
		Models: ModelsConfig{NumThreads: 2},
		Transcript: TranscriptConfig{
			CapitalizeSentences: true,
		},
		Chat: ChatConfig{
			Room:           "default",
			Identity:       "parley",
			WriteTimeoutMS: 5000,
		},
		Log: LogConfig{Level: "info"},
	}
}
