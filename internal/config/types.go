// Package config resolves, parses, validates, and defaults parley configuration.
package config

// Config is the fully materialized runtime configuration used by parley.
type Config struct {
	Audio      AudioConfig      `yaml:"audio"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Resample   ResampleConfig   `yaml:"resample"`
	VAD        VADConfig        `yaml:"vad"`
	Models     ModelsConfig     `yaml:"models"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Chat       ChatConfig       `yaml:"chat"`
	Journal    JournalConfig    `yaml:"journal"`
	Metrics    ListenConfig     `yaml:"metrics"`
	Health     ListenConfig     `yaml:"health"`
	Log        LogConfig        `yaml:"log"`
}

// AudioConfig controls input-source selection and capture framing.
type AudioConfig struct {
	Input       string `yaml:"input"`
	Fallback    string `yaml:"fallback"`
	SampleRate  int    `yaml:"sample_rate"`
	ChunkFrames int    `yaml:"chunk_frames"`
}

// PipelineConfig controls buffering and decode scheduling.
type PipelineConfig struct {
	SampleRate    int  `yaml:"sample_rate"`
	BufferSeconds int  `yaml:"buffer_seconds"`
	QueueSize     int  `yaml:"queue_size"`
	DecodeInline  bool `yaml:"decode_inline"`
}

// ResampleConfig selects the capture-to-model rate converter.
type ResampleConfig struct {
	Method string `yaml:"method"`
}

// VADConfig controls speech segmentation.
type VADConfig struct {
	Scorer        string  `yaml:"scorer"`
	WindowSize    int     `yaml:"window_size"`
	Threshold     float64 `yaml:"threshold"`
	MinSpeechMS   int     `yaml:"min_speech_ms"`
	MinSilenceMS  int     `yaml:"min_silence_ms"`
	MaxSpeechMS   int     `yaml:"max_speech_ms"`
	PaddingMS     int     `yaml:"padding_ms"`
	EnergyFloor   float64 `yaml:"energy_floor"`
	EnergyCeiling float64 `yaml:"energy_ceiling"`
}

// ModelsConfig locates the recognizer bundle.
type ModelsConfig struct {
	Dir        string `yaml:"dir"`
	NumThreads int    `yaml:"num_threads"`
}

// TranscriptConfig controls text normalization before publication.
type TranscriptConfig struct {
	CapitalizeSentences bool `yaml:"capitalize_sentences"`
}

// ChatConfig controls transcript forwarding into the conference chat.
type ChatConfig struct {
	Enable         bool   `yaml:"enable"`
	URL            string `yaml:"url"`
	Room           string `yaml:"room"`
	Identity       string `yaml:"identity"`
	WriteTimeoutMS int    `yaml:"write_timeout_ms"`
}

// JournalConfig controls local transcript persistence.
type JournalConfig struct {
	Enable bool   `yaml:"enable"`
	Dir    string `yaml:"dir"`
}

// ListenConfig is an optional listen address; empty disables the endpoint.
type ListenConfig struct {
	Listen string `yaml:"listen"`
}

// LogConfig controls the runtime log. An empty File uses the XDG state dir.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
