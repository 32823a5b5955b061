package config

import "time"

type Config struct {
	Audio         AudioConfig               `toml:"audio"`
	VAD           VADConfig                 `toml:"vad"`
	Transcription TranscriptionConfig       `toml:"transcription"`
	Diarization   DiarizationConfig         `toml:"diarization"`
	Merge         MergeConfig               `toml:"merge"`
	Store         StoreConfig               `toml:"store"`
	Feed          FeedConfig                `toml:"feed"`
	Providers     map[string]ProviderConfig `toml:"providers"`
}

// ProviderConfig holds the API key for a hosted model provider.
type ProviderConfig struct {
	APIKey string `toml:"api_key"`
}

type AudioConfig struct {
	SampleRate int `toml:"sample_rate"`
	ChunkSize  int `toml:"chunk_size"`

	MicDevice   string `toml:"mic_device"`
	MicChannels int    `toml:"mic_channels"`

	// LoopbackDevice is the PipeWire monitor target for system audio.
	// Empty disables loopback capture; the mixer substitutes silence.
	LoopbackDevice   string `toml:"loopback_device"`
	LoopbackChannels int    `toml:"loopback_channels"`

	// LoopbackRate is the loopback device's native rate; frames are
	// resampled from it down to sample_rate.
	LoopbackRate int `toml:"loopback_rate"`

	HighpassCutoff    float64       `toml:"highpass_cutoff"`
	PairTimeout       time.Duration `toml:"pair_timeout"`
	MasterTimeout     time.Duration `toml:"master_timeout"`
	ChannelBufferSize int           `toml:"channel_buffer_size"`
}

type VADConfig struct {
	Threshold        float64       `toml:"threshold"`
	SilenceLimit     time.Duration `toml:"silence_limit"`
	MaxSilenceFrames int           `toml:"max_silence_frames"`
}

type TranscriptionConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	Language string `toml:"language"`
	Endpoint string `toml:"endpoint"` // whisper-server only
}

type DiarizationConfig struct {
	Threshold     float64 `toml:"threshold"`
	InertiaWeight float64 `toml:"inertia_weight"`
	EmbeddingURL  string  `toml:"embedding_url"`
}

type MergeConfig struct {
	RetentionWindow time.Duration `toml:"retention_window"`
	SegmentTimeout  time.Duration `toml:"segment_timeout"`
}

type StoreConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"` // empty uses the default data dir
}

type FeedConfig struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr"`
}
