package config

import "time"

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:        16000,
			ChunkSize:         512,
			MicDevice:         "",
			MicChannels:       1,
			LoopbackDevice:    "",
			LoopbackChannels:  2,
			LoopbackRate:      48000,
			HighpassCutoff:    85,
			PairTimeout:       20 * time.Millisecond,
			MasterTimeout:     time.Second,
			ChannelBufferSize: 30,
		},
		VAD: VADConfig{
			Threshold:        0.5,
			SilenceLimit:     500 * time.Millisecond,
			MaxSilenceFrames: 30,
		},
		Transcription: TranscriptionConfig{
			Provider: "openai",
			Model:    "whisper-1",
			Language: "",
		},
		Diarization: DiarizationConfig{
			Threshold:     0.3,
			InertiaWeight: 0.1,
		},
		Merge: MergeConfig{
			RetentionWindow: 8 * time.Second,
			SegmentTimeout:  3 * time.Second,
		},
		Store: StoreConfig{
			Enabled: true,
		},
		Feed: FeedConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:8573",
		},
		Providers: make(map[string]ProviderConfig),
	}
}
