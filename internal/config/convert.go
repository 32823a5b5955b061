package config

import (
	"github.com/gmarchesi/verbatim/internal/capture"
	"github.com/gmarchesi/verbatim/internal/diarizer"
	"github.com/gmarchesi/verbatim/internal/merge"
	"github.com/gmarchesi/verbatim/internal/transcriber"
	"github.com/gmarchesi/verbatim/internal/vad"
)

func (c *Config) ToMicCaptureConfig() capture.Config {
	return capture.Config{
		Name:              "mic",
		Device:            c.Audio.MicDevice,
		Channels:          c.Audio.MicChannels,
		SampleRate:        c.Audio.SampleRate,
		ChunkSize:         c.Audio.ChunkSize,
		HighPassCutoff:    c.Audio.HighpassCutoff,
		ChannelBufferSize: c.Audio.ChannelBufferSize,
	}
}

// ToLoopbackCaptureConfig returns the loopback source config, or false
// when no loopback device is configured.
func (c *Config) ToLoopbackCaptureConfig() (capture.Config, bool) {
	if c.Audio.LoopbackDevice == "" {
		return capture.Config{}, false
	}
	return capture.Config{
		Name:              "loopback",
		Device:            c.Audio.LoopbackDevice,
		Channels:          c.Audio.LoopbackChannels,
		SampleRate:        c.Audio.SampleRate,
		CaptureRate:       c.Audio.LoopbackRate,
		ChunkSize:         c.Audio.ChunkSize,
		HighPassCutoff:    c.Audio.HighpassCutoff,
		ChannelBufferSize: c.Audio.ChannelBufferSize,
	}, true
}

func (c *Config) ToVADConfig() vad.Config {
	return vad.Config{
		SampleRate:       c.Audio.SampleRate,
		ChunkSize:        c.Audio.ChunkSize,
		Threshold:        c.VAD.Threshold,
		SilenceLimit:     c.VAD.SilenceLimit,
		MaxSilenceFrames: c.VAD.MaxSilenceFrames,
		MasterTimeout:    c.Audio.MasterTimeout,
		PairTimeout:      c.Audio.PairTimeout,
	}
}

func (c *Config) ToTranscriberConfig() transcriber.Config {
	return transcriber.Config{
		Provider: c.Transcription.Provider,
		APIKey:   c.ResolveAPIKeyForProvider(c.Transcription.Provider),
		Model:    c.Transcription.Model,
		Language: c.Transcription.Language,
		Endpoint: c.Transcription.Endpoint,
	}
}

func (c *Config) ToDiarizerConfig() diarizer.Config {
	return diarizer.Config{
		Threshold:     c.Diarization.Threshold,
		InertiaWeight: c.Diarization.InertiaWeight,
	}
}

func (c *Config) ToMergeConfig() merge.Config {
	return merge.Config{
		RetentionWindow: c.Merge.RetentionWindow,
		SegmentTimeout:  c.Merge.SegmentTimeout,
	}
}
