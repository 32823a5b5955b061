package config

import "fmt"

func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("invalid audio.sample_rate: %d", c.Audio.SampleRate)
	}
	if c.Audio.ChunkSize <= 0 {
		return fmt.Errorf("invalid audio.chunk_size: %d", c.Audio.ChunkSize)
	}
	if c.Audio.MicChannels <= 0 {
		return fmt.Errorf("invalid audio.mic_channels: %d", c.Audio.MicChannels)
	}
	if c.Audio.LoopbackDevice != "" {
		if c.Audio.LoopbackChannels <= 0 {
			return fmt.Errorf("invalid audio.loopback_channels: %d", c.Audio.LoopbackChannels)
		}
		if c.Audio.LoopbackRate <= 0 {
			return fmt.Errorf("invalid audio.loopback_rate: %d", c.Audio.LoopbackRate)
		}
	}
	if c.Audio.HighpassCutoff < 0 {
		return fmt.Errorf("invalid audio.highpass_cutoff: %v", c.Audio.HighpassCutoff)
	}
	if c.Audio.PairTimeout <= 0 {
		return fmt.Errorf("invalid audio.pair_timeout: %v", c.Audio.PairTimeout)
	}
	if c.Audio.MasterTimeout <= 0 {
		return fmt.Errorf("invalid audio.master_timeout: %v", c.Audio.MasterTimeout)
	}
	if c.Audio.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid audio.channel_buffer_size: %d", c.Audio.ChannelBufferSize)
	}

	if c.VAD.Threshold <= 0 || c.VAD.Threshold >= 1 {
		return fmt.Errorf("invalid vad.threshold: %v (must be in (0, 1))", c.VAD.Threshold)
	}
	if c.VAD.SilenceLimit <= 0 {
		return fmt.Errorf("invalid vad.silence_limit: %v", c.VAD.SilenceLimit)
	}
	if c.VAD.MaxSilenceFrames <= 0 {
		return fmt.Errorf("invalid vad.max_silence_frames: %d", c.VAD.MaxSilenceFrames)
	}

	switch c.Transcription.Provider {
	case "openai":
		if c.ResolveAPIKeyForProvider("openai") == "" {
			return fmt.Errorf("OpenAI API key required: not found in config (providers.openai.api_key) or environment variable (OPENAI_API_KEY)")
		}
	case "whisper-server":
		if c.Transcription.Endpoint == "" {
			return fmt.Errorf("transcription.endpoint required for whisper-server provider")
		}
	default:
		return fmt.Errorf("unsupported transcription.provider: %s (must be openai or whisper-server)", c.Transcription.Provider)
	}
	if c.Transcription.Model == "" && c.Transcription.Provider == "openai" {
		return fmt.Errorf("invalid transcription.model: empty")
	}

	if c.Diarization.Threshold <= -1 || c.Diarization.Threshold >= 1 {
		return fmt.Errorf("invalid diarization.threshold: %v (cosine similarity, must be in (-1, 1))", c.Diarization.Threshold)
	}
	if c.Diarization.InertiaWeight < 0 {
		return fmt.Errorf("invalid diarization.inertia_weight: %v", c.Diarization.InertiaWeight)
	}

	if c.Merge.RetentionWindow <= 0 {
		return fmt.Errorf("invalid merge.retention_window: %v", c.Merge.RetentionWindow)
	}
	if c.Merge.SegmentTimeout <= 0 {
		return fmt.Errorf("invalid merge.segment_timeout: %v", c.Merge.SegmentTimeout)
	}

	if c.Feed.Enabled && c.Feed.ListenAddr == "" {
		return fmt.Errorf("invalid feed.listen_addr: empty")
	}

	return nil
}
