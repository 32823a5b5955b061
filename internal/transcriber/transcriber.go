// Package transcriber converts AudioChunks to text through a pluggable
// batch adapter.
package transcriber

import (
	"context"
	"fmt"
	"os"
)

// BatchAdapter is the model boundary: WAV bytes in, text out, synchronous
// from the worker's perspective.
type BatchAdapter interface {
	Transcribe(ctx context.Context, wavData []byte) (string, error)
}

type Config struct {
	Provider string // "openai" or "whisper-server"
	APIKey   string
	Model    string
	Language string
	Endpoint string // whisper-server URL

	OutBufferSize int
}

// NewAdapter builds the adapter for the configured provider.
func NewAdapter(config Config) (BatchAdapter, error) {
	switch config.Provider {
	case "openai":
		apiKey := config.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		config.APIKey = apiKey
		return NewOpenAIAdapter(config), nil

	case "whisper-server":
		if config.Endpoint == "" {
			return nil, fmt.Errorf("whisper-server endpoint required")
		}
		return NewWhisperServerAdapter(config), nil

	default:
		return nil, fmt.Errorf("unsupported provider: %s", config.Provider)
	}
}
