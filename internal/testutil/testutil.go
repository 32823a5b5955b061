package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gmarchesi/verbatim/internal/capture"
	"github.com/gmarchesi/verbatim/internal/config"
)

// TestConfig returns a valid configuration for testing
func TestConfig() *config.Config {
	return &config.Config{
		Audio: config.AudioConfig{
			SampleRate:        16000,
			ChunkSize:         512,
			MicDevice:         "",
			MicChannels:       1,
			LoopbackChannels:  2,
			LoopbackRate:      48000,
			HighpassCutoff:    85,
			PairTimeout:       20 * time.Millisecond,
			MasterTimeout:     time.Second,
			ChannelBufferSize: 16,
		},
		VAD: config.VADConfig{
			Threshold:        0.5,
			SilenceLimit:     500 * time.Millisecond,
			MaxSilenceFrames: 30,
		},
		Transcription: config.TranscriptionConfig{
			Provider: "openai",
			Model:    "whisper-1",
		},
		Diarization: config.DiarizationConfig{
			Threshold:     0.3,
			InertiaWeight: 0.1,
			EmbeddingURL:  "http://localhost:9999/embed",
		},
		Merge: config.MergeConfig{
			RetentionWindow: 8 * time.Second,
			SegmentTimeout:  3 * time.Second,
		},
		Providers: map[string]config.ProviderConfig{
			"openai": {APIKey: "test-api-key"},
		},
	}
}

// TestConfigWithInvalidValues returns a config with invalid values for testing validation
func TestConfigWithInvalidValues() *config.Config {
	return &config.Config{
		Audio: config.AudioConfig{
			SampleRate:        0,  // Invalid
			ChunkSize:         0,  // Invalid
			MicChannels:       0,  // Invalid
			ChannelBufferSize: 0,  // Invalid
		},
		VAD: config.VADConfig{
			Threshold:    2, // Invalid
			SilenceLimit: 0, // Invalid
		},
		Transcription: config.TranscriptionConfig{
			Provider: "", // Invalid
			Model:    "", // Invalid
		},
		Diarization: config.DiarizationConfig{
			Threshold: 1.5, // Invalid
		},
		Merge: config.MergeConfig{
			RetentionWindow: 0, // Invalid
			SegmentTimeout:  0, // Invalid
		},
	}
}

// CreateTempConfigFile creates a temporary config file for testing
func CreateTempConfigFile(t *testing.T, configContent string) string {
	t.Helper()

	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.toml")

	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("Failed to create temp config file: %v", err)
	}

	return configPath
}

// SpeechFrame returns a frame of loud audio that an energy classifier
// will score as speech.
func SpeechFrame(size int, ts time.Time) capture.Frame {
	samples := make([]float32, size)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = 0.5
		} else {
			samples[i] = -0.5
		}
	}
	return capture.Frame{Samples: samples, Timestamp: ts}
}

// SilenceFrame returns a frame of zeros.
func SilenceFrame(size int, ts time.Time) capture.Frame {
	return capture.Frame{Samples: make([]float32, size), Timestamp: ts}
}

// MockBatchAdapter implements transcriber.BatchAdapter for testing
type MockBatchAdapter struct {
	TranscribeFunc func(ctx context.Context, wavData []byte) (string, error)

	mu    sync.Mutex
	Calls int
}

func (m *MockBatchAdapter) Transcribe(ctx context.Context, wavData []byte) (string, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()

	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, wavData)
	}
	return "mock transcription", nil
}

// CallCount reports how many chunks have been transcribed so far.
func (m *MockBatchAdapter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

// NewMockBatchAdapter creates a mock transcription adapter
func NewMockBatchAdapter() *MockBatchAdapter {
	return &MockBatchAdapter{}
}

// EmbedFunc adapts a function to the diarizer's Embedder interface.
type EmbedFunc func(ctx context.Context, samples []float32, sampleRate int) ([]float64, error)

func (f EmbedFunc) Embed(ctx context.Context, samples []float32, sampleRate int) ([]float64, error) {
	return f(ctx, samples, sampleRate)
}

// ConstantEmbedder returns an embedder that yields the same vector for
// every chunk.
func ConstantEmbedder(vec []float64) EmbedFunc {
	return func(ctx context.Context, samples []float32, sampleRate int) ([]float64, error) {
		out := make([]float64, len(vec))
		copy(out, vec)
		return out, nil
	}
}

// TestContext returns a context with timeout for testing
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// WaitForCondition waits for a condition to be true or times out
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("Condition not met within %v", timeout)
		default:
			if condition() {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// MockFrameSource feeds scripted frames through the capture interface
type MockFrameSource struct {
	Frames     []capture.Frame
	StartError error

	mu        sync.Mutex
	capturing atomic.Bool
	stopCh    chan struct{}
}

func NewMockFrameSource(frames []capture.Frame) *MockFrameSource {
	return &MockFrameSource{Frames: frames}
}

func (m *MockFrameSource) Start(ctx context.Context) (<-chan capture.Frame, <-chan error, error) {
	if m.StartError != nil {
		return nil, nil, m.StartError
	}

	m.mu.Lock()
	m.stopCh = make(chan struct{})
	m.mu.Unlock()

	m.capturing.Store(true)

	frameCh := make(chan capture.Frame, len(m.Frames)+1)
	errCh := make(chan error, 1)

	go func() {
		defer close(frameCh)
		defer close(errCh)

		for _, frame := range m.Frames {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case frameCh <- frame:
			}
		}

		// keep channel open until stopped
		select {
		case <-ctx.Done():
		case <-m.stopCh:
		}
	}()

	return frameCh, errCh, nil
}

func (m *MockFrameSource) Stop() {
	if !m.capturing.Load() {
		return
	}
	m.capturing.Store(false)

	m.mu.Lock()
	if m.stopCh != nil {
		close(m.stopCh)
		m.stopCh = nil
	}
	m.mu.Unlock()
}

func (m *MockFrameSource) IsCapturing() bool {
	return m.capturing.Load()
}
