package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gmarchesi/verbatim/internal/capture"
	"github.com/gmarchesi/verbatim/internal/events"
	"github.com/gmarchesi/verbatim/internal/testutil"
	"github.com/gmarchesi/verbatim/internal/vad"
)

func scriptedClassifier() vad.Classifier {
	return vad.ScoreFunc(func(frame []float32) float64 {
		if len(frame) > 0 && frame[0] != 0 {
			return 1.0
		}
		return 0.0
	})
}

func utteranceFrames(chunkSize int) []capture.Frame {
	now := time.Now()
	var frames []capture.Frame
	for i := 0; i < 4; i++ {
		frames = append(frames, testutil.SpeechFrame(chunkSize, now))
	}
	frames = append(frames, testutil.SilenceFrame(chunkSize, now))
	return frames
}

func TestNew_StartsIdle(t *testing.T) {
	p := New(testutil.TestConfig(), Factories{})
	if p.Status() != Idle {
		t.Errorf("Status() = %v, want %v", p.Status(), Idle)
	}
}

func TestPipeline_EndToEnd(t *testing.T) {
	cfg := testutil.TestConfig()
	cfg.Audio.ChunkSize = 1600 // 100ms frames
	cfg.VAD.SilenceLimit = 250 * time.Millisecond

	source := testutil.NewMockFrameSource(utteranceFrames(cfg.Audio.ChunkSize))
	adapter := testutil.NewMockBatchAdapter()
	adapter.TranscribeFunc = func(ctx context.Context, wavData []byte) (string, error) {
		return "hello from the meeting", nil
	}

	p := New(cfg, Factories{
		NewSource:  func(capture.Config) FrameSource { return source },
		Classifier: scriptedClassifier(),
		Adapter:    adapter,
		Embedder:   testutil.ConstantEmbedder([]float64{1, 0, 0}),
	})

	ctx, cancel := testutil.TestContext()
	defer cancel()

	out, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if p.Status() != Capturing {
		t.Errorf("Status() = %v after Run(), want %v", p.Status(), Capturing)
	}

	segments := make(chan events.TranscriptionSegment, 16)
	go func() {
		defer close(segments)
		for seg := range out {
			segments <- seg
		}
	}()

	select {
	case seg := <-segments:
		if seg.Text != "hello from the meeting" {
			t.Errorf("text = %q, want adapter output", seg.Text)
		}
		if seg.Speaker != "Speaker 0" {
			t.Errorf("speaker = %q, want \"Speaker 0\"", seg.Speaker)
		}
		if !seg.Final {
			t.Errorf("segment not final")
		}
	case <-time.After(4 * time.Second):
		t.Fatalf("no segment emitted end to end")
	}

	p.Stop()

	testutil.WaitForCondition(t, func() bool { return p.Status() == Idle }, 2*time.Second)

	// Output must be fully closed after Stop.
	for range segments {
	}
}

func TestPipeline_StopReturnsWithAbandonedOutput(t *testing.T) {
	cfg := testutil.TestConfig()
	cfg.Audio.ChunkSize = 1600 // 100ms frames
	cfg.VAD.SilenceLimit = 250 * time.Millisecond

	// Enough utterances to fill every downstream buffer, including the
	// merged output and its tap, with nobody reading the stream.
	var frames []capture.Frame
	for i := 0; i < 40; i++ {
		frames = append(frames, utteranceFrames(cfg.Audio.ChunkSize)...)
	}
	source := testutil.NewMockFrameSource(frames)
	adapter := testutil.NewMockBatchAdapter()

	p := New(cfg, Factories{
		NewSource:  func(capture.Config) FrameSource { return source },
		Classifier: scriptedClassifier(),
		Adapter:    adapter,
		Embedder:   testutil.ConstantEmbedder([]float64{1, 0, 0}),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if _, err := p.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// The merged stream is deliberately never read.

	testutil.WaitForCondition(t, func() bool { return adapter.CallCount() == 40 }, 10*time.Second)
	time.Sleep(200 * time.Millisecond) // let the output buffers fill

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatalf("Stop() hung with an unread output stream")
	}
	if p.Status() != Idle {
		t.Errorf("Status() = %v after Stop(), want %v", p.Status(), Idle)
	}
}

func TestPipeline_RunTwiceFails(t *testing.T) {
	cfg := testutil.TestConfig()
	source := testutil.NewMockFrameSource(nil)

	p := New(cfg, Factories{
		NewSource:  func(capture.Config) FrameSource { return source },
		Classifier: scriptedClassifier(),
		Adapter:    testutil.NewMockBatchAdapter(),
		Embedder:   testutil.ConstantEmbedder([]float64{1}),
	})

	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := p.Run(ctx); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	defer p.Stop()

	if _, err := p.Run(ctx); err == nil {
		t.Errorf("second Run() succeeded, want error while capturing")
	}
}

func TestPipeline_MicStartFailureAborts(t *testing.T) {
	cfg := testutil.TestConfig()
	source := testutil.NewMockFrameSource(nil)
	source.StartError = errors.New("no such device")

	p := New(cfg, Factories{
		NewSource:  func(capture.Config) FrameSource { return source },
		Classifier: scriptedClassifier(),
		Adapter:    testutil.NewMockBatchAdapter(),
		Embedder:   testutil.ConstantEmbedder([]float64{1}),
	})

	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := p.Run(ctx); err == nil {
		t.Errorf("Run() succeeded with a failing mic source")
	}
	if p.Status() != Idle {
		t.Errorf("Status() = %v after failed start, want %v", p.Status(), Idle)
	}
}

func TestPipeline_MissingEmbedderConfigFails(t *testing.T) {
	cfg := testutil.TestConfig()
	cfg.Diarization.EmbeddingURL = ""

	p := New(cfg, Factories{
		NewSource:  func(capture.Config) FrameSource { return testutil.NewMockFrameSource(nil) },
		Classifier: scriptedClassifier(),
		Adapter:    testutil.NewMockBatchAdapter(),
	})

	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := p.Run(ctx); err == nil {
		t.Errorf("Run() succeeded without an embedder or embedding URL")
	}
}
