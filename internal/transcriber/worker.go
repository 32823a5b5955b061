package transcriber

import (
	"context"
	"log"
	"time"

	"github.com/gmarchesi/verbatim/internal/events"
	"github.com/gmarchesi/verbatim/internal/wav"
)

// Worker consumes AudioChunks and emits TranscriptionSegments. Each
// chunk is an independent unit of work: a failed inference call is
// logged and the chunk dropped, never retried (stale audio has no
// value), and never aborts later chunks.
type Worker struct {
	config  Config
	adapter BatchAdapter
}

func NewWorker(config Config, adapter BatchAdapter) *Worker {
	if config.OutBufferSize == 0 {
		config.OutBufferSize = 16
	}
	return &Worker{config: config, adapter: adapter}
}

// Run transcribes until the input closes or the context is cancelled.
// The output channel is closed on exit.
func (w *Worker) Run(ctx context.Context, in <-chan events.AudioChunk) <-chan events.TranscriptionSegment {
	out := make(chan events.TranscriptionSegment, w.config.OutBufferSize)

	go func() {
		defer close(out)
		log.Printf("Transcriber: worker started: provider=%s model=%s",
			w.config.Provider, w.config.Model)

		for {
			select {
			case chunk, ok := <-in:
				if !ok {
					log.Printf("Transcriber: input closed")
					return
				}
				segment, ok := w.transcribe(ctx, chunk)
				if !ok {
					continue
				}
				select {
				case out <- segment:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

func (w *Worker) transcribe(ctx context.Context, chunk events.AudioChunk) (events.TranscriptionSegment, bool) {
	start := time.Now()
	text, err := w.adapter.Transcribe(ctx, wav.Encode(chunk.Samples, chunk.SampleRate))
	elapsed := time.Since(start)

	if err != nil {
		log.Printf("Transcriber: dropping %.2fs chunk: %v", chunk.Duration.Seconds(), err)
		return events.TranscriptionSegment{}, false
	}
	if text == "" {
		return events.TranscriptionSegment{}, false
	}

	log.Printf("Transcriber: %q (%.2fs audio, %v inference)",
		text, chunk.Duration.Seconds(), elapsed.Round(time.Millisecond))

	return events.TranscriptionSegment{
		Text:           text,
		Start:          chunk.Timestamp,
		End:            chunk.End(),
		ProcessingTime: elapsed,
		Speaker:        events.SpeakerUnknown,
		Final:          true,
	}, true
}
