// Package events defines the values that flow between pipeline stages.
//
// Streams between stages are Go channels. Closing a channel is the
// end-of-stream sentinel: every producer documents that it closes its
// output, and every consumer treats a closed input as "stream over,
// shut down". No in-band nil values are used.
package events

import "time"

// AudioChunk is one flushed speech utterance. It is created once by the
// voice-activity gate, never mutated afterwards, and consumed
// independently by the transcription and diarization workers.
type AudioChunk struct {
	// Samples holds mono float32 samples at SampleRate.
	Samples    []float32
	SampleRate int

	// Timestamp marks the wall-clock start of the utterance: flush time
	// minus the buffered duration, never the flush time itself.
	Timestamp time.Time
	Duration  time.Duration

	// IsSpeech is always true for emitted chunks; silence is never
	// forwarded. Kept explicit so consumers can assert on it.
	IsSpeech bool
}

// End returns the wall-clock end of the utterance.
func (c AudioChunk) End() time.Time {
	return c.Timestamp.Add(c.Duration)
}

// TranscriptionSegment is one transcribed utterance. The merge service
// rewrites Speaker exactly once before forwarding it downstream.
type TranscriptionSegment struct {
	Text  string
	Start time.Time
	End   time.Time

	// ProcessingTime is the wall-clock cost of the transcription call,
	// not the audio duration.
	ProcessingTime time.Duration

	Speaker string // "unknown" until the merge service resolves it
	Final   bool
}

// DiarizationResult attributes one AudioChunk's time span to a speaker.
type DiarizationResult struct {
	Speaker string
	Start   time.Time
	End     time.Time
}

// Contains reports whether t falls inside the result's time span,
// boundaries included.
func (r DiarizationResult) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// SpeakerUnknown is the label used when no speaker could be attributed:
// degenerate embeddings and merge timeouts both fall back to it.
const SpeakerUnknown = "unknown"
