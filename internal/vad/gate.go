// Package vad mixes the two capture streams and gates them into
// utterance-sized AudioChunks.
//
// The microphone stream is the master clock: each iteration blocks on
// the next mic frame (timeout-bounded), pairs it with whatever the
// system stream has ready within a short timeout (silence otherwise),
// averages the pair, and runs the mix through the speech classifier.
package vad

import (
	"context"
	"log"
	"time"

	"github.com/gmarchesi/verbatim/internal/capture"
	"github.com/gmarchesi/verbatim/internal/events"
)

type Config struct {
	SampleRate int
	ChunkSize  int

	// Threshold is the speech probability above which a frame counts as
	// speech.
	Threshold float64

	// SilenceLimit flushes the buffer once the buffered duration exceeds
	// it while a silence frame arrives.
	SilenceLimit time.Duration

	// MaxSilenceFrames discards the buffer after this many consecutive
	// silence frames without a flush. Anti-leak safeguard; with sane
	// settings the flush always fires first.
	MaxSilenceFrames int

	// MasterTimeout bounds the wait for the next mic frame so shutdown
	// is always observed. A timeout is "no new frame yet", not an error.
	MasterTimeout time.Duration

	// PairTimeout bounds the wait for a matching system frame before
	// silence is substituted.
	PairTimeout time.Duration

	OutBufferSize int
}

// Gate is the mixer + voice-activity state machine.
type Gate struct {
	config     Config
	classifier Classifier

	buffer     [][]float32
	silenceRun int

	now func() time.Time // test seam
}

func NewGate(config Config, classifier Classifier) *Gate {
	if config.MasterTimeout == 0 {
		config.MasterTimeout = time.Second
	}
	if config.PairTimeout == 0 {
		config.PairTimeout = 20 * time.Millisecond
	}
	if config.MaxSilenceFrames == 0 {
		config.MaxSilenceFrames = 30
	}
	if config.OutBufferSize == 0 {
		config.OutBufferSize = 16
	}
	return &Gate{config: config, classifier: classifier, now: time.Now}
}

// Run consumes the two frame streams until the mic stream closes or the
// context is cancelled. The returned chunk channel is closed when the
// gate exits; a partially buffered utterance is flushed first.
func (g *Gate) Run(ctx context.Context, micCh, sysCh <-chan capture.Frame) <-chan events.AudioChunk {
	out := make(chan events.AudioChunk, g.config.OutBufferSize)
	go g.run(ctx, micCh, sysCh, out)
	return out
}

func (g *Gate) run(ctx context.Context, micCh, sysCh <-chan capture.Frame, out chan<- events.AudioChunk) {
	defer close(out)

	frameDur := g.frameDuration()
	log.Printf("VAD: gate started: chunk=%d rate=%d threshold=%.2f silence_limit=%v",
		g.config.ChunkSize, g.config.SampleRate, g.config.Threshold, g.config.SilenceLimit)

	silence := make([]float32, g.config.ChunkSize)
	masterTimer := time.NewTimer(g.config.MasterTimeout)
	defer masterTimer.Stop()

	processed := 0
	for {
		mic, ok, alive := g.nextMicFrame(ctx, micCh, masterTimer)
		if !alive {
			g.drain(out)
			log.Printf("VAD: gate stopped after %d frames", processed)
			return
		}
		if !ok {
			continue // master-clock timeout, check shutdown and re-arm
		}

		sys := g.pairSystemFrame(sysCh, silence)

		mixed := make([]float32, len(mic.Samples))
		for i := range mixed {
			var s float32
			if i < len(sys) {
				s = sys[i]
			}
			mixed[i] = (mic.Samples[i] + s) / 2
		}

		processed++
		isSpeech := g.classifier.Score(mixed) > g.config.Threshold

		if isSpeech {
			g.buffer = append(g.buffer, mixed)
			g.silenceRun = 0
			if len(g.buffer) == 1 {
				log.Printf("VAD: speech started (frame #%d)", processed)
			}
			continue
		}

		if len(g.buffer) == 0 {
			continue // idle silence
		}

		// Buffered duration before this silence frame decides the flush;
		// the trailing silence frame itself is never emitted.
		if time.Duration(len(g.buffer))*frameDur > g.config.SilenceLimit {
			g.flush(ctx, out)
			continue
		}

		g.buffer = append(g.buffer, mixed) // silence tolerated inside an utterance
		g.silenceRun++
		if g.silenceRun > g.config.MaxSilenceFrames {
			log.Printf("VAD: discarding buffer after %d trailing silence frames", g.silenceRun)
			g.buffer = nil
			g.silenceRun = 0
		}
	}
}

// nextMicFrame blocks on the master clock. ok is false on timeout,
// alive is false once the gate should exit.
func (g *Gate) nextMicFrame(ctx context.Context, micCh <-chan capture.Frame, timer *time.Timer) (frame capture.Frame, ok, alive bool) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(g.config.MasterTimeout)

	select {
	case frame, chOk := <-micCh:
		if !chOk {
			return capture.Frame{}, false, false
		}
		return frame, true, true
	case <-timer.C:
		return capture.Frame{}, false, true
	case <-ctx.Done():
		return capture.Frame{}, false, false
	}
}

// pairSystemFrame grabs the most recent system frame available within
// the pair timeout, substituting silence when nothing is ready. A closed
// system stream degrades to permanent silence, it does not stop the gate.
func (g *Gate) pairSystemFrame(sysCh <-chan capture.Frame, silence []float32) []float32 {
	if sysCh == nil {
		return silence
	}
	select {
	case frame, ok := <-sysCh:
		if !ok {
			return silence
		}
		return frame.Samples
	case <-time.After(g.config.PairTimeout):
		return silence
	}
}

// flush emits the buffered utterance as one AudioChunk. The chunk's
// timestamp is back-dated by its duration from "now" so downstream
// stages see the speech-start time, not the flush time.
func (g *Gate) flush(ctx context.Context, out chan<- events.AudioChunk) {
	if len(g.buffer) == 0 {
		return
	}

	total := 0
	for _, f := range g.buffer {
		total += len(f)
	}
	samples := make([]float32, 0, total)
	for _, f := range g.buffer {
		samples = append(samples, f...)
	}

	duration := time.Duration(float64(total) / float64(g.config.SampleRate) * float64(time.Second))
	chunk := events.AudioChunk{
		Samples:    samples,
		SampleRate: g.config.SampleRate,
		Timestamp:  g.now().Add(-duration),
		Duration:   duration,
		IsSpeech:   true,
	}

	log.Printf("VAD: flushing %d frames, %.2fs", len(g.buffer), duration.Seconds())
	g.buffer = nil
	g.silenceRun = 0

	select {
	case out <- chunk:
	case <-ctx.Done():
	}
}

// drain flushes whatever speech is still buffered at shutdown.
func (g *Gate) drain(out chan<- events.AudioChunk) {
	g.flush(context.Background(), out)
}

func (g *Gate) frameDuration() time.Duration {
	return time.Duration(float64(g.config.ChunkSize) / float64(g.config.SampleRate) * float64(time.Second))
}
