// Package pipeline wires the capture, gating, fan-out, model and merge
// stages into one running session.
//
// Every stage is its own goroutine; stages communicate only through
// bounded channels and observe shutdown through context cancellation or
// upstream channel closure. No stage shares mutable state with another.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/gmarchesi/verbatim/internal/broadcast"
	"github.com/gmarchesi/verbatim/internal/capture"
	"github.com/gmarchesi/verbatim/internal/config"
	"github.com/gmarchesi/verbatim/internal/diarizer"
	"github.com/gmarchesi/verbatim/internal/events"
	"github.com/gmarchesi/verbatim/internal/merge"
	"github.com/gmarchesi/verbatim/internal/transcriber"
	"github.com/gmarchesi/verbatim/internal/vad"
)

type Status string

const (
	Idle      Status = "idle"
	Capturing Status = "capturing"
)

// FrameSource abstracts a capture device so tests can substitute
// scripted audio. capture.Source is the production implementation.
type FrameSource interface {
	Start(ctx context.Context) (<-chan capture.Frame, <-chan error, error)
	Stop()
}

// Factories are the pipeline's pluggable seams. Zero values select the
// production implementations built from the config.
type Factories struct {
	NewSource  func(capture.Config) FrameSource
	Classifier vad.Classifier
	Adapter    transcriber.BatchAdapter
	Embedder   diarizer.Embedder
}

type Pipeline interface {
	// Run starts every stage and returns the merged transcript stream.
	// The stream closes once the pipeline has fully stopped.
	Run(ctx context.Context) (<-chan events.TranscriptionSegment, error)
	Stop()
	Status() Status
}

type pipeline struct {
	cfg       *config.Config
	factories Factories

	status atomic.Value // Status

	mu      sync.Mutex
	cancel  context.CancelFunc
	sources []FrameSource
	wg      sync.WaitGroup
}

func New(cfg *config.Config, factories Factories) Pipeline {
	if factories.NewSource == nil {
		factories.NewSource = func(c capture.Config) FrameSource {
			return capture.NewSource(c)
		}
	}
	if factories.Classifier == nil {
		factories.Classifier = vad.NewEnergyClassifier()
	}
	p := &pipeline{cfg: cfg, factories: factories}
	p.status.Store(Idle)
	return p
}

func (p *pipeline) Status() Status {
	return p.status.Load().(Status)
}

func (p *pipeline) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	sources := p.sources
	p.sources = nil
	p.mu.Unlock()

	for _, s := range sources {
		s.Stop()
	}
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

func (p *pipeline) Run(ctx context.Context) (<-chan events.TranscriptionSegment, error) {
	if p.Status() != Idle {
		return nil, fmt.Errorf("pipeline already running")
	}

	adapter := p.factories.Adapter
	if adapter == nil {
		var err error
		adapter, err = transcriber.NewAdapter(p.cfg.ToTranscriberConfig())
		if err != nil {
			return nil, fmt.Errorf("build transcription adapter: %w", err)
		}
	}

	embedder := p.factories.Embedder
	if embedder == nil {
		if p.cfg.Diarization.EmbeddingURL == "" {
			return nil, fmt.Errorf("diarization.embedding_url required (no embedder injected)")
		}
		embedder = diarizer.NewHTTPEmbedder(p.cfg.Diarization.EmbeddingURL)
	}

	runCtx, cancel := context.WithCancel(ctx)

	// Mic is the mandatory master clock.
	mic := p.factories.NewSource(p.cfg.ToMicCaptureConfig())
	micCh, micErrs, err := mic.Start(runCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start mic capture: %w", err)
	}

	// Loopback is optional: a missing or broken device degrades to
	// silence substitution in the mixer, never a startup failure.
	var sysCh <-chan capture.Frame
	var sysErrs <-chan error
	sources := []FrameSource{mic}
	if loopCfg, ok := p.cfg.ToLoopbackCaptureConfig(); ok {
		loop := p.factories.NewSource(loopCfg)
		ch, errs, err := loop.Start(runCtx)
		if err != nil {
			log.Printf("Pipeline: loopback unavailable, substituting silence: %v", err)
		} else {
			sysCh, sysErrs = ch, errs
			sources = append(sources, loop)
		}
	} else {
		log.Printf("Pipeline: no loopback device configured, system audio will not be captured")
	}

	p.mu.Lock()
	p.cancel = cancel
	p.sources = sources
	p.mu.Unlock()

	gate := vad.NewGate(p.cfg.ToVADConfig(), p.factories.Classifier)
	chunks := gate.Run(runCtx, micCh, sysCh)

	bufSize := p.cfg.Audio.ChannelBufferSize
	txIn := make(chan events.AudioChunk, bufSize)
	diarIn := make(chan events.AudioChunk, bufSize)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		broadcast.Run(runCtx, chunks, txIn, diarIn)
	}()

	worker := transcriber.NewWorker(p.cfg.ToTranscriberConfig(), adapter)
	segments := worker.Run(runCtx, txIn)

	engine := diarizer.New(p.cfg.ToDiarizerConfig(), embedder)
	results := engine.Run(runCtx, diarIn)

	merger := merge.New(p.cfg.ToMergeConfig())
	out := merger.Run(runCtx, segments, results)

	p.wg.Add(1)
	go p.drainErrors(runCtx, micErrs, sysErrs)

	p.status.Store(Capturing)
	log.Printf("Pipeline: session started")

	// Watch the merged stream for closure to flip status back to idle.
	tapped := make(chan events.TranscriptionSegment, cap(out))
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(tapped)
		for seg := range out {
			select {
			case tapped <- seg:
			case <-runCtx.Done():
				// Consumer gone; keep draining so upstream can close out.
			}
		}
		p.status.Store(Idle)
		log.Printf("Pipeline: session ended")
	}()

	return tapped, nil
}

// drainErrors surfaces capture errors in the log. The sources already
// retry internally; nothing here aborts the session.
func (p *pipeline) drainErrors(ctx context.Context, micErrs, sysErrs <-chan error) {
	defer p.wg.Done()
	for micErrs != nil || sysErrs != nil {
		select {
		case err, ok := <-micErrs:
			if !ok {
				micErrs = nil
				continue
			}
			log.Printf("Pipeline: mic capture error: %v", err)
		case err, ok := <-sysErrs:
			if !ok {
				sysErrs = nil
				continue
			}
			log.Printf("Pipeline: loopback capture error: %v", err)
		case <-ctx.Done():
			return
		}
	}
}
