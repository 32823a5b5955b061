// Package merge reconciles the transcription and diarization streams
// into a single speaker-labeled transcript stream.
//
// The two inputs are independently paced: transcription arrives with
// highly variable model latency, diarization faster but not instantly.
// The service never blocks either producer; segments that cannot be
// matched in time are released with the "unknown" speaker so the
// transcript never stalls.
package merge

import (
	"context"
	"log"
	"time"

	"github.com/gmarchesi/verbatim/internal/events"
)

type Config struct {
	// RetentionWindow bounds how long diarization results are kept for
	// matching before being pruned.
	RetentionWindow time.Duration

	// SegmentTimeout is the longest a transcription segment waits for a
	// diarization match before being released as "unknown".
	SegmentTimeout time.Duration

	// PollInterval drives resolution passes while both inputs are quiet.
	PollInterval time.Duration

	OutBufferSize int
}

type pendingSegment struct {
	segment events.TranscriptionSegment
	arrival time.Time
}

// Service performs the temporal join. All state is owned by the Run
// goroutine; nothing here needs locking.
type Service struct {
	config   Config
	pending  []pendingSegment
	timeline []events.DiarizationResult

	now func() time.Time // test seam
}

func New(config Config) *Service {
	if config.PollInterval == 0 {
		config.PollInterval = 100 * time.Millisecond
	}
	if config.OutBufferSize == 0 {
		config.OutBufferSize = 16
	}
	return &Service{config: config, now: time.Now}
}

// Run merges the two input streams until either closes or the context is
// cancelled. On shutdown, still-pending segments are released as
// "unknown" before the output channel is closed.
func (s *Service) Run(ctx context.Context, txCh <-chan events.TranscriptionSegment, diarCh <-chan events.DiarizationResult) <-chan events.TranscriptionSegment {
	out := make(chan events.TranscriptionSegment, s.config.OutBufferSize)
	go s.run(ctx, txCh, diarCh, out)
	return out
}

func (s *Service) run(ctx context.Context, txCh <-chan events.TranscriptionSegment, diarCh <-chan events.DiarizationResult, out chan<- events.TranscriptionSegment) {
	defer close(out)

	log.Printf("Merge: started: retention=%v segment_timeout=%v",
		s.config.RetentionWindow, s.config.SegmentTimeout)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case result, ok := <-diarCh:
			if !ok {
				s.shutdown(ctx, out, "diarization stream closed")
				return
			}
			s.timeline = append(s.timeline, result)

		case segment, ok := <-txCh:
			if !ok {
				s.shutdown(ctx, out, "transcription stream closed")
				return
			}
			s.pending = append(s.pending, pendingSegment{segment: segment, arrival: s.now()})

		case <-ticker.C:
			// resolution pass below

		case <-ctx.Done():
			s.shutdown(ctx, out, "cancelled")
			return
		}

		for _, resolved := range s.resolve(s.now()) {
			if !s.emit(ctx, out, resolved) {
				return
			}
		}
		s.prune(s.now())
	}
}

// resolve matches or times out pending segments and returns them in
// resolution order. Resolution order may differ from arrival order when
// an early segment is still waiting while a later one matches at once;
// consumers re-sort by timestamp if they need strict ordering.
func (s *Service) resolve(now time.Time) []events.TranscriptionSegment {
	var resolved []events.TranscriptionSegment
	var remaining []pendingSegment

	for _, p := range s.pending {
		if speaker, ok := s.match(p.segment); ok {
			seg := p.segment
			seg.Speaker = speaker
			resolved = append(resolved, seg)
			continue
		}
		if now.Sub(p.arrival) >= s.config.SegmentTimeout {
			seg := p.segment
			seg.Speaker = events.SpeakerUnknown
			resolved = append(resolved, seg)
			log.Printf("Merge: segment at %s released as unknown after %v",
				seg.Start.Format("15:04:05.000"), now.Sub(p.arrival))
			continue
		}
		remaining = append(remaining, p)
	}

	s.pending = remaining
	return resolved
}

// match scans the timeline for a result whose span contains the
// segment's start time. First match wins; diarization results are
// chunk-aligned and do not overlap in practice.
func (s *Service) match(segment events.TranscriptionSegment) (string, bool) {
	for _, result := range s.timeline {
		if result.Contains(segment.Start) {
			return result.Speaker, true
		}
	}
	return "", false
}

// prune drops timeline entries older than the retention window, bounding
// memory and scan cost.
func (s *Service) prune(now time.Time) {
	cutoff := now.Add(-s.config.RetentionWindow)
	kept := s.timeline[:0]
	for _, result := range s.timeline {
		if result.End.After(cutoff) {
			kept = append(kept, result)
		}
	}
	s.timeline = kept
}

// shutdown releases every still-pending segment exactly once. Segments
// that can still be matched against the timeline keep their speaker;
// the rest go out as "unknown".
func (s *Service) shutdown(ctx context.Context, out chan<- events.TranscriptionSegment, reason string) {
	log.Printf("Merge: stopping (%s), releasing %d pending segments", reason, len(s.pending))
	for _, p := range s.pending {
		seg := p.segment
		if speaker, ok := s.match(seg); ok {
			seg.Speaker = speaker
		} else {
			seg.Speaker = events.SpeakerUnknown
		}
		if !s.emit(ctx, out, seg) {
			return
		}
	}
	s.pending = nil
}

func (s *Service) emit(ctx context.Context, out chan<- events.TranscriptionSegment, seg events.TranscriptionSegment) bool {
	select {
	case out <- seg:
		return true
	case <-ctx.Done():
		// Shutdown drain still has a closed consumer side to worry
		// about: give the send a bounded grace period.
		select {
		case out <- seg:
			return true
		case <-time.After(time.Second):
			return false
		}
	}
}
