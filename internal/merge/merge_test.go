package merge

import (
	"context"
	"testing"
	"time"

	"github.com/gmarchesi/verbatim/internal/events"
)

// Fixed anchor for the unit tests that drive resolve/prune/match
// directly with an overridden clock. The Run-path tests anchor at
// time.Now() instead: the run loop prunes with the wall clock, and a
// stale timeline entry would be discarded the moment it is ingested.
var fixedBase = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func testMergeConfig() Config {
	return Config{
		RetentionWindow: 8 * time.Second,
		SegmentTimeout:  3 * time.Second,
	}
}

func diar(base time.Time, speaker string, start, end time.Duration) events.DiarizationResult {
	return events.DiarizationResult{
		Speaker: speaker,
		Start:   base.Add(start),
		End:     base.Add(end),
	}
}

func segment(base time.Time, text string, start time.Duration) events.TranscriptionSegment {
	return events.TranscriptionSegment{
		Text:    text,
		Start:   base.Add(start),
		End:     base.Add(start + time.Second),
		Speaker: events.SpeakerUnknown,
		Final:   true,
	}
}

func TestService_MatchByContainment(t *testing.T) {
	s := New(testMergeConfig())
	s.timeline = []events.DiarizationResult{
		diar(fixedBase, "Speaker 0", 10*time.Second, 12*time.Second),
		diar(fixedBase, "Speaker 1", 13*time.Second, 15*time.Second),
	}

	speaker, ok := s.match(segment(fixedBase, "hello", 11*time.Second))
	if !ok || speaker != "Speaker 0" {
		t.Errorf("match() = %q, %v; want \"Speaker 0\", true", speaker, ok)
	}

	speaker, ok = s.match(segment(fixedBase, "world", 13*time.Second))
	if !ok || speaker != "Speaker 1" {
		t.Errorf("boundary match() = %q, %v; want \"Speaker 1\", true", speaker, ok)
	}

	if _, ok := s.match(segment(fixedBase, "gap", 12500*time.Millisecond)); ok {
		t.Errorf("match() found a speaker in the gap between results")
	}
}

func TestService_ResolveMatchesAndTimesOut(t *testing.T) {
	s := New(testMergeConfig())
	now := fixedBase.Add(20 * time.Second)
	s.now = func() time.Time { return now }

	s.timeline = []events.DiarizationResult{
		diar(fixedBase, "Speaker 0", 14*time.Second, 16*time.Second),
	}
	s.pending = []pendingSegment{
		{segment: segment(fixedBase, "matched", 15*time.Second), arrival: now.Add(-time.Second)},
		{segment: segment(fixedBase, "waiting", 18*time.Second), arrival: now.Add(-time.Second)},
		{segment: segment(fixedBase, "expired", 19*time.Second), arrival: now.Add(-4 * time.Second)},
	}

	resolved := s.resolve(now)

	if len(resolved) != 2 {
		t.Fatalf("resolved %d segments, want 2", len(resolved))
	}
	if resolved[0].Text != "matched" || resolved[0].Speaker != "Speaker 0" {
		t.Errorf("resolved[0] = %q/%q, want matched/Speaker 0",
			resolved[0].Text, resolved[0].Speaker)
	}
	if resolved[1].Text != "expired" || resolved[1].Speaker != events.SpeakerUnknown {
		t.Errorf("resolved[1] = %q/%q, want expired/unknown",
			resolved[1].Text, resolved[1].Speaker)
	}

	if len(s.pending) != 1 || s.pending[0].segment.Text != "waiting" {
		t.Errorf("pending after resolve = %v, want just the waiting segment", s.pending)
	}
}

func TestService_PruneRespectsRetentionWindow(t *testing.T) {
	s := New(testMergeConfig())
	s.timeline = []events.DiarizationResult{
		diar(fixedBase, "Speaker 0", 0, 1*time.Second),
		diar(fixedBase, "Speaker 1", 5*time.Second, 7*time.Second),
	}

	s.prune(fixedBase.Add(10 * time.Second)) // cutoff at t=2s

	if len(s.timeline) != 1 {
		t.Fatalf("timeline has %d entries after prune, want 1", len(s.timeline))
	}
	if s.timeline[0].Speaker != "Speaker 1" {
		t.Errorf("kept %q, want \"Speaker 1\"", s.timeline[0].Speaker)
	}
}

func TestService_RunLabelsSegment(t *testing.T) {
	cfg := testMergeConfig()
	cfg.PollInterval = 10 * time.Millisecond
	s := New(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	base := time.Now()
	txCh := make(chan events.TranscriptionSegment, 1)
	// Unbuffered: the send returns only once the run loop has taken the
	// result, so the timeline entry exists before the segment arrives.
	diarCh := make(chan events.DiarizationResult)
	out := s.Run(ctx, txCh, diarCh)

	diarCh <- diar(base, "Speaker 0", -2*time.Second, 2*time.Second)
	txCh <- segment(base, "hello there", -time.Second)

	select {
	case got := <-out:
		if got.Speaker != "Speaker 0" {
			t.Errorf("speaker = %q, want \"Speaker 0\"", got.Speaker)
		}
		if got.Text != "hello there" {
			t.Errorf("text = %q, want \"hello there\"", got.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no labeled segment emitted")
	}

	close(txCh)
	if _, ok := <-out; ok {
		t.Errorf("output not closed after input close")
	}
}

func TestService_RunTimesOutUnmatchedSegment(t *testing.T) {
	cfg := testMergeConfig()
	cfg.SegmentTimeout = 50 * time.Millisecond
	cfg.PollInterval = 10 * time.Millisecond
	s := New(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	txCh := make(chan events.TranscriptionSegment, 1)
	diarCh := make(chan events.DiarizationResult)
	out := s.Run(ctx, txCh, diarCh)

	txCh <- segment(time.Now(), "nobody claims this", 0)

	select {
	case got := <-out:
		if got.Speaker != events.SpeakerUnknown {
			t.Errorf("speaker = %q, want %q", got.Speaker, events.SpeakerUnknown)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("segment never released after timeout")
	}
}

func TestService_ShutdownDrainsPending(t *testing.T) {
	cfg := testMergeConfig()
	cfg.PollInterval = time.Hour // no timer-driven resolution passes
	s := New(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	base := time.Now()
	txCh := make(chan events.TranscriptionSegment, 2)
	diarCh := make(chan events.DiarizationResult)
	out := s.Run(ctx, txCh, diarCh)

	// Ingested synchronously: the unbuffered send sequences the timeline
	// entry ahead of both segments.
	diarCh <- diar(base, "Speaker 0", -2*time.Second, 2*time.Second)

	txCh <- segment(base, "matched late", -time.Second)
	txCh <- segment(base, "never matched", 10*time.Second)
	close(txCh)

	var got []events.TranscriptionSegment
	for seg := range out {
		got = append(got, seg)
	}

	if len(got) != 2 {
		t.Fatalf("drained %d segments, want 2", len(got))
	}
	bySpeaker := map[string]string{}
	for _, seg := range got {
		bySpeaker[seg.Text] = seg.Speaker
	}
	if bySpeaker["matched late"] != "Speaker 0" {
		t.Errorf("matched late released as %q, want \"Speaker 0\"", bySpeaker["matched late"])
	}
	if bySpeaker["never matched"] != events.SpeakerUnknown {
		t.Errorf("never matched released as %q, want %q", bySpeaker["never matched"], events.SpeakerUnknown)
	}
}
