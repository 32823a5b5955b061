package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/gmarchesi/verbatim/internal/events"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_SessionLifecycle(t *testing.T) {
	s := openTestStore(t)

	id, err := s.CreateSession()
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if id == "" {
		t.Fatalf("CreateSession() returned empty id")
	}

	sessions, err := s.Sessions(10)
	if err != nil {
		t.Fatalf("Sessions() error = %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	if sessions[0].ID != id {
		t.Errorf("session id = %q, want %q", sessions[0].ID, id)
	}
	if sessions[0].EndedAt != nil {
		t.Errorf("new session already has an end time")
	}

	if err := s.EndSession(id); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	sessions, _ = s.Sessions(10)
	if sessions[0].EndedAt == nil {
		t.Errorf("ended session has no end time")
	}
}

func TestStore_SegmentRoundtrip(t *testing.T) {
	s := openTestStore(t)

	id, err := s.CreateSession()
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	second := events.TranscriptionSegment{
		Text:           "and then we shipped it",
		Start:          start.Add(5 * time.Second),
		End:            start.Add(8 * time.Second),
		ProcessingTime: 900 * time.Millisecond,
		Speaker:        "Speaker 1",
		Final:          true,
	}
	first := events.TranscriptionSegment{
		Text:           "let's get started",
		Start:          start,
		End:            start.Add(2 * time.Second),
		ProcessingTime: 1200 * time.Millisecond,
		Speaker:        "Speaker 0",
		Final:          true,
	}

	// Insert out of order; reads come back ordered by start time.
	if err := s.SaveSegment(id, second); err != nil {
		t.Fatalf("SaveSegment() error = %v", err)
	}
	if err := s.SaveSegment(id, first); err != nil {
		t.Fatalf("SaveSegment() error = %v", err)
	}

	got, err := s.Segments(id)
	if err != nil {
		t.Fatalf("Segments() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d segments, want 2", len(got))
	}

	if got[0].Text != first.Text || got[1].Text != second.Text {
		t.Errorf("segments out of order: %q then %q", got[0].Text, got[1].Text)
	}
	if got[0].Speaker != "Speaker 0" {
		t.Errorf("speaker = %q, want \"Speaker 0\"", got[0].Speaker)
	}
	if got[0].ProcessingTime != 1200*time.Millisecond {
		t.Errorf("processing time = %v, want 1200ms", got[0].ProcessingTime)
	}
	if !got[0].Start.Equal(first.Start) {
		t.Errorf("start = %v, want %v", got[0].Start, first.Start)
	}
}

func TestStore_SegmentsIsolatedBySession(t *testing.T) {
	s := openTestStore(t)

	a, _ := s.CreateSession()
	b, _ := s.CreateSession()

	seg := events.TranscriptionSegment{
		Text:    "only in a",
		Start:   time.Now().UTC(),
		End:     time.Now().UTC().Add(time.Second),
		Speaker: "Speaker 0",
	}
	if err := s.SaveSegment(a, seg); err != nil {
		t.Fatalf("SaveSegment() error = %v", err)
	}

	gotB, err := s.Segments(b)
	if err != nil {
		t.Fatalf("Segments() error = %v", err)
	}
	if len(gotB) != 0 {
		t.Errorf("session b has %d segments, want 0", len(gotB))
	}
}

func TestStore_SessionsLimit(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 5; i++ {
		if _, err := s.CreateSession(); err != nil {
			t.Fatalf("CreateSession() error = %v", err)
		}
	}

	sessions, err := s.Sessions(3)
	if err != nil {
		t.Fatalf("Sessions() error = %v", err)
	}
	if len(sessions) != 3 {
		t.Errorf("got %d sessions, want limit of 3", len(sessions))
	}
}
