// Package store persists sessions and their merged transcript segments
// in SQLite. It consumes the pipeline's output stream; it is not part
// of the pipeline itself.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/gmarchesi/verbatim/internal/events"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		ended_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS segments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		speaker TEXT NOT NULL,
		text TEXT NOT NULL,
		start_time DATETIME NOT NULL,
		end_time DATETIME NOT NULL,
		processing_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_segments_session ON segments(session_id, start_time);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession records a new session and returns its id.
func (s *Store) CreateSession() (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(`INSERT INTO sessions (id, started_at) VALUES (?, ?)`,
		id, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return id, nil
}

func (s *Store) EndSession(id string) error {
	_, err := s.db.Exec(`UPDATE sessions SET ended_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

func (s *Store) SaveSegment(sessionID string, seg events.TranscriptionSegment) error {
	_, err := s.db.Exec(
		`INSERT INTO segments (session_id, speaker, text, start_time, end_time, processing_ms)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, seg.Speaker, seg.Text,
		seg.Start.UTC(), seg.End.UTC(), seg.ProcessingTime.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to save segment: %w", err)
	}
	return nil
}

// Segments returns a session's transcript ordered by start time.
func (s *Store) Segments(sessionID string) ([]events.TranscriptionSegment, error) {
	rows, err := s.db.Query(
		`SELECT speaker, text, start_time, end_time, processing_ms
		 FROM segments WHERE session_id = ? ORDER BY start_time`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	var segments []events.TranscriptionSegment
	for rows.Next() {
		var seg events.TranscriptionSegment
		var processingMs int64
		if err := rows.Scan(&seg.Speaker, &seg.Text, &seg.Start, &seg.End, &processingMs); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		seg.ProcessingTime = time.Duration(processingMs) * time.Millisecond
		seg.Final = true
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// SessionInfo is a row from the sessions table.
type SessionInfo struct {
	ID        string
	StartedAt time.Time
	EndedAt   *time.Time
}

func (s *Store) Sessions(limit int) ([]SessionInfo, error) {
	rows, err := s.db.Query(
		`SELECT id, started_at, ended_at FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionInfo
	for rows.Next() {
		var info SessionInfo
		if err := rows.Scan(&info.ID, &info.StartedAt, &info.EndedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, info)
	}
	return sessions, rows.Err()
}
