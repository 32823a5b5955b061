package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gmarchesi/verbatim/internal/config"
	"github.com/gmarchesi/verbatim/internal/store"
)

func openStore() (*store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		cfg = config.DefaultConfig()
	}

	path := cfg.Store.Path
	if path == "" {
		dir, err := config.DataDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "verbatim.db")
	}
	return store.Open(path)
}

func runSessions(limit int) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	sessions, err := st.Sessions(limit)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions recorded yet.")
		return nil
	}

	for _, s := range sessions {
		ended := "(in progress)"
		if s.EndedAt != nil {
			ended = s.EndedAt.Local().Format("15:04:05")
		}
		fmt.Printf("%s  %s - %s\n", s.ID, s.StartedAt.Local().Format("2006-01-02 15:04:05"), ended)
	}
	return nil
}

func transcriptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transcript <session-id>",
		Short: "Print a session's transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranscript(args[0])
		},
	}
}

func runTranscript(sessionID string) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	segments, err := st.Segments(sessionID)
	if err != nil {
		return fmt.Errorf("failed to load transcript: %w", err)
	}
	if len(segments) == 0 {
		fmt.Println("No segments recorded for this session.")
		return nil
	}

	for _, seg := range segments {
		fmt.Printf("[%s] %s: %s\n", seg.Start.Local().Format("15:04:05"), seg.Speaker, seg.Text)
	}
	return nil
}
