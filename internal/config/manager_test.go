package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)

	dir := filepath.Join(configHome, "verbatim")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewManager_LoadsConfig(t *testing.T) {
	writeTestConfig(t, `
[audio]
sample_rate = 8000

[providers.openai]
api_key = "test-key"
`)

	m, err := NewManager()
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	if got := m.GetConfig().Audio.SampleRate; got != 8000 {
		t.Errorf("sample rate = %d, want 8000 from file", got)
	}
}

func TestNewManager_MissingConfigFails(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	if _, err := NewManager(); err == nil {
		t.Errorf("NewManager() succeeded without a config file")
	}
}

func TestManager_GetConfigReturnsCopy(t *testing.T) {
	writeTestConfig(t, `
[providers.openai]
api_key = "test-key"
`)

	m, err := NewManager()
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	first := m.GetConfig()
	first.Audio.SampleRate = 1

	if got := m.GetConfig().Audio.SampleRate; got == 1 {
		t.Errorf("mutating a returned config leaked into the manager")
	}
}

func TestManager_ReloadsOnChange(t *testing.T) {
	path := writeTestConfig(t, `
[audio]
sample_rate = 16000

[providers.openai]
api_key = "test-key"
`)

	m, err := NewManager()
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.StartWatching(ctx); err != nil {
		t.Fatalf("StartWatching() error = %v", err)
	}
	defer m.Stop()

	updated := `
[audio]
sample_rate = 8000

[providers.openai]
api_key = "test-key"
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(3 * time.Second)
	for m.GetConfig().Audio.SampleRate != 8000 {
		select {
		case <-deadline:
			t.Fatalf("config not reloaded after file change")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestManager_KeepsLastGoodConfigOnInvalidEdit(t *testing.T) {
	path := writeTestConfig(t, `
[audio]
sample_rate = 16000

[providers.openai]
api_key = "test-key"
`)

	m, err := NewManager()
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.StartWatching(ctx); err != nil {
		t.Fatalf("StartWatching() error = %v", err)
	}
	defer m.Stop()

	// sample_rate 0 fails validation; the previous config must survive.
	bad := `
[audio]
sample_rate = 0

[providers.openai]
api_key = "test-key"
`
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(300 * time.Millisecond)
	if got := m.GetConfig().Audio.SampleRate; got != 16000 {
		t.Errorf("sample rate = %d after invalid edit, want previous 16000", got)
	}
}
