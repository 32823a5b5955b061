package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// WhisperServerAdapter implements BatchAdapter against a local
// whisper.cpp server (or any endpoint speaking its /inference multipart
// contract). No API key, no network egress.
type WhisperServerAdapter struct {
	config Config
	client *http.Client
}

func NewWhisperServerAdapter(config Config) *WhisperServerAdapter {
	return &WhisperServerAdapter{
		config: config,
		client: &http.Client{Timeout: 2 * time.Minute},
	}
}

type whisperServerResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

func (a *WhisperServerAdapter) Transcribe(ctx context.Context, wavData []byte) (string, error) {
	if len(wavData) == 0 {
		return "", nil
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wavData); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}
	writer.WriteField("response_format", "json")
	if a.config.Language != "" {
		writer.WriteField("language", a.config.Language)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.Endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper-server request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("whisper-server returned %d: %s", resp.StatusCode, data)
	}

	var parsed whisperServerResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode whisper-server response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("whisper-server error: %s", parsed.Error)
	}
	return parsed.Text, nil
}
