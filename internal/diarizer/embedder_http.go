package diarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gmarchesi/verbatim/internal/wav"
)

// HTTPEmbedder calls a speaker-embedding sidecar service: it POSTs the
// utterance as a WAV body and expects a JSON vector back. Any service
// exposing this shape works (an ECAPA-TDNN model server in practice).
type HTTPEmbedder struct {
	url    string
	client *http.Client
}

func NewHTTPEmbedder(url string) *HTTPEmbedder {
	return &HTTPEmbedder{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

func (h *HTTPEmbedder) Embed(ctx context.Context, samples []float32, sampleRate int) ([]float64, error) {
	body := wav.Encode(samples, sampleRate)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, data)
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("embedding service returned empty vector")
	}
	return parsed.Embedding, nil
}
