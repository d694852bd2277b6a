package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPEmbedder calls an Ollama-style embeddings endpoint
// (POST {model, prompt} → {embedding: [...]}).
type HTTPEmbedder struct {
	endpoint  string
	model     string
	dimension int
	client    *http.Client
}

// NewHTTPEmbedder creates an embedder for the given endpoint and model.
// The timeout bounds each request end to end.
func NewHTTPEmbedder(endpoint, model string, dimension int, timeout time.Duration) *HTTPEmbedder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPEmbedder{
		endpoint:  endpoint,
		model:     model,
		dimension: dimension,
		client:    &http.Client{Timeout: timeout},
	}
}

// Dimension returns the configured output dimension.
func (e *HTTPEmbedder) Dimension() int { return e.dimension }

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed requests a vector for the text. Any transport error, non-2xx
// status, or dimension mismatch wraps ErrEmbedderUnavailable.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request: %v", ErrEmbedderUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrEmbedderUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrEmbedderUnavailable, resp.StatusCode)
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrEmbedderUnavailable, err)
	}
	if len(decoded.Embedding) != e.dimension {
		return nil, fmt.Errorf("%w: expected dimension %d, got %d",
			ErrEmbedderUnavailable, e.dimension, len(decoded.Embedding))
	}
	return decoded.Embedding, nil
}
