package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/smartfolder/smartfolder/internal/errors"
)

// Ollama defaults. The host serves the /api/embed endpoint.
const (
	DefaultOllamaHost  = "http://localhost:11434"
	DefaultOllamaModel = "embeddinggemma"

	// OllamaTimeout bounds one embedding request. Cold model loads can
	// take tens of seconds, so this is generous.
	OllamaTimeout = 60 * time.Second
)

// OllamaConfig configures the Ollama embedding client.
type OllamaConfig struct {
	Host    string
	Model   string
	Timeout time.Duration
}

// OllamaEmbedder generates embeddings using Ollama's HTTP API.
type OllamaEmbedder struct {
	client *http.Client
	config OllamaConfig

	mu     sync.RWMutex
	closed bool
	dims   int
}

var _ Embedder = (*OllamaEmbedder)(nil)

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaEmbedder creates an Ollama embedding client. It does not
// contact the server; the first Embed call does.
func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = OllamaTimeout
	}

	// Per-request timeouts come from context, not the client, so a
	// caller-supplied deadline is never silently overridden.
	return &OllamaEmbedder{
		client: &http.Client{},
		config: cfg,
	}
}

// Embed generates an embedding for a single text. Transient failures
// are retried with backoff before giving up.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, errors.EmbeddingError("embedder is closed", nil)
	}
	e.mu.RUnlock()

	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	emb, err := errors.RetryWithResult(ctx, errors.DefaultRetryConfig(), func() ([]float32, error) {
		return e.doEmbed(ctx, text)
	})
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.dims == 0 {
		e.dims = len(emb)
	}
	e.mu.Unlock()

	return emb, nil
}

func (e *OllamaEmbedder) doEmbed(ctx context.Context, text string) ([]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.config.Model, Input: text})
	if err != nil {
		return nil, errors.EmbeddingError("failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, errors.EmbeddingError("failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errors.EmbeddingError("embedding request failed", err).WithDetail("host", e.config.Host)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.EmbeddingError("embedding service returned an error", nil).
			WithDetail("status", resp.Status).
			WithDetail("body", string(respBody))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.EmbeddingError("failed to decode response", err)
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0]) == 0 {
		return nil, errors.EmbeddingError("empty embedding returned", nil)
	}

	return result.Embeddings[0], nil
}

// Dimensions returns the embedding dimension, or 0 before the first
// successful Embed call.
func (e *OllamaEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns the configured model identifier.
func (e *OllamaEmbedder) ModelName() string {
	return e.config.Model
}

// Available probes the Ollama server with a short timeout.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Close releases resources.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.client.CloseIdleConnections()
	return nil
}
