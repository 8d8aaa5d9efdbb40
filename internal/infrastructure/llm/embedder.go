package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"nexnews/internal/config"
	"nexnews/internal/domain"
	"nexnews/internal/ports"
)

// The embeddings endpoint rejects oversized inputs.
const maxEmbedInputLen = 8000

// EmbedderClient produces fixed-dimension vectors via an OpenAI-compatible
// embeddings endpoint, with the same bounded retry policy as the classifier.
type EmbedderClient struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
	attempts   int
	baseDelay  time.Duration
	logger     *slog.Logger
}

var _ ports.Embedder = (*EmbedderClient)(nil)

// NewEmbedder builds a client from configuration.
func NewEmbedder(cfg config.OpenAIConfig, log *slog.Logger) *EmbedderClient {
	return &EmbedderClient{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		model:      cfg.EmbeddingModel,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		attempts:   defaultAttempts,
		baseDelay:  defaultBaseDelay,
		logger:     log,
	}
}

type embedRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the 1536-dimension vector for the given text.
func (e *EmbedderClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.apiKey == "" || e.baseURL == "" || e.model == "" {
		return nil, fmt.Errorf("embedder misconfigured")
	}

	if len(text) > maxEmbedInputLen {
		text = text[:maxEmbedInputLen]
	}

	var lastErr error
	for attempt := 0; attempt < e.attempts; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, e.baseDelay, attempt-1); err != nil {
				return nil, err
			}
		}

		vector, err := e.embedOnce(ctx, text)
		if err == nil {
			return vector, nil
		}

		lastErr = err
		e.warn("embedding attempt failed", "attempt", attempt+1, "error", err)
		if isPermanent(err) {
			break
		}
	}

	return nil, fmt.Errorf("embedding failed: %w", lastErr)
}

func (e *EmbedderClient) embedOnce(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Input: text, Model: e.model})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("embeddings %s: %s", resp.Status, strings.TrimSpace(string(payload)))
		if !retryableStatus(resp.StatusCode) {
			return nil, permanent(err)
		}
		return nil, err
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("no embedding in response")
	}

	vector := parsed.Data[0].Embedding
	if len(vector) != domain.EmbeddingDimensions {
		return nil, fmt.Errorf("unexpected embedding dimension %d, want %d", len(vector), domain.EmbeddingDimensions)
	}

	return vector, nil
}

func (e *EmbedderClient) warn(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}
