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

// ClassifierClient assigns one of the fixed categories via an
// OpenAI-compatible chat completions endpoint. Transient failures (timeout,
// rate limit, malformed response, unknown category label) are retried with
// exponential backoff; an error return means retries are exhausted.
type ClassifierClient struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
	attempts   int
	baseDelay  time.Duration
	logger     *slog.Logger
}

var _ ports.Classifier = (*ClassifierClient)(nil)

// NewClassifier builds a client from configuration.
func NewClassifier(cfg config.OpenAIConfig, log *slog.Logger) *ClassifierClient {
	return &ClassifierClient{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		model:      cfg.ChatModel,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		attempts:   defaultAttempts,
		baseDelay:  defaultBaseDelay,
		logger:     log,
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat responseFmt   `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFmt struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type classification struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// Classify sends title and excerpt to the model and returns the assigned
// category with a confidence in [0,1].
func (c *ClassifierClient) Classify(ctx context.Context, title, excerpt string) (domain.Category, float64, error) {
	if c.apiKey == "" || c.baseURL == "" || c.model == "" {
		return "", 0, fmt.Errorf("classifier misconfigured")
	}

	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, c.baseDelay, attempt-1); err != nil {
				return "", 0, err
			}
		}

		category, confidence, err := c.classifyOnce(ctx, title, excerpt)
		if err == nil {
			return category, confidence, nil
		}

		lastErr = err
		c.warn("classification attempt failed", "attempt", attempt+1, "title", truncate(title, 50), "error", err)
		if isPermanent(err) {
			break
		}
	}

	return "", 0, fmt.Errorf("classification failed: %w", lastErr)
}

func (c *ClassifierClient) classifyOnce(ctx context.Context, title, excerpt string) (domain.Category, float64, error) {
	content := "Title: " + title
	if excerpt != "" {
		content += "\nSummary: " + excerpt
	}

	labels := make([]string, len(domain.Categories))
	for i, cat := range domain.Categories {
		labels[i] = string(cat)
	}

	system := fmt.Sprintf(`You are a precise news categorization assistant.
Classify the article into exactly ONE of these categories: %s.
Respond with a JSON object: {"category": "<category name>", "confidence": <number between 0 and 1>}.`,
		strings.Join(labels, ", "))

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: content},
		},
		ResponseFormat: responseFmt{Type: "json_object"},
	})
	if err != nil {
		return "", 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("chat completions %s: %s", resp.Status, strings.TrimSpace(string(payload)))
		if !retryableStatus(resp.StatusCode) {
			return "", 0, permanent(err)
		}
		return "", 0, err
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", 0, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", 0, fmt.Errorf("empty choices in response")
	}

	var result classification
	if err := json.Unmarshal([]byte(parsed.Choices[0].Message.Content), &result); err != nil {
		return "", 0, fmt.Errorf("malformed classification payload: %w", err)
	}

	category, ok := domain.ParseCategory(strings.TrimSpace(result.Category))
	if !ok {
		return "", 0, fmt.Errorf("category %q is not in the allowed set", result.Category)
	}

	return category, clamp01(result.Confidence), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (c *ClassifierClient) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
