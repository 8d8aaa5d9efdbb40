package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"nexnews/internal/config"
	"nexnews/internal/domain"
	"nexnews/internal/ports"
)

// QdrantIndex is a minimal REST client to Qdrant. It stores one point per
// embedded article, with the denormalized category in the payload so
// category-restricted searches filter before ranking.
type QdrantIndex struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

var _ ports.VectorIndex = (*QdrantIndex)(nil)

// NewQdrantIndex builds a client from configuration.
func NewQdrantIndex(cfg config.QdrantConfig, client *http.Client) *QdrantIndex {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &QdrantIndex{
		url:        strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     client,
	}
}

// EnsureCollection creates the cosine-distance collection if missing.
// Qdrant returns 200 when the collection already exists with this schema.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     domain.EmbeddingDimensions,
			"distance": "Cosine",
		},
	}
	return q.doJSON(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", q.collection), body, nil)
}

// Upsert writes one article point; repeated upserts for the same id
// overwrite in place.
func (q *QdrantIndex) Upsert(ctx context.Context, record domain.VectorRecord) error {
	if len(record.Vector) != domain.EmbeddingDimensions {
		return fmt.Errorf("vector dimension %d, want %d", len(record.Vector), domain.EmbeddingDimensions)
	}

	body := map[string]any{
		"points": []map[string]any{
			{
				"id":     record.ArticleID,
				"vector": record.Vector,
				"payload": map[string]any{
					"category": string(record.Category),
				},
			},
		},
	}
	path := fmt.Sprintf("/collections/%s/points?wait=true", q.collection)
	return q.doJSON(ctx, http.MethodPut, path, body, nil)
}

// Search returns the k nearest points, most similar first. A non-empty
// category becomes a payload must-match filter applied before ranking.
func (q *QdrantIndex) Search(ctx context.Context, vector []float32, category domain.Category, k int) ([]domain.Match, error) {
	if k <= 0 {
		k = 20
	}

	body := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": false,
	}
	if category != "" {
		body["filter"] = map[string]any{
			"must": []map[string]any{
				{"key": "category", "match": map[string]any{"value": string(category)}},
			},
		}
	}

	var resp struct {
		Result []struct {
			ID    string  `json:"id"`
			Score float64 `json:"score"`
		} `json:"result"`
	}

	path := fmt.Sprintf("/collections/%s/points/search", q.collection)
	if err := q.doJSON(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}

	matches := make([]domain.Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		matches = append(matches, domain.Match{ArticleID: r.ID, Score: r.Score})
	}
	return matches, nil
}

// Count returns the number of indexed points.
func (q *QdrantIndex) Count(ctx context.Context) (int64, error) {
	var resp struct {
		Result struct {
			Count int64 `json:"count"`
		} `json:"result"`
	}

	path := fmt.Sprintf("/collections/%s/points/count", q.collection)
	if err := q.doJSON(ctx, http.MethodPost, path, map[string]any{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (q *QdrantIndex) doJSON(ctx context.Context, method, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.url+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("qdrant %s %s failed: %s: %s", method, path, resp.Status, strings.TrimSpace(string(payload)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode qdrant response: %w", err)
		}
	}
	return nil
}
