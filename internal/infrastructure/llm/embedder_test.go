package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexnews/internal/config"
	"nexnews/internal/domain"
)

func embedBody(t *testing.T, dims int) []byte {
	t.Helper()
	vector := make([]float32, dims)
	for i := range vector {
		vector[i] = float32(i) / float32(dims)
	}
	body, err := json.Marshal(map[string]any{
		"data": []map[string]any{{"embedding": vector}},
	})
	require.NoError(t, err)
	return body
}

func newTestEmbedder(baseURL string) *EmbedderClient {
	e := NewEmbedder(config.OpenAIConfig{
		BaseURL:        baseURL,
		APIKey:         "test-key",
		EmbeddingModel: "text-embedding-3-small",
	}, nil)
	e.baseDelay = time.Millisecond
	return e
}

func TestEmbedSuccess(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)
		assert.Equal(t, "some article text", req.Input)

		_, _ = w.Write(embedBody(t, domain.EmbeddingDimensions))
	}))
	defer server.Close()

	e := newTestEmbedder(server.URL)

	vector, err := e.Embed(context.Background(), "some article text")
	require.NoError(t, err)
	assert.Len(t, vector, domain.EmbeddingDimensions)
}

func TestEmbedTruncatesLongInput(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Input, maxEmbedInputLen)

		_, _ = w.Write(embedBody(t, domain.EmbeddingDimensions))
	}))
	defer server.Close()

	e := newTestEmbedder(server.URL)

	_, err := e.Embed(context.Background(), strings.Repeat("x", maxEmbedInputLen+500))
	require.NoError(t, err)
}

func TestEmbedRejectsWrongDimension(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(embedBody(t, 8))
	}))
	defer server.Close()

	e := newTestEmbedder(server.URL)

	_, err := e.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected embedding dimension")
}

func TestEmbedRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write(embedBody(t, domain.EmbeddingDimensions))
	}))
	defer server.Close()

	e := newTestEmbedder(server.URL)

	vector, err := e.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Len(t, vector, domain.EmbeddingDimensions)
	assert.Equal(t, int32(3), calls.Load())
}
