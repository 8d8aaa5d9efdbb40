package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"nexnews/internal/domain"
	"nexnews/internal/ports"
)

const (
	// DefaultSearchLimit applies when a request leaves limit unset.
	DefaultSearchLimit = 20
	// MaxSearchLimit caps any single result set.
	MaxSearchLimit = 100
)

// SearchRequest carries the hybrid-search parameters. All fields are
// optional; an empty request returns the most recent articles.
type SearchRequest struct {
	Prompt   string
	Category string
	Limit    int
}

// QueryEngine resolves search requests against the article store and the
// vector index. It only ever reads; all writes happen on the ingestion path.
type QueryEngine struct {
	repository ports.ArticleRepository
	index      ports.VectorIndex
	embedder   ports.Embedder
	logger     *slog.Logger
}

// NewQueryEngine constructs the read-side component.
func NewQueryEngine(repository ports.ArticleRepository, index ports.VectorIndex, embedder ports.Embedder, log *slog.Logger) *QueryEngine {
	return &QueryEngine{
		repository: repository,
		index:      index,
		embedder:   embedder,
		logger:     log,
	}
}

// Search returns up to limit articles, most relevant (prompt set) or most
// recent (no prompt) first.
func (q *QueryEngine) Search(ctx context.Context, req SearchRequest) ([]domain.Article, error) {
	limit := clampLimit(req.Limit)

	var category domain.Category
	if req.Category != "" {
		parsed, ok := domain.ParseCategory(req.Category)
		if !ok {
			return nil, fmt.Errorf("%w: unknown category %q", domain.ErrInvalidQuery, req.Category)
		}
		category = parsed
	}

	if req.Prompt == "" {
		if category == "" {
			return q.repository.ListRecent(ctx, limit)
		}
		return q.repository.ListByCategory(ctx, category, limit)
	}

	return q.semanticSearch(ctx, req.Prompt, category, limit)
}

// semanticSearch embeds the prompt with the same model used at ingestion and
// ranks articles by vector similarity. A category, when present, restricts
// the index candidate set before ranking so the result is not under-filled
// by a post-filter pass.
func (q *QueryEngine) semanticSearch(ctx context.Context, prompt string, category domain.Category, limit int) ([]domain.Article, error) {
	vector, err := q.embedder.Embed(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("embed prompt: %w", err)
	}

	matches, err := q.index.Search(ctx, vector, category, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	ids := make([]string, len(matches))
	scores := make(map[string]float64, len(matches))
	for i, m := range matches {
		ids[i] = m.ArticleID
		scores[m.ArticleID] = m.Score
	}

	articles, err := q.repository.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load matched articles: %w", err)
	}

	// An id known to the index but missing from the store should not occur
	// under the invariants; ListByIDs just omits it and the hit is dropped.
	if q.logger != nil && len(articles) < len(matches) {
		q.logger.Warn("vector index referenced missing articles",
			"matches", len(matches), "found", len(articles))
	}

	sort.SliceStable(articles, func(i, j int) bool {
		si, sj := scores[articles[i].ID], scores[articles[j].ID]
		if si != sj {
			return si > sj
		}
		return articles[i].PublishedAt.After(articles[j].PublishedAt)
	})

	if len(articles) > limit {
		articles = articles[:limit]
	}
	return articles, nil
}

// Get returns one article by id or domain.ErrArticleNotFound.
func (q *QueryEngine) Get(ctx context.Context, id string) (domain.Article, error) {
	if id == "" {
		return domain.Article{}, fmt.Errorf("%w: empty article id", domain.ErrInvalidQuery)
	}
	return q.repository.GetByID(ctx, id)
}

// Stats assembles the health/statistics readout from both stores.
func (q *QueryEngine) Stats(ctx context.Context) (domain.Stats, error) {
	byCategory, err := q.repository.CountsByCategory(ctx)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("category counts: %w", err)
	}

	byStatus, err := q.repository.CountsByEmbeddingStatus(ctx)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("embedding status counts: %w", err)
	}

	var total int64
	for _, count := range byCategory {
		total += count
	}

	vectorCount, err := q.index.Count(ctx)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("vector count: %w", err)
	}

	return domain.Stats{
		TotalArticles:     total,
		ByCategory:        byCategory,
		ByEmbeddingStatus: byStatus,
		VectorCount:       vectorCount,
	}, nil
}

// clampLimit keeps the result size inside [1, MaxSearchLimit]; zero or
// negative means "unset" and takes the default.
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		return MaxSearchLimit
	}
	return limit
}
