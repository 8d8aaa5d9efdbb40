package ports

import (
	"context"
	"time"

	"nexnews/internal/domain"
)

// FeedSource pulls candidate records from all configured feeds. A single
// unreachable or malformed feed is skipped, not propagated.
type FeedSource interface {
	Collect(ctx context.Context) ([]domain.Candidate, error)
}

// ArticleRepository is the durable relational store of articles.
type ArticleRepository interface {
	// InsertIfAbsent creates the article when its source link is unknown.
	// On a duplicate link it returns created=false and leaves the stored
	// record untouched.
	InsertIfAbsent(ctx context.Context, article domain.Article) (created bool, err error)
	ExistsByLink(ctx context.Context, sourceLink string) (bool, error)
	GetByID(ctx context.Context, id string) (domain.Article, error)
	UpdateClassification(ctx context.Context, id string, category domain.Category, confidence float64) error
	UpdateEmbeddingStatus(ctx context.Context, id string, status domain.EmbeddingStatus) error
	ListRecent(ctx context.Context, limit int) ([]domain.Article, error)
	ListByCategory(ctx context.Context, category domain.Category, limit int) ([]domain.Article, error)
	ListByIDs(ctx context.Context, ids []string) ([]domain.Article, error)
	ListMissingEmbeddings(ctx context.Context) ([]domain.Article, error)
	CountsByCategory(ctx context.Context) (map[domain.Category]int64, error)
	CountsByEmbeddingStatus(ctx context.Context) (map[domain.EmbeddingStatus]int64, error)
}

// Classifier assigns one of the fixed categories plus a confidence in [0,1].
// Implementations retry transient upstream failures internally; an error
// means retries are exhausted and the caller must apply the fallback.
type Classifier interface {
	Classify(ctx context.Context, title, excerpt string) (domain.Category, float64, error)
}

// Embedder produces the fixed-dimension semantic vector for article text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is the similarity-searchable store of article embeddings.
type VectorIndex interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, record domain.VectorRecord) error
	// Search returns up to k matches nearest to the vector, most similar
	// first. A non-empty category restricts the candidate set before
	// ranking (pre-filter).
	Search(ctx context.Context, vector []float32, category domain.Category, k int) ([]domain.Match, error)
	Count(ctx context.Context) (int64, error)
}

// Scheduler controls when ingestion cycles execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
