package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"nexnews/internal/domain"
	"nexnews/internal/ports"
)

// PipelineDeps wires all driven adapters into the ingestion pipeline.
type PipelineDeps struct {
	Source     ports.FeedSource
	Repository ports.ArticleRepository
	Classifier ports.Classifier
	Embedder   ports.Embedder
	Index      ports.VectorIndex
	Logger     *slog.Logger
	// Workers bounds concurrent per-article enrichment; <=0 picks
	// NumCPU/2 with a minimum of 1.
	Workers int
}

// Pipeline implements the collect → dedup → classify → embed workflow.
//
// Candidates are enriched concurrently, but each article is owned by exactly
// one worker task for its whole classify-then-write, embed-then-write
// sequence, so per-article writes never interleave.
type Pipeline struct {
	source     ports.FeedSource
	repository ports.ArticleRepository
	classifier ports.Classifier
	embedder   ports.Embedder
	index      ports.VectorIndex
	logger     *slog.Logger
	pool       *ants.Pool
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) (*Pipeline, error) {
	if deps.Repository == nil {
		return nil, fmt.Errorf("article repository required")
	}
	if deps.Index == nil {
		return nil, fmt.Errorf("vector index required")
	}

	workers := deps.Workers
	if workers <= 0 {
		workers = runtime.NumCPU() / 2
		if workers < 1 {
			workers = 1
		}
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	return &Pipeline{
		source:     deps.Source,
		repository: deps.Repository,
		classifier: deps.Classifier,
		embedder:   deps.Embedder,
		index:      deps.Index,
		logger:     deps.Logger,
		pool:       pool,
	}, nil
}

// Close releases the worker pool.
func (p *Pipeline) Close() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// Run executes one collection cycle. Per-article AI failures degrade
// gracefully and never abort the cycle; only store unavailability does.
func (p *Pipeline) Run(ctx context.Context) error {
	start := time.Now()

	candidates, err := p.source.Collect(ctx)
	if err != nil {
		return fmt.Errorf("collect candidates: %w", err)
	}
	p.info("collection cycle started", "candidates", len(candidates))

	// One link may arrive from several feeds in the same run; the first
	// occurrence wins, matching the first-seen-title rule.
	seen := make(map[string]struct{}, len(candidates))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		runErr   error
		ingested int
	)

	fail := func(err error) {
		mu.Lock()
		if runErr == nil {
			runErr = err
		}
		mu.Unlock()
	}

	for _, candidate := range candidates {
		if _, dup := seen[candidate.SourceLink]; dup {
			continue
		}
		seen[candidate.SourceLink] = struct{}{}

		// Dedup gate before any metered AI call.
		exists, err := p.repository.ExistsByLink(ctx, candidate.SourceLink)
		if err != nil {
			fail(fmt.Errorf("dedup lookup %s: %w", candidate.SourceLink, err))
			break
		}
		if exists {
			p.debug("duplicate candidate skipped", "link", candidate.SourceLink)
			continue
		}

		cand := candidate
		wg.Add(1)
		if err := p.pool.Submit(func() {
			defer wg.Done()
			created, err := p.ingestCandidate(ctx, cand)
			if err != nil {
				fail(err)
				return
			}
			if created {
				mu.Lock()
				ingested++
				mu.Unlock()
			}
		}); err != nil {
			wg.Done()
			fail(fmt.Errorf("submit candidate: %w", err))
			break
		}
	}

	wg.Wait()

	if runErr != nil {
		return fmt.Errorf("collection cycle aborted: %w", runErr)
	}

	p.info("collection cycle completed", "new_articles", ingested, "elapsed", time.Since(start).Round(time.Millisecond).String())
	return nil
}

// ingestCandidate runs the full enrichment sequence for one new article.
// The returned error is reserved for store failures; AI failures degrade.
func (p *Pipeline) ingestCandidate(ctx context.Context, candidate domain.Candidate) (bool, error) {
	article := domain.Article{
		ID:              uuid.NewString(),
		SourceLink:      candidate.SourceLink,
		Title:           candidate.Title,
		ContentExcerpt:  candidate.ContentExcerpt,
		SourceName:      candidate.SourceName,
		Category:        domain.CategoryUnclassified,
		EmbeddingStatus: domain.EmbeddingPending,
		PublishedAt:     candidate.PublishedAt,
		IngestedAt:      time.Now().UTC(),
	}

	created, err := p.repository.InsertIfAbsent(ctx, article)
	if err != nil {
		return false, fmt.Errorf("insert article %s: %w", article.SourceLink, err)
	}
	if !created {
		// Lost an insert race with another writer; the stored record wins.
		p.debug("duplicate insert skipped", "link", article.SourceLink)
		return false, nil
	}

	article.Category, article.Confidence = p.classify(ctx, article)
	if err := p.repository.UpdateClassification(ctx, article.ID, article.Category, article.Confidence); err != nil {
		return false, err
	}

	if err := p.embedArticle(ctx, article); err != nil {
		return false, err
	}

	p.info("article ingested",
		"title", shorten(article.Title, 50),
		"category", article.Category,
		"source", article.SourceName)
	return true, nil
}

// classify resolves the category with the retrying classifier; when retries
// are exhausted it falls back to Other with zero confidence so the article
// never stays Unclassified.
func (p *Pipeline) classify(ctx context.Context, article domain.Article) (domain.Category, float64) {
	if p.classifier == nil {
		return domain.CategoryOther, 0
	}

	category, confidence, err := p.classifier.Classify(ctx, article.Title, article.ContentExcerpt)
	if err != nil {
		p.warn("classification degraded to fallback",
			"title", shorten(article.Title, 50), "error", err)
		return domain.CategoryOther, 0
	}
	return category, confidence
}

// embedArticle produces and indexes the vector. The vector is written to the
// index before the status flips to embedded, so a reader can never observe
// embedded without a queryable vector. The returned error is reserved for
// store failures.
func (p *Pipeline) embedArticle(ctx context.Context, article domain.Article) error {
	text := article.Title
	if article.ContentExcerpt != "" {
		text += ". " + article.ContentExcerpt
	}

	var vector []float32
	var err error
	if p.embedder != nil {
		vector, err = p.embedder.Embed(ctx, text)
	} else {
		err = fmt.Errorf("no embedder configured")
	}
	if err != nil {
		p.warn("embedding failed, article stays category-searchable",
			"title", shorten(article.Title, 50), "error", err)
		return p.markEmbeddingFailed(ctx, article.ID)
	}

	record := domain.VectorRecord{
		ArticleID: article.ID,
		Vector:    vector,
		Category:  article.Category,
	}
	if err := p.index.Upsert(ctx, record); err != nil {
		p.warn("vector upsert failed", "article_id", article.ID, "error", err)
		return p.markEmbeddingFailed(ctx, article.ID)
	}

	if err := p.repository.UpdateEmbeddingStatus(ctx, article.ID, domain.EmbeddingEmbedded); err != nil {
		return fmt.Errorf("flip embedding status %s: %w", article.ID, err)
	}
	return nil
}

func (p *Pipeline) markEmbeddingFailed(ctx context.Context, id string) error {
	if err := p.repository.UpdateEmbeddingStatus(ctx, id, domain.EmbeddingFailed); err != nil {
		return fmt.Errorf("mark embedding failed %s: %w", id, err)
	}
	return nil
}

// SyncMissingEmbeddings re-embeds articles whose vector never reached the
// index. Run at startup so a crash between insert and upsert heals itself.
func (p *Pipeline) SyncMissingEmbeddings(ctx context.Context) error {
	articles, err := p.repository.ListMissingEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("list missing embeddings: %w", err)
	}
	if len(articles) == 0 {
		return nil
	}

	p.info("re-embedding articles without vectors", "count", len(articles))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		runErr error
	)

	for _, article := range articles {
		art := article
		wg.Add(1)
		if err := p.pool.Submit(func() {
			defer wg.Done()
			// A crash between insert and classification can leave an
			// article Unclassified; finish that step before embedding.
			if !art.Classified() {
				art.Category, art.Confidence = p.classify(ctx, art)
				if err := p.repository.UpdateClassification(ctx, art.ID, art.Category, art.Confidence); err != nil {
					mu.Lock()
					if runErr == nil {
						runErr = err
					}
					mu.Unlock()
					return
				}
			}
			if err := p.embedArticle(ctx, art); err != nil {
				mu.Lock()
				if runErr == nil {
					runErr = err
				}
				mu.Unlock()
			}
		}); err != nil {
			wg.Done()
			mu.Lock()
			if runErr == nil {
				runErr = fmt.Errorf("submit re-embed: %w", err)
			}
			mu.Unlock()
			break
		}
	}

	wg.Wait()
	return runErr
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func (p *Pipeline) info(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}

func (p *Pipeline) debug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}
