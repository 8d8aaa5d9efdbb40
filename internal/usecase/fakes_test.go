package usecase

import (
	"context"
	"sort"
	"sync"

	"nexnews/internal/domain"
	"nexnews/internal/ports"
)

type fakeSource struct {
	candidates []domain.Candidate
	err        error
}

var _ ports.FeedSource = (*fakeSource)(nil)

func (f *fakeSource) Collect(ctx context.Context) ([]domain.Candidate, error) {
	return f.candidates, f.err
}

type fakeRepo struct {
	mu       sync.Mutex
	articles map[string]domain.Article
	byLink   map[string]string

	insertErr error
	existsErr error
	updateErr error

	lastListLimit int
	// statusHook observes UpdateEmbeddingStatus calls before they apply.
	statusHook func(id string, status domain.EmbeddingStatus)
}

var _ ports.ArticleRepository = (*fakeRepo)(nil)

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		articles: make(map[string]domain.Article),
		byLink:   make(map[string]string),
	}
}

func (f *fakeRepo) InsertIfAbsent(ctx context.Context, article domain.Article) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return false, f.insertErr
	}
	if _, ok := f.byLink[article.SourceLink]; ok {
		return false, nil
	}
	f.articles[article.ID] = article
	f.byLink[article.SourceLink] = article.ID
	return true, nil
}

func (f *fakeRepo) ExistsByLink(ctx context.Context, sourceLink string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.byLink[sourceLink]
	return ok, nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id string) (domain.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	article, ok := f.articles[id]
	if !ok {
		return domain.Article{}, domain.ErrArticleNotFound
	}
	return article, nil
}

func (f *fakeRepo) UpdateClassification(ctx context.Context, id string, category domain.Category, confidence float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	article, ok := f.articles[id]
	if !ok {
		return domain.ErrArticleNotFound
	}
	if article.Category == domain.CategoryUnclassified || article.Category == "" {
		article.Category = category
		article.Confidence = confidence
		f.articles[id] = article
	}
	return nil
}

func (f *fakeRepo) UpdateEmbeddingStatus(ctx context.Context, id string, status domain.EmbeddingStatus) error {
	if f.statusHook != nil {
		f.statusHook(id, status)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	article, ok := f.articles[id]
	if !ok {
		return domain.ErrArticleNotFound
	}
	article.EmbeddingStatus = status
	f.articles[id] = article
	return nil
}

func (f *fakeRepo) sorted() []domain.Article {
	list := make([]domain.Article, 0, len(f.articles))
	for _, a := range f.articles {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].PublishedAt.After(list[j].PublishedAt)
	})
	return list
}

func (f *fakeRepo) ListRecent(ctx context.Context, limit int) ([]domain.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastListLimit = limit
	list := f.sorted()
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (f *fakeRepo) ListByCategory(ctx context.Context, category domain.Category, limit int) ([]domain.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastListLimit = limit
	var list []domain.Article
	for _, a := range f.sorted() {
		if a.Category == category {
			list = append(list, a)
		}
	}
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (f *fakeRepo) ListByIDs(ctx context.Context, ids []string) ([]domain.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []domain.Article
	for _, id := range ids {
		if a, ok := f.articles[id]; ok {
			list = append(list, a)
		}
	}
	return list, nil
}

func (f *fakeRepo) ListMissingEmbeddings(ctx context.Context) ([]domain.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []domain.Article
	for _, a := range f.articles {
		if a.EmbeddingStatus != domain.EmbeddingEmbedded {
			list = append(list, a)
		}
	}
	return list, nil
}

func (f *fakeRepo) CountsByCategory(ctx context.Context) (map[domain.Category]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[domain.Category]int64)
	for _, a := range f.articles {
		counts[a.Category]++
	}
	return counts, nil
}

func (f *fakeRepo) CountsByEmbeddingStatus(ctx context.Context) (map[domain.EmbeddingStatus]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[domain.EmbeddingStatus]int64)
	for _, a := range f.articles {
		counts[a.EmbeddingStatus]++
	}
	return counts, nil
}

func (f *fakeRepo) byLinkArticle(link string) (domain.Article, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byLink[link]
	if !ok {
		return domain.Article{}, false
	}
	return f.articles[id], true
}

type fakeClassifier struct {
	fn    func(title, excerpt string) (domain.Category, float64, error)
	calls int
	mu    sync.Mutex
}

var _ ports.Classifier = (*fakeClassifier)(nil)

func (f *fakeClassifier) Classify(ctx context.Context, title, excerpt string) (domain.Category, float64, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(title, excerpt)
}

type fakeEmbedder struct {
	fn func(text string) ([]float32, error)
}

var _ ports.Embedder = (*fakeEmbedder)(nil)

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.fn != nil {
		return f.fn(text)
	}
	return make([]float32, domain.EmbeddingDimensions), nil
}

type fakeIndex struct {
	mu        sync.Mutex
	records   map[string]domain.VectorRecord
	upsertErr error

	// matches is the preset ranked result for Search; entries whose record
	// category does not satisfy the filter are dropped, mimicking the
	// server-side pre-filter.
	matches []domain.Match

	lastSearchCategory domain.Category
	lastSearchK        int
}

var _ ports.VectorIndex = (*fakeIndex)(nil)

func newFakeIndex() *fakeIndex {
	return &fakeIndex{records: make(map[string]domain.VectorRecord)}
}

func (f *fakeIndex) EnsureCollection(ctx context.Context) error { return nil }

func (f *fakeIndex) Upsert(ctx context.Context, record domain.VectorRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.records[record.ArticleID] = record
	return nil
}

func (f *fakeIndex) Search(ctx context.Context, vector []float32, category domain.Category, k int) ([]domain.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSearchCategory = category
	f.lastSearchK = k

	var out []domain.Match
	for _, m := range f.matches {
		if category != "" {
			record, ok := f.records[m.ArticleID]
			if !ok || record.Category != category {
				continue
			}
		}
		out = append(out, m)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

func (f *fakeIndex) Count(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.records)), nil
}

func (f *fakeIndex) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[id]
	return ok
}
