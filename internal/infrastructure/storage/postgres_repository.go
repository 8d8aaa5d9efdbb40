package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"nexnews/internal/domain"
	"nexnews/internal/ports"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const articleColumns = "id, source_link, title, content_excerpt, source_name, category, confidence, embedding_status, published_at, ingested_at"

// PostgresRepository persists articles into Postgres.
type PostgresRepository struct {
	db *sql.DB
}

var _ ports.ArticleRepository = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the articles table and its indexes if absent.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS articles (
    id               UUID PRIMARY KEY,
    source_link      TEXT NOT NULL UNIQUE,
    title            TEXT NOT NULL,
    content_excerpt  TEXT NOT NULL DEFAULT '',
    source_name      TEXT NOT NULL,
    category         TEXT NOT NULL DEFAULT 'Unclassified',
    confidence       DOUBLE PRECISION NOT NULL DEFAULT 0,
    embedding_status TEXT NOT NULL DEFAULT 'pending',
    published_at     TIMESTAMPTZ,
    ingested_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_articles_category ON articles (category);
CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles (published_at DESC NULLS LAST)`

	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// InsertIfAbsent creates the article unless its source link already exists.
// The unique constraint on source_link is the final dedup backstop, so the
// first-seen record always wins.
func (r *PostgresRepository) InsertIfAbsent(ctx context.Context, article domain.Article) (bool, error) {
	query, args, err := psql.Insert("articles").
		Columns("id", "source_link", "title", "content_excerpt", "source_name",
			"category", "confidence", "embedding_status", "published_at", "ingested_at").
		Values(article.ID, article.SourceLink, article.Title, article.ContentExcerpt, article.SourceName,
			article.Category, article.Confidence, article.EmbeddingStatus, nullableTime(article.PublishedAt), article.IngestedAt).
		Suffix("ON CONFLICT (source_link) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert article: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ExistsByLink reports whether a source link is already known.
func (r *PostgresRepository) ExistsByLink(ctx context.Context, sourceLink string) (bool, error) {
	query, args, err := psql.Select("1").
		From("articles").
		Where(sq.Eq{"source_link": sourceLink}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}

	var one int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query link: %w", err)
	}
	return true, nil
}

// GetByID fetches one article or domain.ErrArticleNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (domain.Article, error) {
	query, args, err := psql.Select(articleColumns).
		From("articles").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.Article{}, fmt.Errorf("build get query: %w", err)
	}

	article, err := scanArticle(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Article{}, domain.ErrArticleNotFound
	}
	if err != nil {
		return domain.Article{}, fmt.Errorf("get article %s: %w", id, err)
	}
	return article, nil
}

// UpdateClassification records category and confidence exactly once. The
// Unclassified guard keeps the category transition monotone.
func (r *PostgresRepository) UpdateClassification(ctx context.Context, id string, category domain.Category, confidence float64) error {
	query, args, err := psql.Update("articles").
		Set("category", category).
		Set("confidence", confidence).
		Where(sq.Eq{"id": id, "category": domain.CategoryUnclassified}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build classification update: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update classification %s: %w", id, err)
	}
	return nil
}

// UpdateEmbeddingStatus flips the embedding state of an article.
func (r *PostgresRepository) UpdateEmbeddingStatus(ctx context.Context, id string, status domain.EmbeddingStatus) error {
	query, args, err := psql.Update("articles").
		Set("embedding_status", status).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build status update: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update embedding status %s: %w", id, err)
	}
	return nil
}

// ListRecent returns the newest articles by publish date.
func (r *PostgresRepository) ListRecent(ctx context.Context, limit int) ([]domain.Article, error) {
	builder := psql.Select(articleColumns).
		From("articles").
		OrderBy("published_at DESC NULLS LAST", "ingested_at DESC").
		Limit(uint64(limit))

	return r.queryArticles(ctx, builder)
}

// ListByCategory filters by exact category, newest first.
func (r *PostgresRepository) ListByCategory(ctx context.Context, category domain.Category, limit int) ([]domain.Article, error) {
	builder := psql.Select(articleColumns).
		From("articles").
		Where(sq.Eq{"category": category}).
		OrderBy("published_at DESC NULLS LAST", "ingested_at DESC").
		Limit(uint64(limit))

	return r.queryArticles(ctx, builder)
}

// ListByIDs fetches the given articles; missing ids are simply absent from
// the result.
func (r *PostgresRepository) ListByIDs(ctx context.Context, ids []string) ([]domain.Article, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	builder := psql.Select(articleColumns).
		From("articles").
		Where(sq.Expr("id = ANY(?)", pq.Array(ids)))

	return r.queryArticles(ctx, builder)
}

// ListMissingEmbeddings returns articles whose vector never reached the
// index, oldest first so startup re-embedding drains the backlog in order.
func (r *PostgresRepository) ListMissingEmbeddings(ctx context.Context) ([]domain.Article, error) {
	builder := psql.Select(articleColumns).
		From("articles").
		Where(sq.NotEq{"embedding_status": domain.EmbeddingEmbedded}).
		OrderBy("ingested_at ASC")

	return r.queryArticles(ctx, builder)
}

// CountsByCategory groups article totals per category.
func (r *PostgresRepository) CountsByCategory(ctx context.Context) (map[domain.Category]int64, error) {
	query, args, err := psql.Select("category", "COUNT(*)").
		From("articles").
		GroupBy("category").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build category counts: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query category counts: %w", err)
	}
	defer rows.Close()

	result := make(map[domain.Category]int64)
	for rows.Next() {
		var category string
		var count int64
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("scan category count: %w", err)
		}
		result[domain.Category(category)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return result, nil
}

// CountsByEmbeddingStatus groups article totals per embedding state.
func (r *PostgresRepository) CountsByEmbeddingStatus(ctx context.Context) (map[domain.EmbeddingStatus]int64, error) {
	query, args, err := psql.Select("embedding_status", "COUNT(*)").
		From("articles").
		GroupBy("embedding_status").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build status counts: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query status counts: %w", err)
	}
	defer rows.Close()

	result := make(map[domain.EmbeddingStatus]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		result[domain.EmbeddingStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) queryArticles(ctx context.Context, builder sq.SelectBuilder) ([]domain.Article, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	var articles []domain.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return articles, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (domain.Article, error) {
	var (
		article     domain.Article
		publishedAt sql.NullTime
	)

	err := row.Scan(
		&article.ID,
		&article.SourceLink,
		&article.Title,
		&article.ContentExcerpt,
		&article.SourceName,
		&article.Category,
		&article.Confidence,
		&article.EmbeddingStatus,
		&publishedAt,
		&article.IngestedAt,
	)
	if err != nil {
		return domain.Article{}, err
	}

	if publishedAt.Valid {
		article.PublishedAt = publishedAt.Time
	}
	return article, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
