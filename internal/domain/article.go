package domain

import "time"

// Category is the fixed topic taxonomy articles are classified into.
type Category string

const (
	// CategoryUnclassified is the transient state before classification.
	CategoryUnclassified Category = "Unclassified"

	CategoryCybersecurity Category = "Cybersecurity"
	CategoryAI            Category = "Artificial Intelligence & Emerging Tech"
	CategorySoftware      Category = "Software & Development"
	CategoryHardware      Category = "Hardware & Devices"
	CategoryBusiness      Category = "Tech Industry & Business"
	CategoryOther         Category = "Other"
)

// Categories lists the assignable categories, excluding Unclassified.
var Categories = []Category{
	CategoryCybersecurity,
	CategoryAI,
	CategorySoftware,
	CategoryHardware,
	CategoryBusiness,
	CategoryOther,
}

// ParseCategory resolves a label to one of the assignable categories.
func ParseCategory(label string) (Category, bool) {
	for _, c := range Categories {
		if string(c) == label {
			return c, true
		}
	}
	return "", false
}

// EmbeddingStatus tracks whether an article's vector made it into the index.
type EmbeddingStatus string

const (
	EmbeddingPending  EmbeddingStatus = "pending"
	EmbeddingEmbedded EmbeddingStatus = "embedded"
	EmbeddingFailed   EmbeddingStatus = "failed"
)

// EmbeddingDimensions is the fixed vector size produced by the embedding
// model and expected by the vector index.
const EmbeddingDimensions = 1536

// Candidate is a freshly fetched feed item, not yet checked against storage.
type Candidate struct {
	SourceLink     string
	Title          string
	ContentExcerpt string
	SourceName     string
	PublishedAt    time.Time
}

// Article is the durable record of an ingested news item.
//
// Category starts as Unclassified and moves exactly once to one of the six
// assignable categories; it is never reverted. Confidence is meaningful only
// once the article is classified.
type Article struct {
	ID              string
	SourceLink      string
	Title           string
	ContentExcerpt  string
	SourceName      string
	Category        Category
	Confidence      float64
	EmbeddingStatus EmbeddingStatus
	PublishedAt     time.Time
	IngestedAt      time.Time
}

// Classified reports whether the article has left the Unclassified state.
func (a Article) Classified() bool {
	return a.Category != CategoryUnclassified && a.Category != ""
}

// VectorRecord is the indexed form of an embedded article: its vector plus
// the denormalized category used as a pre-filter inside the index.
type VectorRecord struct {
	ArticleID string
	Vector    []float32
	Category  Category
}

// Match is a similarity hit returned by the vector index.
type Match struct {
	ArticleID string
	Score     float64
}

// Stats summarizes store contents for the /stats readout.
type Stats struct {
	TotalArticles     int64
	ByCategory        map[Category]int64
	ByEmbeddingStatus map[EmbeddingStatus]int64
	VectorCount       int64
}
