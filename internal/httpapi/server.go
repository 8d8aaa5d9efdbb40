package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"nexnews/internal/domain"
	"nexnews/internal/usecase"
)

// Server exposes the read-side query engine over HTTP. It never writes to
// the stores; ingestion is a separate process.
type Server struct {
	engine *usecase.QueryEngine
	logger *slog.Logger
}

// NewServer wires the query engine into HTTP handlers.
func NewServer(engine *usecase.QueryEngine, log *slog.Logger) *Server {
	return &Server{engine: engine, logger: log}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/news/search", s.handleSearch)
	router.GET("/news/:id", s.handleGet)
	router.GET("/health", s.handleHealth)
	router.GET("/stats", s.handleStats)

	return router
}

type searchRequest struct {
	Prompt   string `json:"prompt"`
	Category string `json:"category"`
	Limit    int    `json:"limit"`
}

type searchResponse struct {
	Count    int           `json:"count"`
	Articles []articleView `json:"articles"`
}

// articleView is the wire form of an article. Confidence is omitted while
// the article is still Unclassified.
type articleView struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	SourceLink      string     `json:"source_link"`
	ContentExcerpt  string     `json:"content_excerpt,omitempty"`
	SourceName      string     `json:"source_name"`
	Category        string     `json:"category"`
	Confidence      *float64   `json:"confidence,omitempty"`
	EmbeddingStatus string     `json:"embedding_status"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
	IngestedAt      time.Time  `json:"ingested_at"`
}

func toView(a domain.Article) articleView {
	view := articleView{
		ID:              a.ID,
		Title:           a.Title,
		SourceLink:      a.SourceLink,
		ContentExcerpt:  a.ContentExcerpt,
		SourceName:      a.SourceName,
		Category:        string(a.Category),
		EmbeddingStatus: string(a.EmbeddingStatus),
		IngestedAt:      a.IngestedAt,
	}
	if a.Classified() {
		confidence := a.Confidence
		view.Confidence = &confidence
	}
	if !a.PublishedAt.IsZero() {
		publishedAt := a.PublishedAt
		view.PublishedAt = &publishedAt
	}
	return view
}

func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}

	articles, err := s.engine.Search(c.Request.Context(), usecase.SearchRequest{
		Prompt:   req.Prompt,
		Category: req.Category,
		Limit:    req.Limit,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidQuery) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.error("search failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	views := make([]articleView, 0, len(articles))
	for _, a := range articles {
		views = append(views, toView(a))
	}
	c.JSON(http.StatusOK, searchResponse{Count: len(views), Articles: views})
}

func (s *Server) handleGet(c *gin.Context) {
	article, err := s.engine.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrArticleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "article not found"})
			return
		}
		if errors.Is(err, domain.ErrInvalidQuery) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.error("get article failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	c.JSON(http.StatusOK, toView(article))
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.engine.Stats(c.Request.Context())
	if err != nil {
		s.error("stats failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_articles":      stats.TotalArticles,
		"by_category":         stats.ByCategory,
		"by_embedding_status": stats.ByEmbeddingStatus,
		"vector_count":        stats.VectorCount,
	})
}

func (s *Server) error(msg string, err error) {
	if s.logger != nil {
		s.logger.Error(msg, "error", err)
	}
}
