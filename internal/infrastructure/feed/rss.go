package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"nexnews/internal/config"
	"nexnews/internal/domain"
	"nexnews/internal/ports"
)

const (
	// Reddit rejects default Go user agents with 403.
	userAgent = "NEXNewsBot/1.0 (AI-powered news aggregator)"

	maxExcerptLen = 500
)

// RSSSource collects candidate records from configured RSS/Atom feeds.
// A feed that is unreachable or malformed is logged and skipped so one bad
// source never aborts the run for the others.
type RSSSource struct {
	feeds        []config.FeedConfig
	parser       *gofeed.Parser
	itemsPerFeed int
	logger       *slog.Logger
}

var _ ports.FeedSource = (*RSSSource)(nil)

// NewRSSSource wires an HTTP client; itemsPerFeed caps entries taken from
// each feed per cycle and defaults to 15.
func NewRSSSource(feeds []config.FeedConfig, client *http.Client, itemsPerFeed int, log *slog.Logger) *RSSSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if itemsPerFeed <= 0 {
		itemsPerFeed = 15
	}

	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = userAgent

	return &RSSSource{
		feeds:        feeds,
		parser:       parser,
		itemsPerFeed: itemsPerFeed,
		logger:       log,
	}
}

// Collect fetches every configured feed and returns the aggregated
// candidates. Ordering is irrelevant; downstream dedup is keyed by link.
func (s *RSSSource) Collect(ctx context.Context) ([]domain.Candidate, error) {
	var aggregated []domain.Candidate

	for _, fc := range s.feeds {
		parsed, err := s.parser.ParseURLWithContext(fc.URL, ctx)
		if err != nil {
			s.warn("feed unavailable, skipping", "feed", fc.Name, "url", fc.URL, "error", err)
			continue
		}
		if len(parsed.Items) == 0 {
			s.warn("feed has no entries", "feed", fc.Name, "url", fc.URL)
			continue
		}

		source := sourceLabel(fc.URL, parsed.Title)

		items := parsed.Items
		if len(items) > s.itemsPerFeed {
			items = items[:s.itemsPerFeed]
		}

		for _, item := range items {
			if item.Link == "" || item.Title == "" {
				continue
			}

			var publishedAt time.Time
			if item.PublishedParsed != nil {
				publishedAt = item.PublishedParsed.UTC()
			}

			aggregated = append(aggregated, domain.Candidate{
				SourceLink:     item.Link,
				Title:          strings.TrimSpace(item.Title),
				ContentExcerpt: buildExcerpt(item),
				SourceName:     source,
				PublishedAt:    publishedAt,
			})
		}

		s.debug("feed collected", "feed", fc.Name, "items", len(items))
	}

	s.debug("collection done", "total_candidates", len(aggregated))
	return aggregated, nil
}

// buildExcerpt picks the richest text field the feed offers and strips any
// embedded HTML markup.
func buildExcerpt(item *gofeed.Item) string {
	raw := item.Description
	if raw == "" {
		raw = item.Content
	}

	text := stripHTML(raw)
	if len(text) > maxExcerptLen {
		text = text[:maxExcerptLen]
	}
	return strings.TrimSpace(text)
}

func stripHTML(raw string) string {
	if raw == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// sourceLabel derives a stable source name: subreddit feeds are labeled by
// subreddit, everything else by feed title.
func sourceLabel(feedURL, feedTitle string) string {
	if strings.Contains(feedURL, "reddit.com/r/") {
		parts := strings.SplitN(feedURL, "/r/", 2)
		if len(parts) == 2 {
			sub := strings.SplitN(parts[1], "/", 2)[0]
			if sub != "" {
				return fmt.Sprintf("reddit:r/%s", sub)
			}
		}
		return "rss:reddit"
	}
	if feedTitle != "" {
		return fmt.Sprintf("rss:%s", feedTitle)
	}
	return "rss:unknown"
}

func (s *RSSSource) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *RSSSource) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
