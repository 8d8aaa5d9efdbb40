package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"nexnews/internal/config"
)

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example Tech News</title>
    <item>
      <title>Fresh Article</title>
      <link>https://example.org/fresh</link>
      <description>&lt;p&gt;Plain &lt;b&gt;text&lt;/b&gt; inside markup.&lt;/p&gt;</description>
      <pubDate>Sat, 08 Nov 2025 10:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Second Article</title>
      <link>https://example.org/second</link>
      <description>no markup here</description>
      <pubDate>Fri, 07 Nov 2025 10:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

func TestCollectStripsHTMLAndLabelsSource(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(feedXML))
	}))
	defer server.Close()

	source := NewRSSSource([]config.FeedConfig{
		{Name: "example", URL: server.URL + "/feed"},
	}, server.Client(), 15, nil)

	candidates, err := source.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}

	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}

	first := candidates[0]
	if first.SourceLink != "https://example.org/fresh" {
		t.Fatalf("unexpected link: %s", first.SourceLink)
	}
	if first.ContentExcerpt != "Plain text inside markup." {
		t.Fatalf("expected stripped excerpt, got %q", first.ContentExcerpt)
	}
	if first.SourceName != "rss:Example Tech News" {
		t.Fatalf("unexpected source name: %s", first.SourceName)
	}
	if first.PublishedAt.IsZero() {
		t.Fatalf("expected published date to be parsed")
	}
}

func TestCollectCapsItemsPerFeed(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(feedXML))
	}))
	defer server.Close()

	source := NewRSSSource([]config.FeedConfig{
		{Name: "example", URL: server.URL},
	}, server.Client(), 1, nil)

	candidates, err := source.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}

	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate with cap 1, got %d", len(candidates))
	}
}

func TestCollectSkipsBrokenFeeds(t *testing.T) {
	t.Parallel()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	malformed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("this is not a feed"))
	}))
	defer malformed.Close()

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(feedXML))
	}))
	defer healthy.Close()

	source := NewRSSSource([]config.FeedConfig{
		{Name: "broken", URL: broken.URL},
		{Name: "malformed", URL: malformed.URL},
		{Name: "healthy", URL: healthy.URL},
	}, &http.Client{}, 15, nil)

	candidates, err := source.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}

	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates from the healthy feed, got %d", len(candidates))
	}
	for _, c := range candidates {
		if !strings.HasPrefix(c.SourceLink, "https://example.org/") {
			t.Fatalf("unexpected candidate link: %s", c.SourceLink)
		}
	}
}

func TestSourceLabelReddit(t *testing.T) {
	t.Parallel()

	got := sourceLabel("https://www.reddit.com/r/sysadmin/new.rss", "ignored")
	if got != "reddit:r/sysadmin" {
		t.Fatalf("unexpected reddit label: %s", got)
	}

	got = sourceLabel("https://feeds.arstechnica.com/arstechnica/index", "Ars Technica")
	if got != "rss:Ars Technica" {
		t.Fatalf("unexpected label: %s", got)
	}
}
