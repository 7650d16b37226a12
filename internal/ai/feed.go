package ai

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ignite/immo-leads/internal/pkg/logger"
	"github.com/mmcdole/gofeed"
)

// FeedItem is one RSS/Atom entry used as a topic idea.
type FeedItem struct {
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Summary     string     `json:"summary,omitempty"`
	Source      string     `json:"source"`
	Categories  []string   `json:"categories,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// FeedReader aggregates the configured real-estate news feeds.
type FeedReader struct {
	urls   []string
	parser *gofeed.Parser
}

// NewFeedReader creates a reader over urls.
func NewFeedReader(urls []string) *FeedReader {
	p := gofeed.NewParser()
	p.Client = &http.Client{Timeout: 15 * time.Second}
	p.UserAgent = "immo-leads/1.0 (+topic ideas)"
	return &FeedReader{urls: urls, parser: p}
}

// URLs returns the configured feeds.
func (r *FeedReader) URLs() []string { return r.urls }

// Latest returns up to limit items across all feeds, newest first, without
// duplicate links. A feed that fails is logged and skipped; an error is
// returned only when every feed failed.
func (r *FeedReader) Latest(ctx context.Context, limit int) ([]FeedItem, error) {
	var (
		items   []FeedItem
		seen    = map[string]bool{}
		lastErr error
		okFeeds int
	)
	for _, u := range r.urls {
		feed, err := r.parser.ParseURLWithContext(u, ctx)
		if err != nil {
			lastErr = err
			logger.Warn("feeds: fetch failed", "url", u, "error", err)
			continue
		}
		okFeeds++
		for _, it := range feed.Items {
			link := strings.TrimSpace(it.Link)
			if it.Title == "" || seen[link] {
				continue
			}
			seen[link] = true
			items = append(items, FeedItem{
				Title:       strings.TrimSpace(it.Title),
				Link:        link,
				Summary:     summary(it),
				Source:      feed.Title,
				Categories:  it.Categories,
				PublishedAt: published(it),
			})
		}
	}
	if okFeeds == 0 && lastErr != nil {
		return nil, lastErr
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].PublishedAt, items[j].PublishedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.After(*b)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func published(it *gofeed.Item) *time.Time {
	if it.PublishedParsed != nil {
		return it.PublishedParsed
	}
	return it.UpdatedParsed
}

func summary(it *gofeed.Item) string {
	s := it.Description
	if s == "" {
		s = it.Content
	}
	s = strings.TrimSpace(stripTags(s))
	if r := []rune(s); len(r) > 280 {
		s = string(r[:279]) + "…"
	}
	return s
}

func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, c := range s {
		switch {
		case c == '<':
			inTag = true
		case c == '>':
			inTag = false
		case !inTag:
			b.WriteRune(c)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
