// Package feeds fetches and normalizes news articles from RSS sources.
package feeds

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
)

// DefaultMinContentLen is the minimum cleaned content length for an
// article to be kept. Shorter entries are teaser stubs that embed poorly.
const DefaultMinContentLen = 100

// Article is a normalized news article ready for embedding. Immutable
// once produced; the pipeline discards it after indexing.
type Article struct {
	Title       string
	Content     string
	Source      string
	PublishedAt string
	URL         string
}

// Source names one RSS feed.
type Source struct {
	Name string
	URL  string
}

// Fetcher collects articles from a fixed, ordered list of RSS sources.
// It holds no state between calls.
type Fetcher struct {
	parser        *gofeed.Parser
	sources       []Source
	minContentLen int
	logger        *zap.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithMinContentLen overrides the minimum content length threshold.
func WithMinContentLen(n int) Option {
	return func(f *Fetcher) { f.minContentLen = n }
}

// NewFetcher creates a Fetcher over the given sources, fetched in order.
func NewFetcher(sources []Source, logger *zap.Logger, opts ...Option) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fetcher{
		parser:        gofeed.NewParser(),
		sources:       sources,
		minContentLen: DefaultMinContentLen,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchArticles collects up to limit articles across all sources, in
// source-list order. A failure fetching one source is logged and that
// source is skipped; it never aborts the overall fetch. The result may
// hold fewer than limit articles if the sources are exhausted.
func (f *Fetcher) FetchArticles(ctx context.Context, limit int) ([]Article, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	articles := make([]Article, 0, limit)
	for _, src := range f.sources {
		if len(articles) >= limit {
			break
		}

		feed, err := f.parser.ParseURLWithContext(src.URL, ctx)
		if err != nil {
			f.logger.Warn("skipping feed source",
				zap.String("source", src.Name),
				zap.Error(err),
			)
			continue
		}

		kept := 0
		for _, item := range feed.Items {
			if len(articles) >= limit {
				break
			}

			article := Article{
				Title:       item.Title,
				Content:     cleanContent(bestBody(item)),
				Source:      src.Name,
				PublishedAt: publishedAt(item),
				URL:         item.Link,
			}

			if len(article.Content) <= f.minContentLen {
				continue
			}
			articles = append(articles, article)
			kept++
		}

		f.logger.Debug("fetched feed source",
			zap.String("source", src.Name),
			zap.Int("items", len(feed.Items)),
			zap.Int("kept", kept),
		)
	}

	f.logger.Info("fetched articles",
		zap.Int("count", len(articles)),
		zap.Int("limit", limit),
	)
	return articles, nil
}

// bestBody picks the richest body text available for a feed item.
// gofeed folds Atom summaries into Description.
func bestBody(item *gofeed.Item) string {
	if item.Content != "" {
		return item.Content
	}
	return item.Description
}

// publishedAt returns the publish date, preferring the parsed timestamp.
func publishedAt(item *gofeed.Item) string {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.Format("2006-01-02T15:04:05Z07:00")
	}
	if item.Published != "" {
		return item.Published
	}
	return item.Updated
}

// cleanContent strips markup tags and collapses whitespace.
func cleanContent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
