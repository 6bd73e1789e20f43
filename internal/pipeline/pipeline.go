// Package pipeline implements the retrieval-augmented generation core:
// ingestion (fetch, clean, embed, index) and query answering (embed,
// search, assemble context, generate).
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/vooshlabs/newsrag/internal/feeds"
	"github.com/vooshlabs/newsrag/internal/index"
)

// ErrNotReady is returned by AnswerQuery before the first successful
// Initialize or Refresh. Queries never silently return empty answers.
var ErrNotReady = errors.New("pipeline not initialized")

// ArticleFetcher supplies candidate articles for ingestion.
type ArticleFetcher interface {
	FetchArticles(ctx context.Context, limit int) ([]feeds.Article, error)
}

// Embedder converts text to fixed-length vectors.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator produces an answer from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// RetrievedArticle is a search-result projection returned to callers.
// Built fresh per query, never stored.
type RetrievedArticle struct {
	Title   string  `json:"title"`
	Source  string  `json:"source"`
	Content string  `json:"content"`
	Date    string  `json:"date"`
	URL     string  `json:"url"`
	Score   float32 `json:"score"`
}

// Answer is the result of a single query.
type Answer struct {
	Text     string             `json:"text"`
	Articles []RetrievedArticle `json:"articles"`
}

// Config holds orchestration settings.
type Config struct {
	// Collection is the vector collection holding indexed articles.
	Collection string

	// Dimension is the embedding dimensionality.
	Dimension int

	// FetchLimit is the number of articles ingested per refresh.
	FetchLimit int

	// TopK is the number of articles retrieved per query.
	TopK int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "news_articles"
	}
	if c.Dimension == 0 {
		c.Dimension = 384
	}
	if c.FetchLimit == 0 {
		c.FetchLimit = 50
	}
	if c.TopK == 0 {
		c.TopK = 3
	}
}

// Pipeline coordinates the fetcher, embedder, index, and generator.
//
// A refresh is serialized against concurrent queries with a single-writer
// lock: queries hold the read side, a refresh holds the write side across
// the collection recreation and the whole ingest. Without the lock a
// query racing a refresh could observe a dropped or half-populated
// collection.
type Pipeline struct {
	fetcher   ArticleFetcher
	embedder  Embedder
	index     index.Client
	generator Generator
	config    Config
	logger    *zap.Logger

	mu    sync.RWMutex
	ready bool
}

// New creates a Pipeline with injected collaborators. The generator may
// be nil for ingest-only use (Initialize/Refresh); AnswerQuery on such a
// pipeline fails with an error rather than panicking.
func New(fetcher ArticleFetcher, embedder Embedder, idx index.Client, generator Generator, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("article fetcher is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if idx == nil {
		return nil, fmt.Errorf("index client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	return &Pipeline{
		fetcher:   fetcher,
		embedder:  embedder,
		index:     idx,
		generator: generator,
		config:    cfg,
		logger:    logger,
	}, nil
}

// Initialize runs the full reindex pipeline once at startup. A missing
// collection is the normal case here; otherwise identical to Refresh.
func (p *Pipeline) Initialize(ctx context.Context) error {
	p.logger.Info("initializing pipeline",
		zap.String("collection", p.config.Collection),
		zap.Int("dimension", p.config.Dimension),
	)
	return p.reindex(ctx)
}

// Refresh destroys and rebuilds the article collection. A failure on
// article i aborts the refresh and leaves the collection populated only
// up to i-1; re-running Refresh to completion restores consistency.
func (p *Pipeline) Refresh(ctx context.Context) error {
	p.logger.Info("refreshing articles", zap.String("collection", p.config.Collection))
	return p.reindex(ctx)
}

func (p *Pipeline) reindex(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.index.EnsureCollection(ctx, p.config.Collection, p.config.Dimension); err != nil {
		return fmt.Errorf("recreating collection: %w", err)
	}

	articles, err := p.fetcher.FetchArticles(ctx, p.config.FetchLimit)
	if err != nil {
		return fmt.Errorf("fetching articles: %w", err)
	}

	// Strictly sequential, one embed+upsert round trip per article.
	// Bounds peak memory and keeps the partial-failure boundary simple:
	// everything before the failing article is indexed, nothing after.
	for i, article := range articles {
		vectors, err := p.embedder.EmbedDocuments(ctx, []string{article.Content})
		if err != nil {
			return fmt.Errorf("embedding article %d %q: %w", i, article.Title, err)
		}

		point := index.Point{
			ID:     uint64(i),
			Vector: vectors[0],
			Payload: map[string]any{
				"content": article.Content,
				"source":  article.Source,
				"title":   article.Title,
				"date":    article.PublishedAt,
				"url":     article.URL,
			},
		}
		if err := p.index.Upsert(ctx, p.config.Collection, []index.Point{point}); err != nil {
			return fmt.Errorf("indexing article %d %q: %w", i, article.Title, err)
		}

		p.logger.Debug("article indexed",
			zap.Int("id", i),
			zap.String("title", article.Title),
			zap.String("source", article.Source),
		)
	}

	p.ready = true
	p.logger.Info("reindex complete", zap.Int("articles", len(articles)))
	return nil
}

// AnswerQuery embeds the query, retrieves the top articles, and asks the
// generator to answer from that context. Returns ErrNotReady before the
// first successful Initialize or Refresh.
func (p *Pipeline) AnswerQuery(ctx context.Context, query string) (*Answer, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.ready {
		return nil, ErrNotReady
	}
	if p.generator == nil {
		return nil, fmt.Errorf("no generation client configured")
	}

	queryVector, err := p.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := p.index.Search(ctx, p.config.Collection, queryVector, p.config.TopK)
	if err != nil {
		return nil, fmt.Errorf("searching articles: %w", err)
	}

	articles := make([]RetrievedArticle, len(hits))
	for i, hit := range hits {
		articles[i] = RetrievedArticle{
			Title:   payloadString(hit.Payload, "title"),
			Source:  payloadString(hit.Payload, "source"),
			Content: payloadString(hit.Payload, "content"),
			Date:    payloadString(hit.Payload, "date"),
			URL:     payloadString(hit.Payload, "url"),
			Score:   hit.Score,
		}
	}

	text, err := p.generator.Generate(ctx, buildPrompt(query, articles))
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	p.logger.Info("query answered",
		zap.Int("retrieved", len(articles)),
		zap.Int("answer_len", len(text)),
	)
	return &Answer{Text: text, Articles: articles}, nil
}

func payloadString(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}
