package pipeline

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vooshlabs/newsrag/internal/feeds"
	"github.com/vooshlabs/newsrag/internal/index"
)

// fakeEmbedder produces deterministic pseudo-random unit vectors: the
// same text always yields the same 384-dim vector, different texts yield
// near-orthogonal ones. That makes exact-text retrieval score ~1.0.
type fakeEmbedder struct {
	dim     int
	failOn  string
	calls   int
	callsMu sync.Mutex
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{dim: 384}
}

func (f *fakeEmbedder) embed(text string) ([]float32, error) {
	if text == "" {
		return nil, errors.New("empty input text")
	}
	if f.failOn != "" && text == f.failOn {
		return nil, errors.New("model unavailable")
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	state := h.Sum64() | 1

	vec := make([]float32, f.dim)
	var norm float64
	for i := range vec {
		// xorshift64
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		vec[i] = float32(int64(state)) / float32(math.MaxInt64)
		norm += float64(vec[i]) * float64(vec[i])
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.callsMu.Lock()
	f.calls++
	f.callsMu.Unlock()

	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := f.embed(t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f.embed(text)
}

type fakeFetcher struct {
	articles []feeds.Article
	err      error
}

func (f *fakeFetcher) FetchArticles(ctx context.Context, limit int) ([]feeds.Article, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.articles) > limit {
		return f.articles[:limit], nil
	}
	return f.articles, nil
}

type fakeGenerator struct {
	text string
	err  error

	mu      sync.Mutex
	prompts []string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func testArticles(n int) []feeds.Article {
	articles := make([]feeds.Article, n)
	for i := range articles {
		articles[i] = feeds.Article{
			Title:       fmt.Sprintf("Headline %d", i),
			Content:     fmt.Sprintf("Body of article number %d. %s", i, strings.Repeat("detail ", 20)),
			Source:      "Test Wire",
			PublishedAt: "2026-08-28T00:00:00Z",
			URL:         fmt.Sprintf("https://example.com/%d", i),
		}
	}
	return articles
}

func newTestPipeline(t *testing.T, fetcher ArticleFetcher, gen Generator) (*Pipeline, index.Client) {
	t.Helper()
	idx, err := index.NewChromemClient(index.ChromemConfig{}, zap.NewNop())
	require.NoError(t, err)

	p, err := New(fetcher, newFakeEmbedder(), idx, gen, Config{
		Collection: "news_articles_test",
		Dimension:  384,
		FetchLimit: 50,
		TopK:       3,
	}, zap.NewNop())
	require.NoError(t, err)
	return p, idx
}

func TestFakeEmbedderIsUnitNormAndDeterministic(t *testing.T) {
	e := newFakeEmbedder()

	a, err := e.EmbedQuery(context.Background(), "some text")
	require.NoError(t, err)
	b, err := e.EmbedQuery(context.Background(), "some text")
	require.NoError(t, err)

	require.Len(t, a, 384)
	assert.Equal(t, a, b)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-3)
}

func TestAnswerQueryBeforeInitialize(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeFetcher{}, &fakeGenerator{text: "hi"})

	_, err := p.AnswerQuery(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestInitializeIndexesAllArticles(t *testing.T) {
	p, idx := newTestPipeline(t, &fakeFetcher{articles: testArticles(5)}, &fakeGenerator{text: "ok"})
	ctx := context.Background()

	require.NoError(t, p.Initialize(ctx))

	vec, err := newFakeEmbedder().EmbedQuery(ctx, "Body of article number 0.")
	require.NoError(t, err)

	hits, err := idx.Search(ctx, "news_articles_test", vec, 5)
	require.NoError(t, err)
	require.Len(t, hits, 5)

	seen := map[uint64]bool{}
	for _, h := range hits {
		seen[h.ID] = true
	}
	for id := uint64(0); id < 5; id++ {
		assert.True(t, seen[id], "expected point id %d", id)
	}
}

func TestAnswerQueryReturnsTopThreeDescending(t *testing.T) {
	gen := &fakeGenerator{text: "generated answer"}
	p, _ := newTestPipeline(t, &fakeFetcher{articles: testArticles(10)}, gen)
	ctx := context.Background()

	require.NoError(t, p.Initialize(ctx))

	answer, err := p.AnswerQuery(ctx, "article number 4")
	require.NoError(t, err)

	assert.Equal(t, "generated answer", answer.Text)
	require.LessOrEqual(t, len(answer.Articles), 3)
	require.NotEmpty(t, answer.Articles)
	for i := 1; i < len(answer.Articles); i++ {
		assert.LessOrEqual(t, answer.Articles[i].Score, answer.Articles[i-1].Score)
	}
}

func TestAnswerQueryExactMatchRoundTrip(t *testing.T) {
	content := strings.Repeat("x", 150)
	article := feeds.Article{
		Title:   "A",
		Content: content,
		Source:  "S",
		URL:     "u",
	}
	gen := &fakeGenerator{text: "answer"}
	p, _ := newTestPipeline(t, &fakeFetcher{articles: []feeds.Article{article}}, gen)
	ctx := context.Background()

	require.NoError(t, p.Refresh(ctx))

	answer, err := p.AnswerQuery(ctx, content)
	require.NoError(t, err)

	require.NotEmpty(t, answer.Articles)
	top := answer.Articles[0]
	assert.Equal(t, "A", top.Title)
	assert.Equal(t, "S", top.Source)
	assert.GreaterOrEqual(t, float64(top.Score), 0.99)
}

func TestRefreshTwiceKeepsOnlySecondBatch(t *testing.T) {
	fetcher := &fakeFetcher{articles: testArticles(6)}
	p, idx := newTestPipeline(t, fetcher, &fakeGenerator{text: "ok"})
	ctx := context.Background()

	require.NoError(t, p.Refresh(ctx))

	fetcher.articles = []feeds.Article{
		{Title: "Fresh", Content: strings.Repeat("fresh news ", 15), Source: "S2", URL: "u2"},
	}
	require.NoError(t, p.Refresh(ctx))

	vec, err := newFakeEmbedder().EmbedQuery(ctx, "fresh")
	require.NoError(t, err)
	hits, err := idx.Search(ctx, "news_articles_test", vec, 10)
	require.NoError(t, err)

	require.Len(t, hits, 1)
	assert.Equal(t, "Fresh", hits[0].Payload["title"])
}

func TestRefreshPropagatesFetchFailure(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeFetcher{err: errors.New("all feeds down")}, &fakeGenerator{})

	err := p.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetching articles")

	// Still not ready: queries must keep failing fast.
	_, err = p.AnswerQuery(context.Background(), "q")
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestRefreshAbortsOnEmbeddingFailure(t *testing.T) {
	articles := testArticles(3)
	idx, err := index.NewChromemClient(index.ChromemConfig{}, zap.NewNop())
	require.NoError(t, err)

	embedder := newFakeEmbedder()
	embedder.failOn = articles[1].Content

	p, err := New(&fakeFetcher{articles: articles}, embedder, idx, &fakeGenerator{}, Config{
		Collection: "news_articles_test",
	}, zap.NewNop())
	require.NoError(t, err)

	err = p.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding article 1")

	// The collection holds only articles before the failure point.
	vec, verr := newFakeEmbedder().EmbedQuery(context.Background(), articles[0].Content)
	require.NoError(t, verr)
	hits, serr := idx.Search(context.Background(), "news_articles_test", vec, 10)
	require.NoError(t, serr)
	assert.Len(t, hits, 1)
}

func TestAnswerQueryGenerationFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("quota exceeded")}
	p, _ := newTestPipeline(t, &fakeFetcher{articles: testArticles(2)}, gen)
	ctx := context.Background()

	require.NoError(t, p.Initialize(ctx))

	answer, err := p.AnswerQuery(ctx, "q")
	require.Error(t, err)
	assert.Nil(t, answer)
}

func TestAnswerQueryPromptContainsContextAndQuestion(t *testing.T) {
	gen := &fakeGenerator{text: "ok"}
	p, _ := newTestPipeline(t, &fakeFetcher{articles: testArticles(2)}, gen)
	ctx := context.Background()

	require.NoError(t, p.Initialize(ctx))

	_, err := p.AnswerQuery(ctx, "what happened in article 1?")
	require.NoError(t, err)

	require.Len(t, gen.prompts, 1)
	prompt := gen.prompts[0]
	assert.Contains(t, prompt, "User question: what happened in article 1?")
	assert.Contains(t, prompt, "Article from Test Wire titled")
	assert.Contains(t, prompt, "Context from news articles:")
	assert.Contains(t, prompt, "please say so")
}

func TestConcurrentQueries(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeFetcher{articles: testArticles(8)}, &fakeGenerator{text: "ok"})
	ctx := context.Background()
	require.NoError(t, p.Initialize(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := p.AnswerQuery(ctx, fmt.Sprintf("query %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
}

func TestRefreshConcurrentWithQueries(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeFetcher{articles: testArticles(6)}, &fakeGenerator{text: "ok"})
	ctx := context.Background()
	require.NoError(t, p.Initialize(ctx))

	// Queries racing a refresh must never observe a dropped or
	// half-populated collection: each one either runs before the rebuild
	// starts or after it completes, so it always gets hits.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				answer, err := p.AnswerQuery(ctx, fmt.Sprintf("query %d-%d", i, j))
				if assert.NoError(t, err) {
					assert.NotEmpty(t, answer.Articles)
				}
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 3; j++ {
			assert.NoError(t, p.Refresh(ctx))
		}
	}()
	wg.Wait()
}

func TestAnswerQueryWithoutGenerator(t *testing.T) {
	idx, err := index.NewChromemClient(index.ChromemConfig{}, zap.NewNop())
	require.NoError(t, err)

	// Ingest-only pipeline, as wired by the one-shot refresh command.
	p, err := New(&fakeFetcher{articles: testArticles(2)}, newFakeEmbedder(), idx, nil, Config{
		Collection: "news_articles_test",
	}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, p.Refresh(context.Background()))

	_, err = p.AnswerQuery(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no generation client")
}

func TestBuildContextOrderAndFormat(t *testing.T) {
	articles := []RetrievedArticle{
		{Title: "First", Source: "Wire A", Content: "alpha body"},
		{Title: "Second", Source: "Wire B", Content: "beta body"},
	}

	got := buildContext(articles)

	first := strings.Index(got, "First")
	second := strings.Index(got, "Second")
	require.NotEqual(t, -1, first)
	require.NotEqual(t, -1, second)
	assert.Less(t, first, second)
	assert.Contains(t, got, "Article from Wire A titled \"First\":\nalpha body\n\n")
}

func TestBuildContextKeepsQuotedTitlesVerbatim(t *testing.T) {
	got := buildContext([]RetrievedArticle{
		{Title: `He said "enough"`, Source: "Wire", Content: "body"},
	})

	// Titles pass through untouched, no escaping of embedded quotes.
	assert.Contains(t, got, `Article from Wire titled "He said "enough"":`+"\nbody\n\n")
}
