package index

import (
	"context"
	"fmt"
	"strconv"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// ChromemConfig holds configuration for the embedded chromem-go backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Empty means in-memory only (tests, dev mode).
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool
}

// ChromemClient implements Client over chromem-go, an embeddable vector
// database. No external service is needed; points carry precomputed
// embeddings so the store never invokes an embedding function itself.
type ChromemClient struct {
	db     *chromem.DB
	logger *zap.Logger
}

// NewChromemClient creates an embedded index client.
func NewChromemClient(config ChromemConfig, logger *zap.Logger) (*ChromemClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(config.Path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("%w: opening chromem DB: %v", ErrIndex, err)
		}
	}

	logger.Info("chromem index opened",
		zap.String("path", config.Path),
		zap.Bool("in_memory", config.Path == ""),
	)
	return &ChromemClient{db: db, logger: logger}, nil
}

// rejectEmbedding guards the text-embedding path chromem offers; all
// points arrive with precomputed vectors.
func rejectEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("chromem backend only accepts precomputed embeddings")
}

// EnsureCollection drops the collection if present and recreates it.
// chromem computes cosine similarity natively, matching the Qdrant
// backend's distance metric; the dimension is fixed by the first
// upserted vector.
func (c *ChromemClient) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if name == "" {
		return fmt.Errorf("%w: collection name is required", ErrInvalidConfig)
	}

	if err := c.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("%w: deleting collection %s: %v", ErrIndex, name, err)
	}
	if _, err := c.db.CreateCollection(name, nil, rejectEmbedding); err != nil {
		return fmt.Errorf("%w: creating collection %s: %v", ErrIndex, name, err)
	}

	c.logger.Info("collection created",
		zap.String("collection", name),
		zap.Int("dimension", dimension),
	)
	return nil
}

// Upsert inserts or overwrites points by id.
func (c *ChromemClient) Upsert(ctx context.Context, name string, points []Point) error {
	col := c.db.GetCollection(name, rejectEmbedding)
	if col == nil {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}

	docs := make([]chromem.Document, len(points))
	for i, p := range points {
		content, metadata := splitPayload(p.Payload)
		docs[i] = chromem.Document{
			ID:        strconv.FormatUint(p.ID, 10),
			Content:   content,
			Metadata:  metadata,
			Embedding: p.Vector,
		}
	}

	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("%w: upserting %d points into %s: %v", ErrIndex, len(points), name, err)
	}
	return nil
}

// Search returns at most k nearest neighbors by descending score.
func (c *ChromemClient) Search(ctx context.Context, name string, vector []float32, k int) ([]ScoredPoint, error) {
	col := c.db.GetCollection(name, rejectEmbedding)
	if col == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}

	// chromem requires nResults <= document count
	count := col.Count()
	if count == 0 {
		return []ScoredPoint{}, nil
	}
	if k > count {
		k = count
	}

	results, err := col.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: searching %s: %v", ErrIndex, name, err)
	}

	hits := make([]ScoredPoint, len(results))
	for i, r := range results {
		id, err := strconv.ParseUint(r.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: non-numeric point id %q in %s", ErrIndex, r.ID, name)
		}
		hits[i] = ScoredPoint{
			Point: Point{
				ID:      id,
				Payload: joinPayload(r.Content, r.Metadata),
			},
			Score: r.Similarity,
		}
	}
	return hits, nil
}

// Close is a no-op; chromem persists on write.
func (c *ChromemClient) Close() error {
	return nil
}

// splitPayload separates the document body from the string metadata
// chromem stores alongside it.
func splitPayload(payload map[string]any) (string, map[string]string) {
	var content string
	metadata := make(map[string]string, len(payload))
	for k, v := range payload {
		s := fmt.Sprintf("%v", v)
		if k == "content" {
			content = s
			continue
		}
		metadata[k] = s
	}
	return content, metadata
}

// joinPayload rebuilds the payload map from a chromem result.
func joinPayload(content string, metadata map[string]string) map[string]any {
	payload := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		payload[k] = v
	}
	payload["content"] = content
	return payload
}

var _ Client = (*ChromemClient)(nil)
