// Package index provides vector index clients for similarity search.
//
// Two backends are supported: an external Qdrant server (gRPC) and the
// embedded chromem-go store. Both implement the same narrow contract the
// RAG pipeline needs: destructively recreate a collection, upsert points,
// and top-k search by vector.
package index

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Sentinel errors for index operations.
var (
	// ErrIndex is wrapped by every backend failure so callers can
	// distinguish index errors from embedding or generation errors.
	ErrIndex = errors.New("vector index error")

	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid client configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Point is a vector point with its payload.
type Point struct {
	ID      uint64
	Vector  []float32
	Payload map[string]any
}

// ScoredPoint is a search result. Score is a cosine similarity,
// higher means more relevant.
type ScoredPoint struct {
	Point
	Score float32
}

// Client is the contract over a similarity-search store.
//
// Implementations do not retry internally; transient failures surface to
// the caller wrapped in ErrIndex.
type Client interface {
	// EnsureCollection drops any existing collection of that name and
	// creates a fresh one with the given vector dimensionality and
	// cosine metric. It backs full reindexing, never incremental
	// schema change.
	EnsureCollection(ctx context.Context, name string, dimension int) error

	// Upsert inserts or overwrites points by id.
	Upsert(ctx context.Context, name string, points []Point) error

	// Search returns at most k nearest neighbors ordered by
	// descending score.
	Search(ctx context.Context, name string, vector []float32, k int) ([]ScoredPoint, error)

	// Close releases the client connection.
	Close() error
}

// Config selects and configures an index backend.
type Config struct {
	// Backend is "qdrant" or "chromem".
	Backend string

	Qdrant  QdrantConfig
	Chromem ChromemConfig
}

// NewClient creates an index client for the configured backend.
func NewClient(cfg Config, logger *zap.Logger) (Client, error) {
	switch cfg.Backend {
	case "qdrant", "":
		return NewQdrantClient(cfg.Qdrant, logger)
	case "chromem":
		return NewChromemClient(cfg.Chromem, logger)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, cfg.Backend)
	}
}
