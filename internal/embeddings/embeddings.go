// Package embeddings provides text embedding generation.
package embeddings

import (
	"context"
	"errors"
)

// Sentinel errors for embedding operations.
var (
	// ErrEmptyInput indicates empty or nil input text.
	ErrEmptyInput = errors.New("empty input text")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Provider generates vector embeddings from text.
//
// Output vectors are L2-normalized, so cosine similarity and dot product
// are equivalent ranking functions downstream. Embedding is deterministic
// per input text.
type Provider interface {
	// EmbedDocuments generates embeddings for multiple texts,
	// one vector per input.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding dimension for the current model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}
