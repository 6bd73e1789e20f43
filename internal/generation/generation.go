// Package generation provides the text-generation client used to answer
// queries from retrieved context.
package generation

import (
	"context"
	"errors"
)

// ErrGeneration is wrapped by every endpoint failure (quota, auth,
// network) so callers can distinguish generation errors from index or
// embedding errors. The client never retries; retry policy belongs to
// the caller.
var ErrGeneration = errors.New("generation error")

// Client is the contract over an external text-generation endpoint.
type Client interface {
	// Generate returns the generated text for a prompt.
	Generate(ctx context.Context, prompt string) (string, error)
}
