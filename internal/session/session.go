// Package session stores chat transcripts.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/vooshlabs/newsrag/internal/pipeline"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat turn. Assistant messages carry the articles
// cited by the generated answer.
type Message struct {
	Role      string                      `json:"role"`
	Content   string                      `json:"content"`
	Articles  []pipeline.RetrievedArticle `json:"articles,omitempty"`
	Timestamp time.Time                   `json:"timestamp"`
}

// Summary describes a session without its full transcript.
type Summary struct {
	ID           string    `json:"sessionId"`
	CreatedAt    time.Time `json:"createdAt"`
	MessageCount int       `json:"messageCount"`
}

// Store is the session transcript store.
type Store interface {
	// Create starts a new empty session and returns its id.
	Create(ctx context.Context) (string, error)

	// Append adds messages to a session's transcript.
	Append(ctx context.Context, id string, messages ...Message) error

	// Messages returns a session's transcript in order.
	Messages(ctx context.Context, id string) ([]Message, error)

	// Clear empties a session's transcript, keeping the session.
	Clear(ctx context.Context, id string) error

	// ListRecent returns summaries of the most recent sessions,
	// newest first.
	ListRecent(ctx context.Context, limit int) ([]Summary, error)
}
