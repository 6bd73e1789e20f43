package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and dev mode.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
}

type memorySession struct {
	createdAt time.Time
	messages  []Message
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*memorySession)}
}

// Create starts a new empty session and returns its id.
func (s *MemoryStore) Create(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.sessions[id] = &memorySession{createdAt: time.Now()}
	return id, nil
}

// Append adds messages to a session's transcript.
func (s *MemoryStore) Append(ctx context.Context, id string, messages ...Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.messages = append(sess.messages, messages...)
	return nil
}

// Messages returns a session's transcript in order.
func (s *MemoryStore) Messages(ctx context.Context, id string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]Message, len(sess.messages))
	copy(out, sess.messages)
	return out, nil
}

// Clear empties a session's transcript, keeping the session.
func (s *MemoryStore) Clear(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.messages = nil
	return nil
}

// ListRecent returns summaries of the most recent sessions, newest first.
func (s *MemoryStore) ListRecent(ctx context.Context, limit int) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]Summary, 0, len(s.sessions))
	for id, sess := range s.sessions {
		summaries = append(summaries, Summary{
			ID:           id,
			CreatedAt:    sess.createdAt,
			MessageCount: len(sess.messages),
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

var _ Store = (*MemoryStore)(nil)
