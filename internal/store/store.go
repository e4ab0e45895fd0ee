// Package store provides conversation persistence interfaces and implementations.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/ashureev/orderdesk/internal/domain"
)

// SessionStore holds one Conversation per session id.
type SessionStore interface {
	// Create stores a new conversation. The session id must be unused.
	Create(ctx context.Context, conv *domain.Conversation) error

	// Get returns a snapshot of a conversation or domain.ErrSessionNotFound.
	Get(ctx context.Context, sessionID string) (*domain.Conversation, error)

	// Update runs fn with exclusive access to the conversation. Calls for the
	// same id are serialized in submission order. If fn returns an error the
	// conversation is left unchanged.
	Update(ctx context.Context, sessionID string, fn func(*domain.Conversation) error) (*domain.Conversation, error)

	// Len returns the number of stored conversations.
	Len() int
}

type entry struct {
	mu   sync.Mutex
	conv *domain.Conversation
}

// MemoryStore keeps conversations in process memory for the life of the
// process. There is no eviction.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*entry)}
}

// Create stores conv under its session id.
func (s *MemoryStore) Create(_ context.Context, conv *domain.Conversation) error {
	if conv == nil || conv.SessionID == "" {
		return fmt.Errorf("create conversation: session id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[conv.SessionID]; exists {
		return fmt.Errorf("create conversation %s: session id already in use", conv.SessionID)
	}
	s.entries[conv.SessionID] = &entry{conv: conv.Clone()}
	return nil
}

// Get returns a copy of the stored conversation.
func (s *MemoryStore) Get(_ context.Context, sessionID string) (*domain.Conversation, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conv.Clone(), nil
}

// Update applies fn to a working copy under the per-conversation lock and
// commits it only when fn succeeds.
func (s *MemoryStore) Update(ctx context.Context, sessionID string, fn func(*domain.Conversation) error) (*domain.Conversation, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	working := e.conv.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	e.conv = working
	return working.Clone(), nil
}

// Len returns the number of stored conversations.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) lookup(sessionID string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	return e, nil
}
