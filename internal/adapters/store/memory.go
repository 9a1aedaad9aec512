package store

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mikey/ta-triage/internal/core"
)

// MemoryStore is an in-memory implementation of the KnowledgeStore
// interface, suitable for development and tests. Records are deep-copied on
// the way in and out so callers never share slices with the store.
type MemoryStore struct {
	senders map[string]*core.Sender
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewMemoryStore creates a new in-memory knowledge store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		senders: make(map[string]*core.Sender),
		logger:  logger,
	}
}

// Get retrieves a sender record
func (s *MemoryStore) Get(ctx context.Context, identity string) (*core.Sender, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sender, ok := s.senders[identity]
	if !ok {
		return nil, core.ErrSenderNotFound
	}
	return sender.Clone(), nil
}

// Add inserts a new sender record
func (s *MemoryStore) Add(ctx context.Context, sender *core.Sender) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.senders[sender.Identity] = sender.Clone()
	return nil
}

// Update replaces an existing sender record
func (s *MemoryStore) Update(ctx context.Context, sender *core.Sender) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.senders[sender.Identity] = sender.Clone()
	return nil
}

// Len returns the number of stored senders.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.senders)
}
