package sessions

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Store persists session snapshots. History is persisted separately by
// the conversation Recorder and is never read from a Store.
type Store interface {
	Save(ctx context.Context, s Session) error
	Find(ctx context.Context, id uuid.UUID) (*Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]Session
}

// NewMemoryStore creates a process-local Store.
func NewMemoryStore() Store {
	return &memoryStore{sessions: make(map[uuid.UUID]Session)}
}

func (m *memoryStore) Save(_ context.Context, s Session) error {
	s.History = nil
	s.Ingested = slices.Clone(s.Ingested)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *memoryStore) Find(_ context.Context, id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *memoryStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}
