package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bobarin/clipmix/internal/models"
	"github.com/google/uuid"
)

// MemoryStore is a process-local Store for the CLI and tests. Values are
// stored as JSON so callers never share state with the store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID][]byte
	batches  map[uuid.UUID][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[uuid.UUID][]byte),
		batches:  make(map[uuid.UUID][]byte),
	}
}

func (m *MemoryStore) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s models.Session
	if err := load(m.sessions, id, &s); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return &s, nil
}

func (m *MemoryStore) SaveSession(ctx context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.UpdatedAt = time.Now()
	return store(m.sessions, s.ID, s)
}

func (m *MemoryStore) UpdateSession(ctx context.Context, id uuid.UUID, fn func(*models.Session) error) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s models.Session
	if err := load(m.sessions, id, &s); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err := fn(&s); err != nil {
		return nil, err
	}
	s.UpdatedAt = time.Now()
	if err := store(m.sessions, id, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *MemoryStore) GetBatch(ctx context.Context, id uuid.UUID) (*models.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b models.Batch
	if err := load(m.batches, id, &b); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}
	return &b, nil
}

func (m *MemoryStore) SaveBatch(ctx context.Context, b *models.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return store(m.batches, b.ID, b)
}

func (m *MemoryStore) UpdateBatch(ctx context.Context, id uuid.UUID, fn func(*models.Batch) error) (*models.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b models.Batch
	if err := load(m.batches, id, &b); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}
	if err := fn(&b); err != nil {
		return nil, err
	}
	if err := store(m.batches, id, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func load(m map[uuid.UUID][]byte, id uuid.UUID, v interface{}) error {
	data, ok := m[id]
	if !ok {
		return fmt.Errorf("no entry for %s", id)
	}
	return json.Unmarshal(data, v)
}

func store(m map[uuid.UUID][]byte, id uuid.UUID, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", id, err)
	}
	m[id] = data
	return nil
}
