package cart

import (
	"context"
	"sync"
)

// Store persists carts per user. Load returns an empty cart for a user
// without one.
type Store interface {
	Load(ctx context.Context, userID string) (*Cart, error)
	Save(ctx context.Context, userID string, c *Cart) error
	Delete(ctx context.Context, userID string) error
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps carts in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	carts map[string][]Line
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: make(map[string][]Line)}
}

func (s *MemoryStore) Load(_ context.Context, userID string) (*Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return New(s.carts[userID]...), nil
}

func (s *MemoryStore) Save(_ context.Context, userID string, c *Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Len() == 0 {
		delete(s.carts, userID)
		return nil
	}
	s.carts[userID] = c.Lines()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, userID)
	return nil
}
