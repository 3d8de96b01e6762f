package goldstore

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store for tests and single-node runs without
// a Redis backend. Balances do not survive a restart.
type MemoryStore struct {
	mu   sync.Mutex
	gold map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{gold: make(map[string]int64)}
}

func (s *MemoryStore) Get(_ context.Context, playerID string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gold, ok := s.gold[playerID]
	return gold, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, playerID string, gold int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gold[playerID] = gold
	return nil
}
