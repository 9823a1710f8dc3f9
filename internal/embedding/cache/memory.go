package cache

import (
	"context"
	"sync"
)

// MemoryStore keeps vectors in process. A positive limit evicts the
// oldest entries once it is reached.
type MemoryStore struct {
	mu    sync.Mutex
	limit int
	items map[string][]float32
	order []string
}

func NewMemoryStore(limit int) *MemoryStore {
	return &MemoryStore{limit: limit, items: make(map[string][]float32)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]float32, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vec, ok := s.items[key]
	if !ok {
		return nil, false, nil
	}
	return append([]float32(nil), vec...), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; !ok {
		s.order = append(s.order, key)
	}
	s.items[key] = append([]float32(nil), vec...)
	for s.limit > 0 && len(s.order) > s.limit {
		delete(s.items, s.order[0])
		s.order = s.order[1:]
	}
	return nil
}

// Len returns the number of cached vectors.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
