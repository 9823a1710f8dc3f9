package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	fixed     bool
	chunks    []domain.Chunk
}

// NewStorage creates an empty store. A dimension of 0 is learned from the
// first insert and forgotten again on Clear.
func NewStorage(dimension int) *Storage {
	return &Storage{dimension: dimension, fixed: dimension > 0}
}

func (s *Storage) Insert(ctx context.Context, chunks []domain.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dim, err := vectorstore.CheckDimensions(chunks, s.dimension)
	if err != nil {
		return err
	}
	copied := make([]domain.Chunk, len(chunks))
	for i, c := range chunks {
		c.Vector = append([]float32(nil), c.Vector...)
		copied[i] = c
	}
	s.dimension = dim
	s.chunks = append(s.chunks, copied...)
	return nil
}

// Search returns the topK most similar chunks. Equal scores keep insertion order.
func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.chunks) == 0 || topK <= 0 {
		return nil, nil
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", domain.ErrDimensionMismatch, len(vector), s.dimension)
	}

	results := make([]domain.SearchResult, len(s.chunks))
	for i, c := range s.chunks {
		results[i] = domain.SearchResult{Chunk: c, Score: vectorstore.Cosine(c.Vector, vector)}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > len(results) {
		topK = len(results)
	}
	out := results[:topK:topK]
	for i := range out {
		out[i].Chunk.Vector = append([]float32(nil), out[i].Chunk.Vector...)
	}
	return out, nil
}

func (s *Storage) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	if !s.fixed {
		s.dimension = 0
	}
	return nil
}

func (s *Storage) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}
