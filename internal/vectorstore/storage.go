package vectorstore

import (
	"context"
	"fmt"
	"math"

	"ragchat/internal/domain"
)

// Storage persists embedded chunks and supports similarity search.
// Insert is all-or-nothing and Clear is idempotent.
type Storage interface {
	Insert(ctx context.Context, chunks []domain.Chunk) error
	Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error)
	Clear(ctx context.Context) error
	Len(ctx context.Context) (int, error)
}

// CheckDimensions verifies every chunk carries a vector of size dim.
// dim <= 0 takes the first chunk's size. It returns the dimension used.
func CheckDimensions(chunks []domain.Chunk, dim int) (int, error) {
	for i, c := range chunks {
		if len(c.Vector) == 0 {
			return dim, fmt.Errorf("%w: chunk %d has no vector", domain.ErrDimensionMismatch, i)
		}
		if dim <= 0 {
			dim = len(c.Vector)
		}
		if len(c.Vector) != dim {
			return dim, fmt.Errorf("%w: chunk %d has %d dimensions, index has %d", domain.ErrDimensionMismatch, i, len(c.Vector), dim)
		}
	}
	return dim, nil
}

// Cosine returns the cosine similarity of a and b, 0 when either is zero.
func Cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
