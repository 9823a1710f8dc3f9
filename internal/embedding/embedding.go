package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"ragchat/internal/domain"
)

// Unavailable wraps cause as a domain.ErrEmbeddingUnavailable error.
// Errors that already carry the sentinel are returned unchanged.
func Unavailable(provider string, cause error) error {
	if cause == nil {
		return nil
	}
	if errors.Is(cause, domain.ErrEmbeddingUnavailable) {
		return cause
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrEmbeddingUnavailable, provider, cause)
}

// Validate checks that a provider returned a usable vector of the expected dimension.
// want <= 0 accepts any non-empty vector.
func Validate(provider string, vec []float32, want int) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: %s returned an empty vector", domain.ErrEmbeddingUnavailable, provider)
	}
	if want > 0 && len(vec) != want {
		return fmt.Errorf("%w: %s returned %d dimensions, expected %d", domain.ErrEmbeddingUnavailable, provider, len(vec), want)
	}
	return nil
}

// Normalize scales v to unit length in place. Zero vectors are left as is.
func Normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	inv := 1 / math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

// BatchOptions bound how EmbedAll spreads work.
type BatchOptions struct {
	Concurrency int
	BatchSize   int
}

// EmbedAll embeds texts with bounded parallelism. The result has the same
// order as texts. Any failure cancels the remaining work and fails the call.
func EmbedAll(ctx context.Context, e domain.Embedder, texts []string, opts BatchOptions) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	if be, ok := e.(domain.BatchEmbedder); ok && opts.BatchSize > 1 {
		for start := 0; start < len(texts); start += opts.BatchSize {
			start := start
			end := min(start+opts.BatchSize, len(texts))
			g.Go(func() error {
				vecs, err := be.EmbedBatch(gctx, texts[start:end])
				if err != nil {
					return Unavailable(e.Name(), err)
				}
				if len(vecs) != end-start {
					return fmt.Errorf("%w: %s returned %d vectors for %d texts", domain.ErrEmbeddingUnavailable, e.Name(), len(vecs), end-start)
				}
				copy(out[start:end], vecs)
				return nil
			})
		}
	} else {
		for i, text := range texts {
			i, text := i, text
			g.Go(func() error {
				vec, err := e.Embed(gctx, text)
				if err != nil {
					return Unavailable(e.Name(), err)
				}
				out[i] = vec
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dim := len(out[0])
	for i, vec := range out {
		if err := Validate(e.Name(), vec, dim); err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
	}
	return out, nil
}
