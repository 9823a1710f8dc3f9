package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	"ragchat/internal/domain"
	"ragchat/internal/logger"
)

// Store persists vectors by content key.
type Store interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32) error
}

// Embedder serves repeated texts from a Store and delegates misses.
// Cache failures are logged and never fail an embedding.
type Embedder struct {
	inner domain.Embedder
	store Store
	log   *slog.Logger
}

func New(inner domain.Embedder, store Store, log *slog.Logger) *Embedder {
	return &Embedder{inner: inner, store: store, log: logger.OrDiscard(log)}
}

func (e *Embedder) Name() string   { return e.inner.Name() }
func (e *Embedder) Dimension() int { return e.inner.Dimension() }

// Key derives the cache key for text under the embedder's model.
func Key(model, text string) string {
	sum := sha256.Sum256([]byte(model + "|" + text))
	return hex.EncodeToString(sum[:])
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := Key(e.inner.Name(), text)
	if vec, ok := e.lookup(ctx, key); ok {
		return vec, nil
	}
	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.remember(ctx, key, vec)
	return vec, nil
}

// EmbedBatch looks up every text and embeds only the misses.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		keys[i] = Key(e.inner.Name(), text)
		if vec, ok := e.lookup(ctx, keys[i]); ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	var fresh [][]float32
	if be, ok := e.inner.(domain.BatchEmbedder); ok {
		vecs, err := be.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		fresh = vecs
	} else {
		fresh = make([][]float32, len(missTexts))
		for i, text := range missTexts {
			vec, err := e.inner.Embed(ctx, text)
			if err != nil {
				return nil, err
			}
			fresh[i] = vec
		}
	}
	for j, i := range missIdx {
		if j >= len(fresh) {
			break
		}
		out[i] = fresh[j]
		e.remember(ctx, keys[i], fresh[j])
	}
	return out, nil
}

func (e *Embedder) lookup(ctx context.Context, key string) ([]float32, bool) {
	vec, ok, err := e.store.Get(ctx, key)
	if err != nil {
		e.log.Warn("embedding cache read failed", "error", err)
		return nil, false
	}
	if !ok || len(vec) == 0 {
		return nil, false
	}
	return vec, true
}

func (e *Embedder) remember(ctx context.Context, key string, vec []float32) {
	if err := e.store.Set(ctx, key, vec); err != nil {
		e.log.Warn("embedding cache write failed", "error", err)
	}
}
