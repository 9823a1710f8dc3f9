package retriever

import (
	"context"
	"fmt"

	"ragchat/internal/domain"
	"ragchat/internal/embedding"
	"ragchat/internal/vectorstore"
)

// Retriever finds the chunks most relevant to a question.
type Retriever struct {
	embedder  domain.Embedder
	store     vectorstore.Storage
	topK      int
	threshold float64
}

// New creates a retriever. threshold <= 0 disables score filtering.
func New(embedder domain.Embedder, store vectorstore.Storage, topK int, threshold float64) *Retriever {
	if topK <= 0 {
		topK = 3
	}
	return &Retriever{embedder: embedder, store: store, topK: topK, threshold: threshold}
}

// Retrieve returns at most topK results ordered by descending score.
// An empty index short-circuits without calling the embedder.
func (r *Retriever) Retrieve(ctx context.Context, question string) (domain.RetrievalResult, error) {
	n, err := r.store.Len(ctx)
	if err != nil {
		return nil, fmt.Errorf("index size: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	vec, err := r.EmbedQuery(ctx, question)
	if err != nil {
		return nil, err
	}
	results, err := r.Search(ctx, vec)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return results, nil
}

// EmbedQuery embeds the question with the index's embedder.
func (r *Retriever) EmbedQuery(ctx context.Context, question string) ([]float32, error) {
	vec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, embedding.Unavailable(r.embedder.Name(), err)
	}
	if err := embedding.Validate(r.embedder.Name(), vec, 0); err != nil {
		return nil, err
	}
	return vec, nil
}

// Search runs the similarity search for an already embedded question and
// returns at most topK results ordered by descending score.
func (r *Retriever) Search(ctx context.Context, vec []float32) (domain.RetrievalResult, error) {
	results, err := r.store.Search(ctx, vec, r.topK)
	if err != nil {
		return nil, err
	}
	if r.threshold <= 0 {
		return results, nil
	}
	kept := results[:0]
	for _, res := range results {
		if res.Score >= r.threshold {
			kept = append(kept, res)
		}
	}
	return kept, nil
}
