package ollama

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"

	"ragchat/internal/embedding"
)

// Embedder produces embeddings from a local Ollama server.
type Embedder struct {
	inner     *embeddings.EmbedderImpl
	model     string
	timeout   time.Duration
	dimension atomic.Int64
}

// Config configures the Ollama embedder.
type Config struct {
	ServerURL string
	Model     string
	Timeout   time.Duration
}

func New(cfg Config) (*Embedder, error) {
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.ServerURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.ServerURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("ollama client: %w", err)
	}
	inner, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: %w", err)
	}
	return &Embedder{inner: inner, model: cfg.Model, timeout: cfg.Timeout}, nil
}

func (e *Embedder) Name() string   { return "ollama:" + e.model }
func (e *Embedder) Dimension() int { return int(e.dimension.Load()) }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	vec, err := e.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, embedding.Unavailable(e.Name(), err)
	}
	if err := embedding.Validate(e.Name(), vec, e.Dimension()); err != nil {
		return nil, err
	}
	e.dimension.CompareAndSwap(0, int64(len(vec)))
	return vec, nil
}
