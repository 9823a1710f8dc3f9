package gemini

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"google.golang.org/genai"

	"ragchat/internal/embedding"
)

// Embedder calls the Gemini embedding API.
type Embedder struct {
	client    *genai.Client
	model     string
	timeout   time.Duration
	dimension atomic.Int64
}

// Config configures the Gemini embedder.
type Config struct {
	APIKeyEnv string
	Model     string
	BaseURL   string
	Timeout   time.Duration
}

func New(ctx context.Context, cfg Config) (*Embedder, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-004"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      key,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Embedder{client: client, model: cfg.Model, timeout: cfg.Timeout}, nil
}

func (e *Embedder) Name() string   { return "gemini:" + e.model }
func (e *Embedder) Dimension() int { return int(e.dimension.Load()) }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, nil)
	if err != nil {
		return nil, embedding.Unavailable(e.Name(), err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, embedding.Unavailable(e.Name(), fmt.Errorf("got %d embeddings for %d inputs", len(resp.Embeddings), len(texts)))
	}

	out := make([][]float32, len(texts))
	want := e.Dimension()
	for i, emb := range resp.Embeddings {
		if emb == nil {
			return nil, embedding.Unavailable(e.Name(), fmt.Errorf("embedding %d missing", i))
		}
		if err := embedding.Validate(e.Name(), emb.Values, want); err != nil {
			return nil, err
		}
		if want == 0 {
			want = len(emb.Values)
			e.dimension.CompareAndSwap(0, int64(want))
		}
		out[i] = emb.Values
	}
	return out, nil
}
