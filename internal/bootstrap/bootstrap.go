// Package bootstrap turns an AppConfig into knowledge base components.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"time"

	"ragchat/internal/chunker"
	"ragchat/internal/config"
	"ragchat/internal/domain"
	"ragchat/internal/embedding"
	"ragchat/internal/embedding/cache"
	geminiemb "ragchat/internal/embedding/gemini"
	"ragchat/internal/embedding/hashing"
	ollamaemb "ragchat/internal/embedding/ollama"
	openaiemb "ragchat/internal/embedding/openai"
	"ragchat/internal/generator/extractive"
	geminigen "ragchat/internal/generator/gemini"
	ollamagen "ragchat/internal/generator/ollama"
	openaigen "ragchat/internal/generator/openai"
	"ragchat/internal/knowledgebase"
	"ragchat/internal/loader"
	"ragchat/internal/logger"
	"ragchat/internal/prompt"
	"ragchat/internal/resilience"
	"ragchat/internal/vectorstore"
	"ragchat/internal/vectorstore/memory"
	"ragchat/internal/vectorstore/qdrant"
)

const memoryCacheEntries = 10000

// Factory holds the components shared by every knowledge base of a process
// and creates a fresh vector index per knowledge base.
type Factory struct {
	cfg       *config.AppConfig
	log       *slog.Logger
	loader    domain.Loader
	chunker   domain.Chunker
	embedder  domain.Embedder
	generator domain.Generator
	assembler *prompt.Assembler
	closers   []io.Closer
}

// New builds the shared components described by cfg.
func New(ctx context.Context, cfg *config.AppConfig, log *slog.Logger) (*Factory, error) {
	log = logger.OrDiscard(log)
	f := &Factory{
		cfg:       cfg,
		log:       log,
		loader:    loader.New(cfg.Loader.MaxFileBytes, log),
		assembler: prompt.New(cfg.Prompt.System, cfg.Prompt.MaxContextTokens, cfg.Prompt.HistoryTurns),
	}

	ch, err := chunker.New(chunker.Kind(cfg.Chunker.Type), chunker.Options{
		MaxChunkSize:      cfg.Chunker.MaxChunkSize,
		Overlap:           cfg.Chunker.Overlap,
		SentencesPerChunk: cfg.Chunker.SentencesPerChunk,
		OverlapSentences:  cfg.Chunker.OverlapSentences,
	})
	if err != nil {
		return nil, err
	}
	f.chunker = ch

	if f.embedder, err = f.buildEmbedder(ctx); err != nil {
		_ = f.Close()
		return nil, err
	}
	if f.generator, err = f.buildGenerator(ctx); err != nil {
		_ = f.Close()
		return nil, err
	}
	log.Info("components ready",
		"chunker", cfg.Chunker.Type,
		"embedder", f.embedder.Name(),
		"generator", f.generator.Name(),
		"vector_store", cfg.VectorStore.Type,
		"cache", cfg.Cache.Type,
	)
	return f, nil
}

// NewKnowledgeBase creates a knowledge base with its own index.
// id keeps remote collections of different sessions apart.
func (f *Factory) NewKnowledgeBase(id string) (*knowledgebase.KnowledgeBase, error) {
	store, err := f.newStore(id)
	if err != nil {
		return nil, err
	}
	return knowledgebase.New(knowledgebase.Deps{
		Loader:    f.loader,
		Chunker:   f.chunker,
		Embedder:  f.embedder,
		Store:     store,
		Generator: f.generator,
		Prompt:    f.assembler,
		Logger:    f.log.With("session", id),
	},
		knowledgebase.WithRetrieval(f.cfg.Retriever.TopK, f.cfg.Retriever.ScoreThreshold),
		knowledgebase.WithBatch(embedding.BatchOptions{
			Concurrency: f.cfg.Embedder.Concurrency,
			BatchSize:   f.cfg.Embedder.BatchSize,
		}),
	), nil
}

// Close releases connections opened by New.
func (f *Factory) Close() error {
	var first error
	for _, c := range f.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	f.closers = nil
	return first
}

func (f *Factory) buildEmbedder(ctx context.Context) (domain.Embedder, error) {
	cfg := f.cfg.Embedder
	timeout := seconds(cfg.TimeoutSecs)

	var (
		emb    domain.Embedder
		remote = true
		err    error
	)
	switch cfg.Type {
	case "hashing", "":
		emb = hashing.NewEmbedder(cfg.Dimension)
		remote = false
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		emb, err = openaiemb.NewClient(openaiemb.Config{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKeyEnv: cfg.OpenAI.APIKeyEnv,
			Model:     cfg.OpenAI.Model,
			Timeout:   timeout,
		})
	case "gemini":
		if cfg.Gemini == nil {
			return nil, fmt.Errorf("gemini embedder config missing")
		}
		emb, err = geminiemb.New(ctx, geminiemb.Config{
			APIKeyEnv: cfg.Gemini.APIKeyEnv,
			Model:     cfg.Gemini.Model,
			Timeout:   timeout,
		})
	case "ollama":
		if cfg.Ollama == nil {
			return nil, fmt.Errorf("ollama embedder config missing")
		}
		emb, err = ollamaemb.New(ollamaemb.Config{
			ServerURL: cfg.Ollama.ServerURL,
			Model:     cfg.Ollama.Model,
			Timeout:   timeout,
		})
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%s embedder init failed: %w", cfg.Type, err)
	}

	if remote {
		emb = resilience.GuardEmbedder(emb, resilience.NewGuard(f.guardSettings(emb.Name()), f.log))
	}

	store, err := f.buildCacheStore(ctx)
	if err != nil {
		return nil, err
	}
	if store != nil {
		emb = cache.New(emb, store, f.log)
	}
	return emb, nil
}

func (f *Factory) buildCacheStore(ctx context.Context) (cache.Store, error) {
	cfg := f.cfg.Cache
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "memory":
		return cache.NewMemoryStore(memoryCacheEntries), nil
	case "redis":
		if cfg.Redis == nil {
			return nil, fmt.Errorf("redis cache config missing")
		}
		client, err := cache.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		f.closers = append(f.closers, client)
		return cache.NewRedisStore(client, cfg.Redis.Prefix, seconds(cfg.TTLSecs)), nil
	default:
		return nil, fmt.Errorf("unknown cache: %s", cfg.Type)
	}
}

func (f *Factory) buildGenerator(ctx context.Context) (domain.Generator, error) {
	cfg := f.cfg.Generator
	timeout := seconds(cfg.TimeoutSecs)

	var (
		gen domain.Generator
		err error
	)
	switch cfg.Type {
	case "extractive", "":
		return extractive.New(cfg.MaxSentences), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("openai generator config missing")
		}
		gen, err = openaigen.New(openaigen.Config{
			BaseURL:     cfg.OpenAI.BaseURL,
			APIKeyEnv:   cfg.OpenAI.APIKeyEnv,
			Model:       cfg.OpenAI.Model,
			Temperature: cfg.Temperature,
			Timeout:     timeout,
		})
	case "gemini":
		if cfg.Gemini == nil {
			return nil, fmt.Errorf("gemini generator config missing")
		}
		gen, err = geminigen.New(ctx, geminigen.Config{
			APIKeyEnv:   cfg.Gemini.APIKeyEnv,
			Model:       cfg.Gemini.Model,
			Temperature: cfg.Temperature,
			Timeout:     timeout,
		})
	case "ollama":
		if cfg.Ollama == nil {
			return nil, fmt.Errorf("ollama generator config missing")
		}
		gen, err = ollamagen.New(ollamagen.Config{
			ServerURL:   cfg.Ollama.ServerURL,
			Model:       cfg.Ollama.Model,
			Temperature: cfg.Temperature,
			Timeout:     timeout,
		})
	default:
		return nil, fmt.Errorf("unknown generator: %s", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%s generator init failed: %w", cfg.Type, err)
	}
	return resilience.GuardGenerator(gen, resilience.NewGuard(f.guardSettings(gen.Name()), f.log)), nil
}

func (f *Factory) newStore(id string) (vectorstore.Storage, error) {
	cfg := f.cfg.VectorStore
	switch cfg.Type {
	case "memory", "":
		dim := 0
		if f.cfg.Embedder.Type == "hashing" || f.cfg.Embedder.Type == "" {
			dim = f.embedder.Dimension()
		}
		return memory.NewStorage(dim), nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: CollectionName(cfg.Qdrant.Collection, id),
			Timeout:    seconds(cfg.Qdrant.TimeoutSecs),
		}), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
	}
}

var unsafeCollectionChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// CollectionName derives a per-session collection from the configured base.
func CollectionName(base, id string) string {
	id = unsafeCollectionChars.ReplaceAllString(id, "_")
	if id == "" {
		return base
	}
	return base + "_" + id
}

func (f *Factory) guardSettings(name string) resilience.Settings {
	r := f.cfg.Resilience
	return resilience.Settings{
		Name:                name,
		RequestsPerSecond:   r.RequestsPerSecond,
		Burst:               r.Burst,
		ConsecutiveFailures: r.BreakerFailures,
		OpenTimeout:         seconds(r.BreakerOpenSecs),
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
