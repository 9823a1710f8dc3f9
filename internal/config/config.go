package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// LoaderConfig limits what the document loader accepts.
type LoaderConfig struct {
	MaxFileBytes int64 `yaml:"max_file_bytes" toml:"max_file_bytes"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type              string `yaml:"type" toml:"type"`
	MaxChunkSize      int    `yaml:"max_chunk_size" toml:"max_chunk_size"`
	Overlap           int    `yaml:"overlap" toml:"overlap"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk" toml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences" toml:"overlap_sentences"`
}

// OpenAIConfig holds configuration for OpenAI-compatible providers.
type OpenAIConfig struct {
	BaseURL   string `yaml:"base_url" toml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env" toml:"api_key_env"`
	Model     string `yaml:"model" toml:"model"`
}

// GeminiConfig holds configuration for the Gemini API.
type GeminiConfig struct {
	APIKeyEnv string `yaml:"api_key_env" toml:"api_key_env"`
	Model     string `yaml:"model" toml:"model"`
}

// OllamaConfig holds configuration for a local Ollama server.
type OllamaConfig struct {
	ServerURL string `yaml:"server_url" toml:"server_url"`
	Model     string `yaml:"model" toml:"model"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type        string        `yaml:"type" toml:"type"`
	Dimension   int           `yaml:"dimension" toml:"dimension"`
	TimeoutSecs int           `yaml:"timeout_secs" toml:"timeout_secs"`
	BatchSize   int           `yaml:"batch_size" toml:"batch_size"`
	Concurrency int           `yaml:"concurrency" toml:"concurrency"`
	OpenAI      *OpenAIConfig `yaml:"openai,omitempty" toml:"openai,omitempty"`
	Gemini      *GeminiConfig `yaml:"gemini,omitempty" toml:"gemini,omitempty"`
	Ollama      *OllamaConfig `yaml:"ollama,omitempty" toml:"ollama,omitempty"`
}

// CacheConfig configures the embedding cache.
type CacheConfig struct {
	Type    string       `yaml:"type" toml:"type"`
	TTLSecs int          `yaml:"ttl_secs" toml:"ttl_secs"`
	Redis   *RedisConfig `yaml:"redis,omitempty" toml:"redis,omitempty"`
}

// RedisConfig contains connection details for Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db"`
	Prefix   string `yaml:"prefix" toml:"prefix"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type" toml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty" toml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url" toml:"url"`
	APIKey      string `yaml:"api_key" toml:"api_key"`
	Collection  string `yaml:"collection" toml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"`
}

// RetrieverConfig configures similarity search.
type RetrieverConfig struct {
	TopK           int     `yaml:"top_k" toml:"top_k"`
	ScoreThreshold float64 `yaml:"score_threshold" toml:"score_threshold"`
}

// PromptConfig configures prompt assembly.
type PromptConfig struct {
	System           string `yaml:"system" toml:"system"`
	MaxContextTokens int    `yaml:"max_context_tokens" toml:"max_context_tokens"`
	HistoryTurns     int    `yaml:"history_turns" toml:"history_turns"`
}

// GeneratorConfig selects and configures the answer generator.
type GeneratorConfig struct {
	Type         string        `yaml:"type" toml:"type"`
	TimeoutSecs  int           `yaml:"timeout_secs" toml:"timeout_secs"`
	MaxSentences int           `yaml:"max_sentences" toml:"max_sentences"`
	Temperature  float32       `yaml:"temperature" toml:"temperature"`
	OpenAI       *OpenAIConfig `yaml:"openai,omitempty" toml:"openai,omitempty"`
	Gemini       *GeminiConfig `yaml:"gemini,omitempty" toml:"gemini,omitempty"`
	Ollama       *OllamaConfig `yaml:"ollama,omitempty" toml:"ollama,omitempty"`
}

// ResilienceConfig guards remote providers.
type ResilienceConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int     `yaml:"burst" toml:"burst"`
	BreakerFailures   uint32  `yaml:"breaker_failures" toml:"breaker_failures"`
	BreakerOpenSecs   int     `yaml:"breaker_open_secs" toml:"breaker_open_secs"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Addr           string `yaml:"addr" toml:"addr"`
	GinMode        string `yaml:"gin_mode" toml:"gin_mode"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" toml:"max_upload_bytes"`
	SessionIdleMin int    `yaml:"session_idle_min" toml:"session_idle_min"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	File   string `yaml:"file" toml:"file"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Loader      LoaderConfig      `yaml:"loader" toml:"loader"`
	Chunker     ChunkerConfig     `yaml:"chunker" toml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder" toml:"embedder"`
	Cache       CacheConfig       `yaml:"cache" toml:"cache"`
	VectorStore VectorStoreConfig `yaml:"vector_store" toml:"vector_store"`
	Retriever   RetrieverConfig   `yaml:"retriever" toml:"retriever"`
	Prompt      PromptConfig      `yaml:"prompt" toml:"prompt"`
	Generator   GeneratorConfig   `yaml:"generator" toml:"generator"`
	Resilience  ResilienceConfig  `yaml:"resilience" toml:"resilience"`
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Log         LogConfig         `yaml:"log" toml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// The format is chosen by extension: .toml is TOML, anything else YAML.
func Load(path string) (*AppConfig, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			overrideByEnv(cfg)
			applyConfigDefaults(cfg)
			return cfg, nil
		}
		return nil, err
	}
	if isTOML(path) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	overrideByEnv(cfg)
	applyConfigDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./config.yaml and ./config.toml first, then ~/.config/ragchat/config.yaml.
// If none exists, it writes defaults to ~/.config/ragchat/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	for _, p := range []string{"config.yaml", "config.toml"} {
		if _, err := os.Stat(p); err == nil {
			cfg, err := Load(p)
			return cfg, p, err
		}
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	overrideByEnv(cfg)
	applyConfigDefaults(cfg)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if isTOML(path) {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := toml.NewEncoder(f).Encode(cfg); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate reports settings that cannot work together.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Chunker.MaxChunkSize <= 0 {
		errs = append(errs, errors.New("chunker.max_chunk_size must be positive"))
	}
	if c.Chunker.Overlap < 0 {
		errs = append(errs, errors.New("chunker.overlap must not be negative"))
	}
	if c.Retriever.TopK <= 0 {
		errs = append(errs, errors.New("retriever.top_k must be positive"))
	}
	if c.Retriever.ScoreThreshold < 0 || c.Retriever.ScoreThreshold > 1 {
		errs = append(errs, errors.New("retriever.score_threshold must be within [0, 1]"))
	}
	if c.Prompt.MaxContextTokens <= 0 {
		errs = append(errs, errors.New("prompt.max_context_tokens must be positive"))
	}
	switch c.Embedder.Type {
	case "openai":
		if c.Embedder.OpenAI == nil {
			errs = append(errs, errors.New("embedder.openai section missing"))
		}
	case "gemini":
		if c.Embedder.Gemini == nil {
			errs = append(errs, errors.New("embedder.gemini section missing"))
		}
	case "ollama":
		if c.Embedder.Ollama == nil {
			errs = append(errs, errors.New("embedder.ollama section missing"))
		}
	}
	if c.VectorStore.Type == "qdrant" && c.VectorStore.Qdrant == nil {
		errs = append(errs, errors.New("vector_store.qdrant section missing"))
	}
	if c.Cache.Type == "redis" && c.Cache.Redis == nil {
		errs = append(errs, errors.New("cache.redis section missing"))
	}
	return errors.Join(errs...)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragchat", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Loader:      LoaderConfig{MaxFileBytes: 64 << 20},
		Chunker:     ChunkerConfig{Type: "window", MaxChunkSize: 1024, Overlap: 100, SentencesPerChunk: 5, OverlapSentences: 1},
		Embedder:    EmbedderConfig{Type: "hashing", Dimension: 512, TimeoutSecs: 30, BatchSize: 32, Concurrency: 4},
		Cache:       CacheConfig{Type: "none"},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Retriever:   RetrieverConfig{TopK: 3},
		Prompt:      PromptConfig{MaxContextTokens: 3000},
		Generator:   GeneratorConfig{Type: "extractive", TimeoutSecs: 120, MaxSentences: 3},
		Resilience:  ResilienceConfig{BreakerFailures: 5, BreakerOpenSecs: 30},
		Server:      ServerConfig{Addr: ":8080", GinMode: "release", MaxUploadBytes: 32 << 20, SessionIdleMin: 60},
		Log:         LogConfig{Level: "info", Format: "text"},
	}
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "window"
	}
	if cfg.Chunker.MaxChunkSize == 0 {
		cfg.Chunker.MaxChunkSize = 1024
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.TimeoutSecs == 0 {
		cfg.Embedder.TimeoutSecs = 30
	}
	if cfg.Embedder.Concurrency == 0 {
		cfg.Embedder.Concurrency = 4
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = 32
	}
	if cfg.Embedder.Type == "hashing" && cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 512
	}
	if o := cfg.Embedder.OpenAI; o != nil {
		applyOpenAIDefaults(o, "text-embedding-3-small")
	}
	if g := cfg.Embedder.Gemini; g != nil {
		applyGeminiDefaults(g, "text-embedding-004")
	}
	if o := cfg.Embedder.Ollama; o != nil {
		applyOllamaDefaults(o, "nomic-embed-text")
	}
	if cfg.Retriever.TopK == 0 {
		cfg.Retriever.TopK = 3
	}
	if cfg.Prompt.MaxContextTokens == 0 {
		cfg.Prompt.MaxContextTokens = 3000
	}
	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "extractive"
	}
	if cfg.Generator.TimeoutSecs == 0 {
		cfg.Generator.TimeoutSecs = 120
	}
	if cfg.Generator.MaxSentences == 0 {
		cfg.Generator.MaxSentences = 3
	}
	if o := cfg.Generator.OpenAI; o != nil {
		applyOpenAIDefaults(o, "gpt-4o-mini")
	}
	if g := cfg.Generator.Gemini; g != nil {
		applyGeminiDefaults(g, "gemini-2.5-flash")
	}
	if o := cfg.Generator.Ollama; o != nil {
		applyOllamaDefaults(o, "mistral")
	}
	if q := cfg.VectorStore.Qdrant; q != nil {
		if q.Collection == "" {
			q.Collection = "ragchat"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 15
		}
	}
	if r := cfg.Cache.Redis; r != nil && r.Prefix == "" {
		r.Prefix = "ragchat:emb:"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 32 << 20
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func applyOpenAIDefaults(o *OpenAIConfig, model string) {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.openai.com/v1"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "OPENAI_API_KEY"
	}
	if o.Model == "" {
		o.Model = model
	}
}

func applyGeminiDefaults(g *GeminiConfig, model string) {
	if g.APIKeyEnv == "" {
		g.APIKeyEnv = "GEMINI_API_KEY"
	}
	if g.Model == "" {
		g.Model = model
	}
}

func applyOllamaDefaults(o *OllamaConfig, model string) {
	if o.ServerURL == "" {
		o.ServerURL = "http://localhost:11434"
	}
	if o.Model == "" {
		o.Model = model
	}
}
