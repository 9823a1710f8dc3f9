package config

import (
	"os"
	"strconv"
)

// overrideByEnv lets RAGCHAT_* variables win over the config file.
func overrideByEnv(cfg *AppConfig) {
	cfg.Chunker.Type = getEnv("RAGCHAT_CHUNKER", cfg.Chunker.Type)
	cfg.Chunker.MaxChunkSize = getEnvAsInt("RAGCHAT_CHUNK_SIZE", cfg.Chunker.MaxChunkSize)
	cfg.Chunker.Overlap = getEnvAsInt("RAGCHAT_CHUNK_OVERLAP", cfg.Chunker.Overlap)

	cfg.Embedder.Type = getEnv("RAGCHAT_EMBEDDER", cfg.Embedder.Type)
	cfg.Embedder.TimeoutSecs = getEnvAsInt("RAGCHAT_EMBED_TIMEOUT_SECS", cfg.Embedder.TimeoutSecs)

	cfg.VectorStore.Type = getEnv("RAGCHAT_VECTOR_STORE", cfg.VectorStore.Type)
	cfg.Cache.Type = getEnv("RAGCHAT_CACHE", cfg.Cache.Type)

	cfg.Retriever.TopK = getEnvAsInt("RAGCHAT_TOP_K", cfg.Retriever.TopK)
	cfg.Retriever.ScoreThreshold = getEnvAsFloat("RAGCHAT_SCORE_THRESHOLD", cfg.Retriever.ScoreThreshold)

	cfg.Generator.Type = getEnv("RAGCHAT_GENERATOR", cfg.Generator.Type)
	cfg.Generator.TimeoutSecs = getEnvAsInt("RAGCHAT_GENERATE_TIMEOUT_SECS", cfg.Generator.TimeoutSecs)

	cfg.Server.Addr = getEnv("RAGCHAT_ADDR", cfg.Server.Addr)
	cfg.Server.GinMode = getEnv("GIN_MODE", cfg.Server.GinMode)

	cfg.Log.Level = getEnv("RAGCHAT_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("RAGCHAT_LOG_FORMAT", cfg.Log.Format)
	cfg.Log.File = getEnv("RAGCHAT_LOG_FILE", cfg.Log.File)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
