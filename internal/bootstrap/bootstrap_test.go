package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/config"
	"ragchat/internal/domain"
	"ragchat/internal/embedding/cache"
	"ragchat/internal/resilience"
)

func defaults(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	return cfg
}

func TestDefaultsBuildWorkingKnowledgeBase(t *testing.T) {
	cfg := defaults(t)
	f, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer f.Close()

	kb, err := f.NewKnowledgeBase("s1")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "zoo.txt")
	require.NoError(t, os.WriteFile(path, []byte("Cats are mammals. Rocks are not alive."), 0o644))
	_, err = kb.Ingest(context.Background(), path)
	require.NoError(t, err)

	ans, err := kb.Ask(context.Background(), "are cats mammals?")
	require.NoError(t, err)
	assert.True(t, ans.Grounded)
	assert.Contains(t, ans.Text, "Cats are mammals.")
}

func TestKnowledgeBasesDoNotShareIndexes(t *testing.T) {
	f, err := New(context.Background(), defaults(t), nil)
	require.NoError(t, err)
	defer f.Close()

	a, err := f.NewKnowledgeBase("a")
	require.NoError(t, err)
	b, err := f.NewKnowledgeBase("b")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "zoo.txt")
	require.NoError(t, os.WriteFile(path, []byte("Cats are mammals."), 0o644))
	_, err = a.Ingest(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, domain.StateReady, a.State())
	assert.Equal(t, domain.StateEmpty, b.State())
}

func TestUnknownComponents(t *testing.T) {
	cases := map[string]func(*config.AppConfig){
		"embedder":  func(c *config.AppConfig) { c.Embedder.Type = "magic" },
		"generator": func(c *config.AppConfig) { c.Generator.Type = "magic" },
		"chunker":   func(c *config.AppConfig) { c.Chunker.Type = "magic" },
		"cache":     func(c *config.AppConfig) { c.Cache.Type = "magic" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := defaults(t)
			mutate(cfg)
			_, err := New(context.Background(), cfg, nil)
			assert.Error(t, err)
		})
	}

	cfg := defaults(t)
	cfg.VectorStore.Type = "magic"
	f, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	_, err = f.NewKnowledgeBase("x")
	assert.Error(t, err)
}

func TestRemoteProviderWithoutKeyFails(t *testing.T) {
	cfg := defaults(t)
	cfg.Generator.Type = "openai"
	cfg.Generator.OpenAI = &config.OpenAIConfig{APIKeyEnv: "RAGCHAT_TEST_UNSET_KEY"}
	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestRemoteEmbedderIsGuarded(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	cfg := defaults(t)
	cfg.Embedder.Type = "openai"
	cfg.Embedder.OpenAI = &config.OpenAIConfig{APIKeyEnv: "TEST_OPENAI_KEY", Model: "m"}

	f, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer f.Close()
	_, guarded := f.embedder.(*resilience.Embedder)
	assert.True(t, guarded)
	assert.Equal(t, "openai:m", f.embedder.Name())
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := defaults(t)
	cfg.Cache.Type = "redis"
	cfg.Cache.Redis = &config.RedisConfig{Addr: mr.Addr(), Prefix: "test:"}

	f, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer f.Close()
	_, cached := f.embedder.(*cache.Embedder)
	require.True(t, cached)

	_, err = f.embedder.Embed(context.Background(), "cats are mammals")
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:"+cache.Key("hashing", "cats are mammals")))
}

func TestRedisUnreachable(t *testing.T) {
	cfg := defaults(t)
	cfg.Cache.Type = "redis"
	cfg.Cache.Redis = &config.RedisConfig{Addr: "127.0.0.1:1"}
	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestCollectionName(t *testing.T) {
	assert.Equal(t, "ragchat", CollectionName("ragchat", ""))
	assert.Equal(t, "ragchat_abc-1", CollectionName("ragchat", "abc-1"))
	assert.Equal(t, "ragchat_a_b", CollectionName("ragchat", "a/../b"))
}
