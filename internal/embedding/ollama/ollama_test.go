package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	e, err := New(Config{ServerURL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "cats are mammals")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, 3, e.Dimension())
}

func TestEmbedServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer srv.Close()

	e, err := New(Config{ServerURL: srv.URL, Model: "missing", Timeout: time.Second})
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestEmbedDimensionMismatch(t *testing.T) {
	var size atomic.Int32
	size.Store(3)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := size.Add(1) - 1
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": make([]float32, n)})
	}))
	defer srv.Close()

	e, err := New(Config{ServerURL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), "first")
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), "second")
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}
