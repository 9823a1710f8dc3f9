package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

// fakeQdrant implements the handful of endpoints the client uses.
type fakeQdrant struct {
	mu      sync.Mutex
	exists  bool
	size    int
	points  []point
	apiKeys []string
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))

	path := strings.TrimPrefix(r.URL.Path, "/collections/docs")
	switch {
	case path == "" && r.Method == http.MethodGet:
		if !f.exists {
			http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"points_count": len(f.points)}})
	case path == "" && r.Method == http.MethodPut:
		var body struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Vectors.Distance != "Cosine" {
			http.Error(w, "bad distance", http.StatusBadRequest)
			return
		}
		f.exists, f.size = true, body.Vectors.Size
		_, _ = w.Write([]byte(`{"result":true}`))
	case path == "" && r.Method == http.MethodDelete:
		if !f.exists {
			http.Error(w, "missing", http.StatusNotFound)
			return
		}
		f.exists, f.points = false, nil
		_, _ = w.Write([]byte(`{"result":true}`))
	case path == "/points" && r.Method == http.MethodPut:
		var body struct {
			Points []point `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, p := range body.Points {
			if _, err := uuid.Parse(p.ID); err != nil || len(p.Vector) != f.size {
				http.Error(w, "bad point", http.StatusBadRequest)
				return
			}
		}
		f.points = append(f.points, body.Points...)
		_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
	case path == "/points/search" && r.Method == http.MethodPost:
		if !f.exists {
			http.Error(w, "missing", http.StatusNotFound)
			return
		}
		var body struct {
			Vector []float32 `json:"vector"`
			Limit  int       `json:"limit"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		type hit struct {
			Score   float64   `json:"score"`
			Payload payload   `json:"payload"`
			Vector  []float32 `json:"vector"`
		}
		hits := make([]hit, 0, len(f.points))
		for _, p := range f.points {
			hits = append(hits, hit{Score: vectorstore.Cosine(p.Vector, body.Vector), Payload: p.Payload, Vector: p.Vector})
		}
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
		if len(hits) > body.Limit {
			hits = hits[:body.Limit]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": hits})
	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusTeapot)
	}
}

func (f *fakeQdrant) snapshot() (exists bool, size int, keys []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exists, f.size, append([]string(nil), f.apiKeys...)
}

func newStorage(t *testing.T) (*Storage, *fakeQdrant) {
	t.Helper()
	fake := &fakeQdrant{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return NewStorage(Config{URL: srv.URL, APIKey: "secret", Collection: "docs"}), fake
}

func TestInsertSearchClear(t *testing.T) {
	ctx := context.Background()
	s, fake := newStorage(t)

	results, err := s.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, results)

	require.NoError(t, s.Insert(ctx, []domain.Chunk{
		{ID: "c-1", DocumentID: "d", Source: "a.pdf", Index: 0, Page: 2, Start: 0, End: 5, Text: "cats", Vector: []float32{1, 0}},
		{ID: uuid.NewString(), DocumentID: "d", Source: "a.pdf", Index: 1, Page: 3, Start: 5, End: 9, Text: "rocks", Vector: []float32{0, 1}},
	}))
	_, size, _ := fake.snapshot()
	assert.Equal(t, 2, size)

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	results, err = s.Search(ctx, []float32{1, 0.1}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	got := results[0].Chunk
	assert.Equal(t, "c-1", got.ID)
	assert.Equal(t, "cats", got.Text)
	assert.Equal(t, "a.pdf", got.Source)
	assert.Equal(t, 2, got.Page)
	assert.Equal(t, []float32{1, 0}, got.Vector)

	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Clear(ctx))
	n, err = s.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, _, keys := fake.snapshot()
	for _, k := range keys {
		assert.Equal(t, "secret", k)
	}
}

func TestInsertRejectsMixedDimensions(t *testing.T) {
	ctx := context.Background()
	s, fake := newStorage(t)
	err := s.Insert(ctx, []domain.Chunk{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "b", Vector: []float32{1, 0, 0}},
	})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	exists, _, _ := fake.snapshot()
	assert.False(t, exists)
}

func TestSearchRejectsWrongDimension(t *testing.T) {
	ctx := context.Background()
	s, _ := newStorage(t)
	require.NoError(t, s.Insert(ctx, []domain.Chunk{{ID: "a", Vector: []float32{1, 0}}}))
	_, err := s.Search(ctx, []float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestPointIDIsStable(t *testing.T) {
	id := uuid.NewString()
	assert.Equal(t, id, pointID(id))
	assert.Equal(t, pointID("doc:1"), pointID("doc:1"))
	_, err := uuid.Parse(pointID("doc:1"))
	assert.NoError(t, err)
}
