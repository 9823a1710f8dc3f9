package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

type flakyEmbedder struct {
	err   error
	calls int
}

func (e *flakyEmbedder) Name() string   { return "flaky" }
func (e *flakyEmbedder) Dimension() int { return 1 }
func (e *flakyEmbedder) Embed(context.Context, string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return []float32{1}, nil
}

type stubGenerator struct{ err error }

func (g stubGenerator) Name() string { return "stub" }
func (g stubGenerator) Generate(context.Context, domain.Prompt) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return "ok", nil
}

func TestGuardPassesThrough(t *testing.T) {
	g := NewGuard(Settings{Name: "p"}, nil)
	e := GuardEmbedder(&flakyEmbedder{}, g)
	vec, err := e.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vec)
	assert.Equal(t, "closed", g.State())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	g := NewGuard(Settings{Name: "p", ConsecutiveFailures: 2, OpenTimeout: time.Minute}, nil)
	inner := &flakyEmbedder{err: errors.New("503")}
	e := GuardEmbedder(inner, g)

	for i := 0; i < 2; i++ {
		_, err := e.Embed(context.Background(), "x")
		assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	}
	assert.Equal(t, "open", g.State())

	_, err := e.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.Equal(t, 2, inner.calls, "open breaker must not reach the provider")
}

func TestCancellationDoesNotTrip(t *testing.T) {
	g := NewGuard(Settings{Name: "p", ConsecutiveFailures: 1}, nil)
	e := GuardEmbedder(&flakyEmbedder{err: context.Canceled}, g)
	_, err := e.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "closed", g.State())
}

func TestRateLimiterHonoursContext(t *testing.T) {
	g := NewGuard(Settings{Name: "p", RequestsPerSecond: 0.001, Burst: 1}, nil)
	require.NoError(t, g.Do(context.Background(), func(context.Context) error { return nil }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.Do(ctx, func(context.Context) error { return nil })
	assert.Error(t, err)
}

func TestGuardGeneratorWrapsFailures(t *testing.T) {
	g := NewGuard(Settings{Name: "gen"}, nil)
	text, err := GuardGenerator(stubGenerator{}, g).Generate(context.Background(), domain.Prompt{})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)

	_, err = GuardGenerator(stubGenerator{err: errors.New("boom")}, g).Generate(context.Background(), domain.Prompt{})
	assert.ErrorIs(t, err, domain.ErrGenerationFailed)
}

func TestGuardEmbedderBatchFallback(t *testing.T) {
	e := GuardEmbedder(&flakyEmbedder{}, NewGuard(Settings{Name: "p"}, nil))
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
}
