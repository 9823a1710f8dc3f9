package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"ragchat/internal/domain"
	"ragchat/internal/logger"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("provider circuit open")

// Settings configure a Guard.
type Settings struct {
	Name string
	// RequestsPerSecond <= 0 disables rate limiting.
	RequestsPerSecond float64
	Burst             int
	// ConsecutiveFailures that trip the breaker; 0 disables it.
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// Guard wraps provider calls in a rate limiter and a circuit breaker.
// It never retries.
type Guard struct {
	name    string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func NewGuard(s Settings, log *slog.Logger) *Guard {
	log = logger.OrDiscard(log)
	g := &Guard{name: s.Name}
	if s.RequestsPerSecond > 0 {
		burst := s.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(s.RequestsPerSecond), burst)
	}
	if s.ConsecutiveFailures > 0 {
		timeout := s.OpenTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		threshold := s.ConsecutiveFailures
		g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        s.Name,
			MaxRequests: 1,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			// Cancellation by the caller says nothing about provider health.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("circuit breaker state changed", "provider", name, "from", from.String(), "to", to.String())
			},
		})
	}
	return g
}

// Do runs fn once if the limiter and breaker allow it.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s rate limit: %w", g.name, err)
		}
	}
	if g.breaker == nil {
		return fn(ctx)
	}
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, g.name)
	}
	return err
}

// State reports the breaker state, "closed" when no breaker is configured.
func (g *Guard) State() string {
	if g.breaker == nil {
		return gobreaker.StateClosed.String()
	}
	return g.breaker.State().String()
}

// Embedder applies a Guard to every call of an embedder.
type Embedder struct {
	inner domain.Embedder
	guard *Guard
}

func GuardEmbedder(inner domain.Embedder, g *Guard) *Embedder {
	return &Embedder{inner: inner, guard: g}
}

func (e *Embedder) Name() string   { return e.inner.Name() }
func (e *Embedder) Dimension() int { return e.inner.Dimension() }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := e.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		vec, err = e.inner.Embed(ctx, text)
		return err
	})
	if err != nil {
		return nil, wrapSentinel(err, domain.ErrEmbeddingUnavailable)
	}
	return vec, nil
}

// EmbedBatch delegates to the inner batch call when there is one.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	be, ok := e.inner.(domain.BatchEmbedder)
	if !ok {
		out := make([][]float32, len(texts))
		for i, t := range texts {
			vec, err := e.Embed(ctx, t)
			if err != nil {
				return nil, err
			}
			out[i] = vec
		}
		return out, nil
	}
	var out [][]float32
	err := e.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = be.EmbedBatch(ctx, texts)
		return err
	})
	if err != nil {
		return nil, wrapSentinel(err, domain.ErrEmbeddingUnavailable)
	}
	return out, nil
}

// Generator applies a Guard to every call of a generator.
type Generator struct {
	inner domain.Generator
	guard *Guard
}

func GuardGenerator(inner domain.Generator, g *Guard) *Generator {
	return &Generator{inner: inner, guard: g}
}

func (g *Generator) Name() string { return g.inner.Name() }

func (g *Generator) Generate(ctx context.Context, prompt domain.Prompt) (string, error) {
	var text string
	err := g.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		text, err = g.inner.Generate(ctx, prompt)
		return err
	})
	if err != nil {
		return "", wrapSentinel(err, domain.ErrGenerationFailed)
	}
	return text, nil
}

func wrapSentinel(err, sentinel error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
