// Package session keeps one knowledge base per client session.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"ragchat/internal/knowledgebase"
	"ragchat/internal/logger"
)

// ErrNotFound is returned for unknown or expired session ids.
var ErrNotFound = errors.New("session not found")

// Factory creates the knowledge base of a new session.
type Factory func(id string) (*knowledgebase.KnowledgeBase, error)

type entry struct {
	kb       *knowledgebase.KnowledgeBase
	lastUsed time.Time
}

// Registry maps session ids to knowledge bases and expires idle ones.
type Registry struct {
	factory Factory
	idle    time.Duration
	log     *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewRegistry creates a registry. idle <= 0 disables expiry.
func NewRegistry(factory Factory, idle time.Duration, log *slog.Logger) *Registry {
	return &Registry{
		factory:  factory,
		idle:     idle,
		log:      logger.OrDiscard(log),
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// Create starts a new session with an empty knowledge base.
func (r *Registry) Create() (string, *knowledgebase.KnowledgeBase, error) {
	id := uuid.NewString()
	kb, err := r.factory(id)
	if err != nil {
		return "", nil, err
	}
	r.mu.Lock()
	r.sessions[id] = &entry{kb: kb, lastUsed: r.now()}
	r.mu.Unlock()
	r.log.Info("session created", "session", id)
	return id, kb, nil
}

// Get returns the knowledge base of a session and marks it as used.
func (r *Registry) Get(id string) (*knowledgebase.KnowledgeBase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	e.lastUsed = r.now()
	return e.kb, nil
}

// Delete clears and forgets a session.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	r.log.Info("session deleted", "session", id)
	return e.kb.Clear(ctx)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep removes sessions idle for longer than the configured limit and
// returns how many were removed.
func (r *Registry) Sweep(ctx context.Context) int {
	if r.idle <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idle)
	var expired []*entry
	var ids []string

	r.mu.Lock()
	for id, e := range r.sessions {
		if e.lastUsed.Before(cutoff) {
			expired = append(expired, e)
			ids = append(ids, id)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for i, e := range expired {
		if err := e.kb.Clear(ctx); err != nil {
			r.log.Warn("clear of expired session failed", "session", ids[i], "error", err)
		}
		r.log.Info("session expired", "session", ids[i])
	}
	return len(expired)
}

// Run sweeps on every tick until ctx is done.
func (r *Registry) Run(ctx context.Context, every time.Duration) {
	if r.idle <= 0 || every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// CloseAll clears every session. Used on shutdown.
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()
	for id, e := range sessions {
		if err := e.kb.Clear(ctx); err != nil {
			r.log.Warn("clear on shutdown failed", "session", id, "error", err)
		}
	}
}
