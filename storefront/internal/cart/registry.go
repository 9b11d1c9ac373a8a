package cart

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Jaabir-Mahmud/folioxe/pkg/logger"
	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/slot"
)

type entry struct {
	m        *Manager
	lastUsed time.Time
}

// Registry hands out one Manager per session id, loading it from the slot store on
// first use. Managers not touched for the idle window are dropped by EvictIdle; the
// persisted slot stays and is reloaded on the next visit.
type Registry struct {
	mu      sync.Mutex
	store   slot.Store
	entries map[string]*entry
	onEvict []func(sessionID string)
	log     *slog.Logger
	now     func() time.Time
}

func NewRegistry(store slot.Store, log *slog.Logger) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{
		store:   store,
		entries: make(map[string]*entry),
		log:     log,
		now:     time.Now,
	}
}

// OnEvict registers fn to run for every session the registry drops, so state keyed by
// the same session can follow.
func (r *Registry) OnEvict(fn func(sessionID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEvict = append(r.onEvict, fn)
}

func (r *Registry) Get(ctx context.Context, sessionID string) (*Manager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[sessionID]; ok {
		e.lastUsed = r.now()
		return e.m, nil
	}
	m, err := NewManager(ctx, r.store, slot.Key(sessionID), WithLogger(r.log))
	if err != nil {
		return nil, err
	}
	r.entries[sessionID] = &entry{m: m, lastUsed: r.now()}
	return m, nil
}

// Forget drops the in-memory manager; the persisted slot stays.
func (r *Registry) Forget(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, sessionID)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// EvictIdle drops every manager unused for longer than idle and returns how many went.
func (r *Registry) EvictIdle(idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	var evicted []string
	for id, e := range r.entries {
		if e.lastUsed.Before(cutoff) {
			delete(r.entries, id)
			evicted = append(evicted, id)
		}
	}
	hooks := append([]func(string){}, r.onEvict...)
	r.mu.Unlock()

	for _, id := range evicted {
		for _, fn := range hooks {
			fn(id)
		}
	}
	return len(evicted)
}

// RunEviction calls EvictIdle every interval until ctx is done.
func (r *Registry) RunEviction(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.EvictIdle(idle); n > 0 {
				r.log.Debug("idle carts evicted", "count", n, "remaining", r.Len())
			}
		}
	}
}
