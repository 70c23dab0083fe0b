// Package repolock serializes mutations per repository.
//
// Each key gets its own FIFO mutex, created on first use. Callers of WithRepoLock on the
// same key run their critical sections one at a time in arrival order; different keys
// never block each other.
package repolock

import (
	"context"
	"sync"
)

// Registry hands out per-key FIFO mutexes.
// Entries are never removed; the number of keys is bounded by the number of repositories.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*fifoMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{locks: make(map[string]*fifoMutex)}
}

// WithRepoLock runs fn while holding the mutex of key and returns fn's error.
//
// The mutex is released when fn returns, fails or panics; a panic is re-raised after the
// release. ctx only bounds the wait: once fn has started it runs to completion.
func (r *Registry) WithRepoLock(ctx context.Context, key string, fn func() error) error {
	m := r.mutex(key)
	if err := m.lock(ctx); err != nil {
		return err
	}
	defer m.unlock()
	return fn()
}

func (r *Registry) mutex(key string) *fifoMutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.locks[key]
	if !ok {
		m = &fifoMutex{}
		r.locks[key] = m
	}
	return m
}

// fifoMutex grants ownership to waiters strictly in the order they queued.
// Ownership is handed over directly on unlock, so a newcomer can never overtake a waiter.
type fifoMutex struct {
	mu      sync.Mutex
	held    bool
	waiters []chan struct{}
}

func (m *fifoMutex) lock(ctx context.Context) error {
	m.mu.Lock()
	if !m.held {
		m.held = true
		m.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	m.waiters = append(m.waiters, ready)
	m.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, w := range m.waiters {
			if w == ready {
				m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
				return ctx.Err()
			}
		}
		// Ownership was handed to us while we were giving up; pass it on.
		m.handOffLocked()
		return ctx.Err()
	}
}

func (m *fifoMutex) unlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handOffLocked()
}

func (m *fifoMutex) handOffLocked() {
	if len(m.waiters) == 0 {
		m.held = false
		return
	}
	next := m.waiters[0]
	m.waiters = m.waiters[1:]
	close(next)
}
