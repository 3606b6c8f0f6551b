package keylock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agribid-backend/internal/pkg/auctionerrors"

	"golang.org/x/sync/semaphore"
)

// DefaultWait bounds how long a caller may block on a contended key before the
// operation is refused with ErrBusy.
const DefaultWait = 2 * time.Second

// Registry serializes mutations per key. Each key owns a weighted(1) semaphore,
// so operations on different keys never contend. Entries are refcounted and
// removed once the last holder or waiter is gone, so the map does not grow
// with every key ever touched.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	wait    time.Duration
}

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// New creates a Registry with the given maximum wait per acquisition.
// A non-positive wait falls back to DefaultWait.
func New(wait time.Duration) *Registry {
	if wait <= 0 {
		wait = DefaultWait
	}
	return &Registry{
		entries: make(map[string]*entry),
		wait:    wait,
	}
}

// checkout pins the key's entry so it cannot be evicted while in use.
func (r *Registry) checkout(key string) *semaphore.Weighted {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		r.entries[key] = e
	}
	e.refs++
	return e.sem
}

// checkin drops one pin; the entry is evicted when nobody holds or waits.
func (r *Registry) checkin(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(r.entries, key)
	}
}

// Acquire takes the key's lock, waiting at most the registry's wait budget.
// Returns ErrBusy (wrapped) if the lock could not be taken in time or the
// context was cancelled first.
func (r *Registry) Acquire(ctx context.Context, key string) error {
	sem := r.checkout(key)
	waitCtx, cancel := context.WithTimeout(ctx, r.wait)
	defer cancel()
	if err := sem.Acquire(waitCtx, 1); err != nil {
		r.checkin(key)
		return fmt.Errorf("keylock: %w - key %s", auctionerrors.ErrBusy, key)
	}
	return nil
}

// TryAcquire takes the key's lock only if it is immediately free.
func (r *Registry) TryAcquire(key string) bool {
	sem := r.checkout(key)
	if !sem.TryAcquire(1) {
		r.checkin(key)
		return false
	}
	return true
}

// Release frees the key's lock. Must follow a successful Acquire/TryAcquire.
func (r *Registry) Release(key string) {
	r.mu.Lock()
	e, ok := r.entries[key]
	r.mu.Unlock()
	if !ok {
		return
	}
	e.sem.Release(1)
	r.checkin(key)
}
