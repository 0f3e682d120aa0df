// Package chatlock serializes read-modify-write cycles on a chat id.
// The store itself performs no locking, so every persisted turn runs
// inside a critical section granted here. Locks for distinct chat ids
// never contend.
package chatlock

import (
	"context"
	"sync"
)

type entry struct {
	refs int
	sem  chan struct{}
}

// Registry hands out at-most-one-writer critical sections keyed by chat
// id. Entries are created on first use and evicted once no caller holds a
// reference, so an idle registry holds no per-chat state.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*entry
}

func NewRegistry() *Registry {
	return &Registry{locks: make(map[string]*entry)}
}

// With runs fn inside the chat's critical section. Acquisition blocks
// until the current holder (if any) finishes or ctx is cancelled; the
// section is released on every exit path, including a panic in fn.
func (r *Registry) With(ctx context.Context, chatID string, fn func() error) error {
	e := r.retain(chatID)

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		r.release(chatID, e)
		return ctx.Err()
	}

	defer func() {
		<-e.sem
		r.release(chatID, e)
	}()

	return fn()
}

func (r *Registry) retain(chatID string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.locks[chatID]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		r.locks[chatID] = e
	}
	e.refs++
	return e
}

func (r *Registry) release(chatID string, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(r.locks, chatID)
	}
}

// Len reports how many chat ids currently have live lock entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
