package chanx

import (
	"sync"

	"github.com/baxromumarov/cotask"
)

// NewWatch creates a state-watch channel seeded with an initial value.
// The sender overwrites the single slot; readers only ever observe the
// latest value; intermediate values are silently skipped. The initial
// value counts as already seen by the first receiver.
func NewWatch[T any](initial T) (*WatchSender[T], *WatchReceiver[T]) {
	w := &watch[T]{val: initial, version: 1}
	return &WatchSender[T]{w: w}, &WatchReceiver[T]{w: w, seen: 1}
}

type watch[T any] struct {
	mu      sync.Mutex
	val     T
	version uint64
	dropped bool
	waiters []cotask.Waker
}

// WatchSender overwrites the watched value.
type WatchSender[T any] struct {
	w *watch[T]
}

// Send replaces the current value, bumps the version, and wakes every
// waiting reader. It never suspends. Send panics after
// [WatchSender.Drop].
func (s *WatchSender[T]) Send(v T) {
	w := s.w
	w.mu.Lock()
	if w.dropped {
		w.mu.Unlock()
		panic("chanx: Send on dropped watch sender")
	}
	w.val = v
	w.version++
	waiters := w.waiters
	w.waiters = nil
	w.mu.Unlock()

	for _, wk := range waiters {
		wk.Wake()
	}
}

// Drop releases the sender. Readers that have seen the final value
// observe [ErrClosed] from then on. Drop is idempotent.
func (s *WatchSender[T]) Drop() {
	w := s.w
	w.mu.Lock()
	w.dropped = true
	waiters := w.waiters
	w.waiters = nil
	w.mu.Unlock()

	for _, wk := range waiters {
		wk.Wake()
	}
}

// WatchReceiver observes the latest value. Each receiver tracks the last
// version it saw independently; use [WatchReceiver.Clone] for additional
// readers.
type WatchReceiver[T any] struct {
	w    *watch[T]
	seen uint64
}

// Clone creates another reader with this reader's seen version.
func (r *WatchReceiver[T]) Clone() *WatchReceiver[T] {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	return &WatchReceiver[T]{w: r.w, seen: r.seen}
}

// Get returns the current value and marks it seen.
func (r *WatchReceiver[T]) Get() T {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	r.seen = r.w.version
	return r.w.val
}

// Peek returns the current value without marking it seen.
func (r *WatchReceiver[T]) Peek() T {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	return r.w.val
}

// Changed returns a pollable that suspends the task until the version
// advances past the last one this reader observed, then delivers the
// latest value (marking it seen). If the sender is dropped with no unseen
// value, the outcome is [ErrClosed].
func (r *WatchReceiver[T]) Changed() *ChangedFuture[T] {
	return &ChangedFuture[T]{r: r}
}

// ChangedFuture is one in-flight change wait. Poll until done.
type ChangedFuture[T any] struct {
	r    *WatchReceiver[T]
	done bool
}

// Poll attempts to observe a new version. It implements cotask.Pollable.
func (f *ChangedFuture[T]) Poll(tc *cotask.Context) (T, error, bool) {
	var zero T
	if f.done {
		return zero, ErrClosed, true
	}

	w := f.r.w
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.version > f.r.seen {
		f.r.seen = w.version
		f.done = true
		return w.val, nil, true
	}
	if w.dropped {
		f.done = true
		return zero, ErrClosed, true
	}

	w.waiters = append(w.waiters, tc.Waker())
	return zero, nil, false
}
