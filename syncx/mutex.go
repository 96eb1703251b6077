package syncx

import (
	"errors"
	"sync"

	"github.com/baxromumarov/cotask"
)

// ErrPoisoned is returned by lock acquisitions after the task holding the
// lock's guard panicked. The protected invariant may no longer hold; the
// fault must be acknowledged via IntoInner before the lock is reused.
var ErrPoisoned = errors.New("syncx: lock poisoned by a panicked holder")

// lockWaiter is one suspended acquirer in a lock's FIFO queue.
type lockWaiter struct {
	w         cotask.Waker
	abandoned bool
}

// Mutex is an asynchronous exclusive lock protecting a value of type T.
// Acquisition under contention suspends the calling task; waiters acquire
// in strict arrival order (no barging), and a release wakes exactly the
// next waiter so contended unlocks cause no wake storm.
type Mutex[T any] struct {
	mu       sync.Mutex
	locked   bool
	poisoned bool
	val      T
	waiters  []*lockWaiter
}

// NewMutex creates a mutex owning the given value. The value is only
// reachable through a guard, so all access is serialized by construction.
func NewMutex[T any](v T) *Mutex[T] {
	return &Mutex[T]{val: v}
}

// Lock returns a pollable acquisition. Poll it until done; the guard it
// yields gives exclusive access to the value until released.
func (m *Mutex[T]) Lock() *LockFuture[T] {
	return &LockFuture[T]{m: m}
}

// TryLock acquires without suspending. It fails if the lock is held or
// waiters are queued ahead (no barging), and returns ErrPoisoned if the
// lock is poisoned.
func (m *Mutex[T]) TryLock(tc *cotask.Context) (*MutexGuard[T], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.poisoned {
		return nil, ErrPoisoned
	}
	if m.locked || m.liveHead() != nil {
		return nil, nil
	}
	return m.grant(tc), nil
}

// IntoInner acknowledges a poisoned lock: it returns the protected value
// as-is and resets the lock to an unlocked, unpoisoned state. The caller
// decides whether the invariant still holds. IntoInner panics if the lock
// is not poisoned.
func (m *Mutex[T]) IntoInner() T {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.poisoned {
		panic("syncx: IntoInner on a lock that is not poisoned")
	}
	m.poisoned = false
	m.locked = false
	if head := m.liveHead(); head != nil {
		head.w.Wake()
	}
	return m.val
}

// liveHead pops abandoned entries and returns the first live waiter, or
// nil. Called with m.mu held.
func (m *Mutex[T]) liveHead() *lockWaiter {
	for len(m.waiters) > 0 && m.waiters[0].abandoned {
		m.waiters = m.waiters[1:]
	}
	if len(m.waiters) == 0 {
		return nil
	}
	return m.waiters[0]
}

// grant marks the lock held and builds the guard. Called with m.mu held.
func (m *Mutex[T]) grant(tc *cotask.Context) *MutexGuard[T] {
	m.locked = true
	g := &MutexGuard[T]{m: m, tc: tc}
	tc.TrackGuard(g)
	return g
}

func (m *Mutex[T]) unlock() {
	m.mu.Lock()
	m.locked = false
	head := m.liveHead()
	m.mu.Unlock()

	if head != nil {
		head.w.Wake()
	}
}

func (m *Mutex[T]) poison() {
	m.mu.Lock()
	m.poisoned = true
	m.locked = false
	waiters := m.waiters
	m.waiters = nil
	m.mu.Unlock()

	// Wake everyone: they all observe ErrPoisoned rather than waiting on
	// a lock that will never be released normally.
	for _, lw := range waiters {
		if !lw.abandoned {
			lw.w.Wake()
		}
	}
}

// LockFuture is one in-flight acquisition. Poll until done; Abandon if
// the caller stops polling (timeout races do this), otherwise the FIFO
// queue would wait forever on a task that is no longer interested.
type LockFuture[T any] struct {
	m     *Mutex[T]
	entry *lockWaiter
	done  bool
}

// Poll attempts the acquisition. It implements cotask.Pollable. The
// outcome is the guard, or [ErrPoisoned] if a previous holder panicked.
func (f *LockFuture[T]) Poll(tc *cotask.Context) (*MutexGuard[T], error, bool) {
	if f.done {
		return nil, ErrPoisoned, true
	}

	m := f.m
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.poisoned {
		f.done = true
		f.withdraw()
		return nil, ErrPoisoned, true
	}

	head := m.liveHead()
	if !m.locked && (head == nil || head == f.entry) {
		if f.entry != nil {
			m.waiters = m.waiters[1:] // we are the head
			f.entry = nil
		}
		f.done = true
		return m.grant(tc), nil, true
	}

	if f.entry == nil {
		f.entry = &lockWaiter{w: tc.Waker()}
		m.waiters = append(m.waiters, f.entry)
	} else {
		f.entry.w = tc.Waker()
	}
	return nil, nil, false
}

// Abandon withdraws this acquisition from the wait queue. If it was next
// in line for a free lock, the following waiter is woken instead.
func (f *LockFuture[T]) Abandon() {
	m := f.m
	m.mu.Lock()
	f.done = true
	f.withdraw()
	var next *lockWaiter
	if !m.locked && !m.poisoned {
		next = m.liveHead()
	}
	m.mu.Unlock()

	if next != nil {
		next.w.Wake()
	}
}

// withdraw marks the entry abandoned. Called with m.mu held.
func (f *LockFuture[T]) withdraw() {
	if f.entry != nil {
		f.entry.abandoned = true
		f.entry = nil
	}
}

// MutexGuard is exclusive access to the protected value. Release it with
// Unlock; if the holding task panics first, the runtime poisons the lock
// through the guard.
type MutexGuard[T any] struct {
	m        *Mutex[T]
	tc       *cotask.Context
	released bool
}

// Value returns a pointer to the protected value. Valid only until Unlock.
func (g *MutexGuard[T]) Value() *T {
	if g.released {
		panic("syncx: MutexGuard used after Unlock")
	}
	return &g.m.val
}

// Unlock releases the lock, handing it to the next waiter in arrival
// order. Unlock panics if called twice.
func (g *MutexGuard[T]) Unlock() {
	if g.released {
		panic("syncx: MutexGuard.Unlock called twice")
	}
	g.released = true
	g.tc.UntrackGuard(g)
	g.m.unlock()
}

// PoisonRelease implements cotask.Releasable; the runtime calls it when
// the holding task panics with the guard still held.
func (g *MutexGuard[T]) PoisonRelease(error) {
	if g.released {
		return
	}
	g.released = true
	g.m.poison()
}
