package syncx

import (
	"sync"

	"github.com/baxromumarov/cotask"
)

// RWMutex is an asynchronous shared/exclusive lock protecting a value of
// type T. Readers proceed concurrently; a writer gets exclusive access.
// Writers have priority: once a writer is waiting, new readers suspend
// behind it, so a continuous stream of readers cannot starve writers.
// Writers acquire in arrival order among themselves.
type RWMutex[T any] struct {
	mu           sync.Mutex
	readers      int
	writerHeld   bool
	poisoned     bool
	val          T
	writeWaiters []*lockWaiter
	readWaiters  []*lockWaiter
}

// NewRWMutex creates a shared/exclusive lock owning the given value.
func NewRWMutex[T any](v T) *RWMutex[T] {
	return &RWMutex[T]{val: v}
}

// RLock returns a pollable shared acquisition.
func (m *RWMutex[T]) RLock() *RLockFuture[T] {
	return &RLockFuture[T]{m: m}
}

// Lock returns a pollable exclusive acquisition.
func (m *RWMutex[T]) Lock() *WLockFuture[T] {
	return &WLockFuture[T]{m: m}
}

// IntoInner acknowledges a poisoned lock: it returns the protected value
// as-is and resets the lock. IntoInner panics if the lock is not poisoned.
func (m *RWMutex[T]) IntoInner() T {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.poisoned {
		panic("syncx: IntoInner on a lock that is not poisoned")
	}
	m.poisoned = false
	m.writerHeld = false
	m.wakeNextLocked()
	return m.val
}

// liveWriteHead pops abandoned write waiters and returns the first live
// one, or nil. Called with m.mu held.
func (m *RWMutex[T]) liveWriteHead() *lockWaiter {
	for len(m.writeWaiters) > 0 && m.writeWaiters[0].abandoned {
		m.writeWaiters = m.writeWaiters[1:]
	}
	if len(m.writeWaiters) == 0 {
		return nil
	}
	return m.writeWaiters[0]
}

// wakeNextLocked wakes the next write waiter, or all read waiters if no
// writer is queued. Called with m.mu held.
func (m *RWMutex[T]) wakeNextLocked() {
	if head := m.liveWriteHead(); head != nil {
		head.w.Wake()
		return
	}
	readers := m.readWaiters
	m.readWaiters = nil
	for _, lw := range readers {
		if !lw.abandoned {
			lw.w.Wake()
		}
	}
}

func (m *RWMutex[T]) releaseRead() {
	m.mu.Lock()
	m.readers--
	wake := m.readers == 0 && !m.writerHeld
	if wake {
		m.wakeNextLocked()
	}
	m.mu.Unlock()
}

func (m *RWMutex[T]) releaseWrite() {
	m.mu.Lock()
	m.writerHeld = false
	m.wakeNextLocked()
	m.mu.Unlock()
}

func (m *RWMutex[T]) poison() {
	m.mu.Lock()
	m.poisoned = true
	m.writerHeld = false
	writers := m.writeWaiters
	readers := m.readWaiters
	m.writeWaiters = nil
	m.readWaiters = nil
	m.mu.Unlock()

	for _, lw := range append(writers, readers...) {
		if !lw.abandoned {
			lw.w.Wake()
		}
	}
}

// RLockFuture is one in-flight shared acquisition. Poll until done.
type RLockFuture[T any] struct {
	m     *RWMutex[T]
	entry *lockWaiter
	done  bool
}

// Poll attempts the shared acquisition. It implements cotask.Pollable.
func (f *RLockFuture[T]) Poll(tc *cotask.Context) (*RGuard[T], error, bool) {
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

	// Writer priority: a queued writer blocks new readers.
	if !m.writerHeld && m.liveWriteHead() == nil {
		if f.entry != nil {
			f.entry.abandoned = true
			f.entry = nil
		}
		m.readers++
		f.done = true
		g := &RGuard[T]{m: m, tc: tc}
		tc.TrackGuard(g)
		return g, nil, true
	}

	if f.entry == nil {
		f.entry = &lockWaiter{w: tc.Waker()}
		m.readWaiters = append(m.readWaiters, f.entry)
	} else {
		f.entry.w = tc.Waker()
	}
	return nil, nil, false
}

// Abandon withdraws this acquisition from the read wait queue.
func (f *RLockFuture[T]) Abandon() {
	f.m.mu.Lock()
	f.done = true
	f.withdraw()
	f.m.mu.Unlock()
}

func (f *RLockFuture[T]) withdraw() {
	if f.entry != nil {
		f.entry.abandoned = true
		f.entry = nil
	}
}

// WLockFuture is one in-flight exclusive acquisition. Poll until done.
type WLockFuture[T any] struct {
	m     *RWMutex[T]
	entry *lockWaiter
	done  bool
}

// Poll attempts the exclusive acquisition. It implements cotask.Pollable.
func (f *WLockFuture[T]) Poll(tc *cotask.Context) (*WGuard[T], error, bool) {
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

	head := m.liveWriteHead()
	if !m.writerHeld && m.readers == 0 && (head == nil || head == f.entry) {
		if f.entry != nil {
			m.writeWaiters = m.writeWaiters[1:]
			f.entry = nil
		}
		m.writerHeld = true
		f.done = true
		g := &WGuard[T]{m: m, tc: tc}
		tc.TrackGuard(g)
		return g, nil, true
	}

	if f.entry == nil {
		f.entry = &lockWaiter{w: tc.Waker()}
		m.writeWaiters = append(m.writeWaiters, f.entry)
	} else {
		f.entry.w = tc.Waker()
	}
	return nil, nil, false
}

// Abandon withdraws this acquisition from the write wait queue. If it was
// the only queued writer, blocked readers are released: with readers still
// holding they may join the share now, otherwise the next waiter is woken.
func (f *WLockFuture[T]) Abandon() {
	m := f.m
	m.mu.Lock()
	f.done = true
	f.withdraw()
	if !m.writerHeld && !m.poisoned {
		if m.readers == 0 {
			m.wakeNextLocked()
		} else if m.liveWriteHead() == nil {
			readers := m.readWaiters
			m.readWaiters = nil
			for _, lw := range readers {
				if !lw.abandoned {
					lw.w.Wake()
				}
			}
		}
	}
	m.mu.Unlock()
}

func (f *WLockFuture[T]) withdraw() {
	if f.entry != nil {
		f.entry.abandoned = true
		f.entry = nil
	}
}

// RGuard is shared access to the protected value. A panicking reader
// releases its share without poisoning: it cannot have mutated the value.
type RGuard[T any] struct {
	m        *RWMutex[T]
	tc       *cotask.Context
	released bool
}

// Value returns a pointer to the protected value for reading.
// Valid only until Unlock.
func (g *RGuard[T]) Value() *T {
	if g.released {
		panic("syncx: RGuard used after Unlock")
	}
	return &g.m.val
}

// Unlock releases the shared hold. Unlock panics if called twice.
func (g *RGuard[T]) Unlock() {
	if g.released {
		panic("syncx: RGuard.Unlock called twice")
	}
	g.released = true
	g.tc.UntrackGuard(g)
	g.m.releaseRead()
}

// PoisonRelease implements cotask.Releasable. Readers do not poison.
func (g *RGuard[T]) PoisonRelease(error) {
	if g.released {
		return
	}
	g.released = true
	g.m.releaseRead()
}

// WGuard is exclusive access to the protected value.
type WGuard[T any] struct {
	m        *RWMutex[T]
	tc       *cotask.Context
	released bool
}

// Value returns a pointer to the protected value. Valid only until Unlock.
func (g *WGuard[T]) Value() *T {
	if g.released {
		panic("syncx: WGuard used after Unlock")
	}
	return &g.m.val
}

// Unlock releases the exclusive hold. Unlock panics if called twice.
func (g *WGuard[T]) Unlock() {
	if g.released {
		panic("syncx: WGuard.Unlock called twice")
	}
	g.released = true
	g.tc.UntrackGuard(g)
	g.m.releaseWrite()
}

// PoisonRelease implements cotask.Releasable; called by the runtime when
// the holding task panics with the guard still held.
func (g *WGuard[T]) PoisonRelease(error) {
	if g.released {
		return
	}
	g.released = true
	g.m.poison()
}
