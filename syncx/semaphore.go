package syncx

import (
	"sync"

	"github.com/baxromumarov/cotask"
)

// Semaphore is a weighted semaphore for bounding concurrency across
// tasks. Acquire suspends the calling task while insufficient permits are
// available; waiters are served in arrival order so a large acquisition
// cannot be starved by a stream of small ones.
type Semaphore struct {
	mu      sync.Mutex
	permits int
	cap     int
	waiters []*semWaiter
}

type semWaiter struct {
	lockWaiter
	need int
}

// NewSemaphore creates a semaphore with n permits.
// It panics if n <= 0.
func NewSemaphore(n int) *Semaphore {
	if n <= 0 {
		panic("syncx: NewSemaphore requires n > 0")
	}
	return &Semaphore{permits: n, cap: n}
}

// Acquire returns a pollable acquisition of n permits.
// It panics if n <= 0 or n exceeds the semaphore's capacity.
func (s *Semaphore) Acquire(n int) *AcquireFuture {
	if n <= 0 {
		panic("syncx: Acquire requires n > 0")
	}
	if n > s.cap {
		panic("syncx: Acquire exceeds semaphore capacity")
	}
	return &AcquireFuture{s: s, need: n}
}

// TryAcquire acquires n permits without suspending. It fails when not
// enough permits are free or when waiters are queued ahead.
func (s *Semaphore) TryAcquire(n int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.permits < n || s.liveHead() != nil {
		return false
	}
	s.permits -= n
	return true
}

// Release returns n permits and wakes the next waiter if its need is now
// met. Release panics if it would exceed the semaphore's capacity.
func (s *Semaphore) Release(n int) {
	s.mu.Lock()
	s.permits += n
	if s.permits > s.cap {
		s.mu.Unlock()
		panic("syncx: Release without matching Acquire")
	}
	var wake *semWaiter
	if head := s.liveHead(); head != nil && s.permits >= head.need {
		wake = head
	}
	s.mu.Unlock()

	if wake != nil {
		wake.w.Wake()
	}
}

// Available returns the number of free permits.
// The value may be stale under concurrency.
func (s *Semaphore) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permits
}

// liveHead pops abandoned waiters and returns the first live one, or nil.
// Called with s.mu held.
func (s *Semaphore) liveHead() *semWaiter {
	for len(s.waiters) > 0 && s.waiters[0].abandoned {
		s.waiters = s.waiters[1:]
	}
	if len(s.waiters) == 0 {
		return nil
	}
	return s.waiters[0]
}

// AcquireFuture is one in-flight acquisition. Poll until done; call
// Release with the same count when finished. Abandon if the caller stops
// polling before the acquisition completes.
type AcquireFuture struct {
	s     *Semaphore
	need  int
	entry *semWaiter
	done  bool
}

// Poll attempts the acquisition. It implements cotask.Pollable (the
// struct{} outcome carries no data; done signals the permits are held).
func (f *AcquireFuture) Poll(tc *cotask.Context) (struct{}, error, bool) {
	if f.done {
		return struct{}{}, nil, true
	}

	s := f.s
	s.mu.Lock()
	defer s.mu.Unlock()

	head := s.liveHead()
	if s.permits >= f.need && (head == nil || head == f.entry) {
		if f.entry != nil {
			s.waiters = s.waiters[1:]
			f.entry = nil
		}
		s.permits -= f.need
		f.done = true

		// If permits remain, the next waiter may also be satisfiable.
		if next := s.liveHead(); next != nil && s.permits >= next.need {
			next.w.Wake()
		}
		return struct{}{}, nil, true
	}

	if f.entry == nil {
		f.entry = &semWaiter{need: f.need}
		f.entry.w = tc.Waker()
		s.waiters = append(s.waiters, f.entry)
	} else {
		f.entry.w = tc.Waker()
	}
	return struct{}{}, nil, false
}

// Abandon withdraws this acquisition from the wait queue. If it was the
// head, the next satisfiable waiter is woken.
func (f *AcquireFuture) Abandon() {
	s := f.s
	s.mu.Lock()
	f.done = true
	if f.entry != nil {
		f.entry.abandoned = true
		f.entry = nil
	}
	var wake *semWaiter
	if head := s.liveHead(); head != nil && s.permits >= head.need {
		wake = head
	}
	s.mu.Unlock()

	if wake != nil {
		wake.w.Wake()
	}
}
