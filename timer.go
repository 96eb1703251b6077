package cotask

import (
	"sync"
	"sync/atomic"
	"time"
)

// Clock is the time source consumed at runtime construction. It exists so
// timers and timeouts can be driven by a fake clock in tests; the default
// is the system clock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a pending clock callback.
type Timer interface {
	// Stop cancels the callback. It reports whether the callback was
	// prevented from running.
	Stop() bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Pollable is anything a task can suspend on: poll until done, registering
// the context's waker on every not-done return. [JoinHandle],
// [BlockingHandle], and the chanx/syncx futures all satisfy it.
type Pollable[T any] interface {
	Poll(tc *Context) (T, error, bool)
}

// PollFunc adapts a function to [Pollable].
type PollFunc[T any] func(tc *Context) (T, error, bool)

// Poll implements [Pollable].
func (f PollFunc[T]) Poll(tc *Context) (T, error, bool) {
	return f(tc)
}

// Abandoner is implemented by pollables that must be told when their
// caller stops polling them, so they can withdraw from wait queues whose
// wakes would otherwise be wasted on them (see [TimeoutFuture]).
type Abandoner interface {
	Abandon()
}

// Sleep is a pollable that completes after a duration has elapsed. The
// timer is armed on the first poll.
type Sleep struct {
	d     time.Duration
	fired atomic.Bool

	mu    sync.Mutex
	armed bool
	timer Timer
}

// NewSleep creates a Sleep for the given duration.
// It panics if d <= 0.
func NewSleep(d time.Duration) *Sleep {
	if d <= 0 {
		panic("cotask: NewSleep requires d > 0")
	}
	return &Sleep{d: d}
}

// Poll completes once the duration has elapsed.
// It implements Pollable[struct{}].
func (s *Sleep) Poll(tc *Context) (struct{}, error, bool) {
	return struct{}{}, nil, s.elapsed(tc)
}

// elapsed reports whether the duration has passed. On the first call it
// arms the runtime's clock to wake the task when the timer fires.
func (s *Sleep) elapsed(tc *Context) bool {
	if s.fired.Load() {
		return true
	}

	s.mu.Lock()
	if !s.armed {
		s.armed = true
		w := tc.Waker()
		s.timer = tc.Runtime().clock.AfterFunc(s.d, func() {
			s.fired.Store(true)
			w.Wake()
		})
	}
	s.mu.Unlock()

	return s.fired.Load()
}

// Stop cancels the timer if it has not fired.
func (s *Sleep) Stop() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()
}

// TimeoutFuture races a pollable against a deadline: whichever resolves
// first wins and interest in the other is cancelled. When the deadline
// wins, the inner pollable is abandoned: if it implements [Abandoner] it
// is told so it can withdraw from its wait queue. Every suspension point
// in this package and its subpackages is abandon-safe: dropping out of a
// wait never leaves shared state half-mutated.
type TimeoutFuture[T any] struct {
	inner Pollable[T]
	sleep *Sleep
	done  bool
}

// WithTimeout wraps a pollable with a deadline.
// It panics if inner is nil or d <= 0.
func WithTimeout[T any](d time.Duration, inner Pollable[T]) *TimeoutFuture[T] {
	if inner == nil {
		panic("cotask: WithTimeout requires a non-nil pollable")
	}
	return &TimeoutFuture[T]{
		inner: inner,
		sleep: NewSleep(d),
	}
}

// Poll drives the race one step. It returns the inner outcome if it
// completed, [ErrTimeout] if the deadline fired first, or not-done with
// both sides' wakes registered.
func (f *TimeoutFuture[T]) Poll(tc *Context) (T, error, bool) {
	var zero T
	if f.done {
		return zero, ErrConsumed, true
	}

	if v, err, ok := f.inner.Poll(tc); ok {
		f.done = true
		f.sleep.Stop()
		return v, err, true
	}

	if f.sleep.elapsed(tc) {
		f.done = true
		if a, ok := f.inner.(Abandoner); ok {
			a.Abandon()
		}
		return zero, ErrTimeout, true
	}

	return zero, nil, false
}
