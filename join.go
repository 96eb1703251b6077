package cotask

import "sync"

// promise is the completion slot shared by join and blocking handles: a
// write-once outcome, a done channel for host-side waits, and a waker list
// for task-side polls.
type promise[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error

	mu       sync.Mutex
	waiters  []Waker
	consumed bool
}

func newPromise[T any]() *promise[T] {
	return &promise[T]{done: make(chan struct{})}
}

func (p *promise[T]) complete(v T, err error) {
	p.once.Do(func() {
		p.val = v
		p.err = err
		close(p.done)

		p.mu.Lock()
		waiters := p.waiters
		p.waiters = nil
		p.mu.Unlock()

		for _, w := range waiters {
			w.Wake()
		}
	})
}

// consume returns the outcome exactly once; later calls get ErrConsumed.
// Must only be called after done is closed.
func (p *promise[T]) consume() (T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.consumed {
		var zero T
		return zero, ErrConsumed
	}
	p.consumed = true
	return p.val, p.err
}

func (p *promise[T]) await() (T, error) {
	<-p.done
	return p.consume()
}

func (p *promise[T]) poll(tc *Context) (T, error, bool) {
	select {
	case <-p.done:
		v, err := p.consume()
		return v, err, true
	default:
	}

	p.mu.Lock()
	p.waiters = append(p.waiters, tc.Waker())
	p.mu.Unlock()

	// Re-check: completion may have slipped in between the first check
	// and the registration. The stale waker entry is harmless; Wake on a
	// queued or terminal task is a no-op.
	select {
	case <-p.done:
		v, err := p.consume()
		return v, err, true
	default:
		var zero T
		return zero, nil, false
	}
}

func (p *promise[T]) peekErr() error {
	<-p.done
	return p.err
}

// JoinHandle observes the outcome of a spawned task. It is returned by
// [Spawn] and owned by the spawning context. Dropping a handle does not
// cancel the task (detach semantics); the task runs to completion and its
// outcome is discarded.
type JoinHandle[T any] struct {
	p *promise[T]
	t *task
}

// Await blocks the calling goroutine until the task reaches a terminal
// state and returns its outcome. The outcome can be consumed exactly
// once; subsequent calls return [ErrConsumed].
//
// Await is the host-side wait; from inside a task use [JoinHandle.Poll]
// so the worker thread is not blocked.
func (h *JoinHandle[T]) Await() (T, error) {
	return h.p.await()
}

// Poll is the task-side join: it returns the outcome if the task is
// terminal, or registers the calling task's waker and reports not-done.
// A JoinHandle is itself a pollable suspension point.
func (h *JoinHandle[T]) Poll(tc *Context) (T, error, bool) {
	return h.p.poll(tc)
}

// Done returns a channel closed when the task reaches a terminal state.
func (h *JoinHandle[T]) Done() <-chan struct{} {
	return h.p.done
}

// Cancel requests cooperative cancellation. The flag is observed at the
// task's next resume boundary; a task that never suspends again is never
// interrupted. Cancel never blocks.
func (h *JoinHandle[T]) Cancel() {
	h.t.requestCancel()
}

// State returns the task's current lifecycle state.
func (h *JoinHandle[T]) State() State {
	return h.t.currentState()
}

// TaskInfo returns the identity of the task behind this handle.
func (h *JoinHandle[T]) TaskInfo() TaskInfo {
	return h.t.info()
}

// scopeMember is the type-erased view a Scope keeps of its handles.
func (h *JoinHandle[T]) waitDone()         { <-h.p.done }
func (h *JoinHandle[T]) outcomeErr() error { return h.p.peekErr() }
func (h *JoinHandle[T]) member() TaskInfo  { return h.t.info() }
func (h *JoinHandle[T]) cancelTask()       { h.t.requestCancel() }
