package chanx

import (
	"sync"
	"sync/atomic"

	"github.com/baxromumarov/cotask"
)

// NewQueue creates a multi-producer/single-consumer FIFO queue and
// returns its first sender and the receiver. capacity > 0 bounds the
// queue: sends suspend when it is full (backpressure). capacity == 0
// makes the queue unbounded: sends always complete synchronously but the
// buffer can grow without limit. NewQueue panics if capacity < 0.
//
// Additional senders come from [Sender.Clone]. The queue closes when
// every sender has been dropped; once it is also empty, receives return
// [ErrClosed] as the terminal state, not as a failure.
func NewQueue[T any](capacity int) (*Sender[T], *Receiver[T]) {
	if capacity < 0 {
		panic("chanx: NewQueue requires capacity >= 0")
	}
	q := &queue[T]{capacity: capacity, senders: 1}
	return &Sender[T]{q: q}, &Receiver[T]{q: q}
}

type queue[T any] struct {
	mu       sync.Mutex
	buf      []T
	capacity int // 0 = unbounded
	senders  int // live sender count

	recvWaker   cotask.Waker
	recvWaiting bool

	// Senders suspended on a full bounded queue, in arrival order. A wake
	// grants nothing: the woken sender re-polls and either enqueues or
	// re-registers, which is what makes abandoning a send wait safe.
	sendWaiters []*sendWaiter
}

// sendWaiter is one suspended sender. An abandoned entry must never eat a
// wake: each freed slot's wake has to reach a sender that still wants it.
type sendWaiter struct {
	w         cotask.Waker
	abandoned bool
	queued    bool
}

func (q *queue[T]) wakeRecv() {
	if q.recvWaiting {
		q.recvWaiting = false
		q.recvWaker.Wake()
	}
}

// wakeOneSender pops entries until it finds one that is still interested
// and wakes it. Called with q.mu held, once per freed slot.
func (q *queue[T]) wakeOneSender() {
	for len(q.sendWaiters) > 0 {
		sw := q.sendWaiters[0]
		q.sendWaiters = q.sendWaiters[1:]
		sw.queued = false
		if sw.abandoned {
			continue
		}
		sw.w.Wake()
		return
	}
}

// Sender is a producing handle. Each sender preserves its own FIFO order;
// the receiver observes an arbitrary interleaving across senders.
type Sender[T any] struct {
	q       *queue[T]
	dropped atomic.Bool
}

// Clone creates another sender for the same queue.
// It panics if this sender has already been dropped.
func (s *Sender[T]) Clone() *Sender[T] {
	if s.dropped.Load() {
		panic("chanx: Clone of dropped sender")
	}
	s.q.mu.Lock()
	s.q.senders++
	s.q.mu.Unlock()
	return &Sender[T]{q: s.q}
}

// Drop releases this sender. When the last sender is dropped the queue
// closes: a waiting receiver is woken to observe the terminal state.
// Drop is idempotent.
func (s *Sender[T]) Drop() {
	if !s.dropped.CompareAndSwap(false, true) {
		return
	}
	q := s.q
	q.mu.Lock()
	q.senders--
	if q.senders == 0 {
		q.wakeRecv()
	}
	q.mu.Unlock()
}

// TrySend enqueues without suspending. It returns [ErrFull] when a
// bounded queue is at capacity and [ErrClosed] when the sender has been
// dropped.
func (s *Sender[T]) TrySend(v T) error {
	if s.dropped.Load() {
		return ErrClosed
	}
	q := s.q
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.capacity > 0 && len(q.buf) >= q.capacity {
		return ErrFull
	}
	q.buf = append(q.buf, v)
	q.wakeRecv()
	return nil
}

// Send returns a pollable that enqueues v, suspending the task while a
// bounded queue is full. On an unbounded queue the first poll always
// completes.
func (s *Sender[T]) Send(v T) *SendFuture[T] {
	return &SendFuture[T]{s: s, v: v}
}

// SendFuture is one in-flight send. Poll until done; Abandon if the
// caller stops polling (timeout races do this), so the entry stops
// consuming slot wakes meant for live senders.
type SendFuture[T any] struct {
	s     *Sender[T]
	v     T
	entry *sendWaiter
	done  bool
}

// Poll attempts the send. done=true with a nil error means the value was
// enqueued; [ErrClosed] means the sender was dropped mid-wait.
func (f *SendFuture[T]) Poll(tc *cotask.Context) (struct{}, error, bool) {
	if f.done {
		return struct{}{}, ErrClosed, true
	}
	if f.s.dropped.Load() {
		f.done = true
		f.s.q.mu.Lock()
		f.withdraw()
		f.s.q.mu.Unlock()
		return struct{}{}, ErrClosed, true
	}

	q := f.s.q
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.capacity > 0 && len(q.buf) >= q.capacity {
		if f.entry == nil {
			f.entry = &sendWaiter{}
		}
		f.entry.w = tc.Waker()
		if !f.entry.queued {
			f.entry.queued = true
			q.sendWaiters = append(q.sendWaiters, f.entry)
		}
		return struct{}{}, nil, false
	}

	f.withdraw()
	q.buf = append(q.buf, f.v)
	q.wakeRecv()
	f.done = true
	return struct{}{}, nil, true
}

// Abandon withdraws this send from the waiter list; a slot freed later
// wakes the next live sender instead of this entry.
func (f *SendFuture[T]) Abandon() {
	q := f.s.q
	q.mu.Lock()
	f.done = true
	f.withdraw()
	q.mu.Unlock()
}

// withdraw marks the entry abandoned. Called with q.mu held.
func (f *SendFuture[T]) withdraw() {
	if f.entry != nil {
		f.entry.abandoned = true
		f.entry = nil
	}
}

// Receiver is the single consuming handle.
type Receiver[T any] struct {
	q *queue[T]
}

// TryRecv dequeues without suspending. It returns [ErrEmpty] when nothing
// is buffered and [ErrClosed] when the queue is closed and drained.
func (r *Receiver[T]) TryRecv() (T, error) {
	q := r.q
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.buf) == 0 {
		if q.senders == 0 {
			return zero, ErrClosed
		}
		return zero, ErrEmpty
	}
	v := q.buf[0]
	var zeroT T
	q.buf[0] = zeroT
	q.buf = q.buf[1:]
	q.wakeOneSender()
	return v, nil
}

// Recv returns a pollable that dequeues the next value, suspending the
// task while the queue is empty. The terminal outcome after all senders
// are dropped and the buffer is drained is [ErrClosed].
func (r *Receiver[T]) Recv() *RecvFuture[T] {
	return &RecvFuture[T]{r: r}
}

// RecvFuture is one in-flight receive. Poll until done.
type RecvFuture[T any] struct {
	r    *Receiver[T]
	done bool
}

// Poll attempts the receive. It implements cotask.Pollable.
func (f *RecvFuture[T]) Poll(tc *cotask.Context) (T, error, bool) {
	var zero T
	if f.done {
		return zero, ErrClosed, true
	}

	q := f.r.q
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.buf) > 0 {
		v := q.buf[0]
		q.buf[0] = zero
		q.buf = q.buf[1:]
		q.wakeOneSender()
		f.done = true
		return v, nil, true
	}
	if q.senders == 0 {
		f.done = true
		return zero, ErrClosed, true
	}

	q.recvWaker = tc.Waker()
	q.recvWaiting = true
	return zero, nil, false
}

// Abandon withdraws the receiver's registered wake, if any. Safe because
// a queue wake grants nothing; the next send simply finds no waiter.
func (f *RecvFuture[T]) Abandon() {
	q := f.r.q
	q.mu.Lock()
	q.recvWaiting = false
	q.mu.Unlock()
}

// Len returns the number of buffered values.
func (r *Receiver[T]) Len() int {
	r.q.mu.Lock()
	defer r.q.mu.Unlock()
	return len(r.q.buf)
}

// Closed reports whether all senders are dropped and the buffer is empty.
func (r *Receiver[T]) Closed() bool {
	r.q.mu.Lock()
	defer r.q.mu.Unlock()
	return r.q.senders == 0 && len(r.q.buf) == 0
}
