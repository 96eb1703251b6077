package chanx

import (
	"fmt"
	"sync"

	"github.com/baxromumarov/cotask"
)

// LaggedError reports that a broadcast subscriber fell more than the
// channel capacity behind and missed messages. The subscriber's cursor
// has been advanced to the oldest retained message; the next receive
// resumes there.
type LaggedError struct {
	// Missed is the number of messages dropped for this subscriber.
	Missed uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("chanx: broadcast receiver lagged, %d messages dropped", e.Missed)
}

// IsLagged extracts the missed count if err is a [*LaggedError].
func IsLagged(err error) (uint64, bool) {
	le, ok := err.(*LaggedError)
	if !ok {
		return 0, false
	}
	return le.Missed, true
}

// NewBroadcast creates a multi-consumer broadcast channel over a ring
// buffer of the given capacity. Send never suspends: at capacity it
// evicts the oldest entry for everyone. Each subscriber tracks its own
// read cursor. NewBroadcast panics if capacity <= 0.
func NewBroadcast[T any](capacity int) *Broadcast[T] {
	if capacity <= 0 {
		panic("chanx: NewBroadcast requires capacity > 0")
	}
	return &Broadcast[T]{
		ring: make([]T, capacity),
	}
}

// Broadcast is the shared channel state; senders use it directly.
type Broadcast[T any] struct {
	mu      sync.Mutex
	ring    []T
	seq     uint64 // next sequence number to write
	closed  bool
	waiters []cotask.Waker
}

// Send appends v, evicting the oldest entry if the ring is full, and
// wakes every waiting subscriber. It never suspends and never fails while
// the channel is open; Send panics after [Broadcast.Close].
func (b *Broadcast[T]) Send(v T) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		panic("chanx: Send on closed broadcast channel")
	}
	b.ring[b.seq%uint64(len(b.ring))] = v
	b.seq++
	waiters := b.waiters
	b.waiters = nil
	b.mu.Unlock()

	for _, w := range waiters {
		w.Wake()
	}
}

// Close marks the channel closed. Subscribers drain what they have not
// read, then observe [ErrClosed]. Close is idempotent.
func (b *Broadcast[T]) Close() {
	b.mu.Lock()
	b.closed = true
	waiters := b.waiters
	b.waiters = nil
	b.mu.Unlock()

	for _, w := range waiters {
		w.Wake()
	}
}

// Subscribe registers a new subscriber whose cursor starts at the next
// message sent; history before the subscription is not replayed.
func (b *Broadcast[T]) Subscribe() *BroadcastReceiver[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &BroadcastReceiver[T]{b: b, cursor: b.seq}
}

// BroadcastReceiver is one subscriber's cursor into the ring.
type BroadcastReceiver[T any] struct {
	b      *Broadcast[T]
	cursor uint64
}

// TryRecv returns the next unread message without suspending. A receiver
// that fell more than the capacity behind gets exactly one [*LaggedError]
// carrying the skipped count; its next receive resumes at the oldest
// retained message. [ErrEmpty] means nothing unread; [ErrClosed] means
// the channel is closed and fully drained.
func (r *BroadcastReceiver[T]) TryRecv() (T, error) {
	b := r.b
	b.mu.Lock()
	defer b.mu.Unlock()
	return r.next()
}

// next advances the cursor one step. Called with b.mu held.
func (r *BroadcastReceiver[T]) next() (T, error) {
	b := r.b
	var zero T

	cap64 := uint64(len(b.ring))
	if b.seq-r.cursor > cap64 {
		missed := b.seq - cap64 - r.cursor
		r.cursor = b.seq - cap64
		return zero, &LaggedError{Missed: missed}
	}
	if r.cursor == b.seq {
		if b.closed {
			return zero, ErrClosed
		}
		return zero, ErrEmpty
	}
	v := b.ring[r.cursor%cap64]
	r.cursor++
	return v, nil
}

// Recv returns a pollable that delivers the next unread message,
// suspending the task while the subscriber is caught up.
func (r *BroadcastReceiver[T]) Recv() *BroadcastRecvFuture[T] {
	return &BroadcastRecvFuture[T]{r: r}
}

// BroadcastRecvFuture is one in-flight broadcast receive. Poll until done.
type BroadcastRecvFuture[T any] struct {
	r    *BroadcastReceiver[T]
	done bool
}

// Poll attempts the receive. It implements cotask.Pollable. A lag is a
// done outcome carrying [*LaggedError]; the subscriber keeps working
// afterward from the oldest retained message.
func (f *BroadcastRecvFuture[T]) Poll(tc *cotask.Context) (T, error, bool) {
	var zero T
	if f.done {
		return zero, ErrClosed, true
	}

	b := f.r.b
	b.mu.Lock()
	defer b.mu.Unlock()

	v, err := f.r.next()
	if err == ErrEmpty {
		b.waiters = append(b.waiters, tc.Waker())
		return zero, nil, false
	}
	f.done = true
	return v, err, true
}

// Lag returns how many messages this subscriber is behind the sender.
func (r *BroadcastReceiver[T]) Lag() uint64 {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	return r.b.seq - r.cursor
}
