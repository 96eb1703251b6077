package chanx

import (
	"errors"
	"sync"

	"github.com/baxromumarov/cotask"
)

// Sentinel errors shared by the channel kinds.
var (
	// ErrClosed is the terminal state of a queue whose senders are all
	// dropped and whose buffer is empty, and of a watch whose sender is
	// dropped with no unseen value.
	ErrClosed = errors.New("chanx: channel closed")

	// ErrAlreadySent is returned by a one-shot sender's second Send.
	ErrAlreadySent = errors.New("chanx: value already sent on one-shot channel")

	// ErrSenderDropped is received on a one-shot channel whose sender was
	// dropped without sending.
	ErrSenderDropped = errors.New("chanx: one-shot sender dropped without sending")

	// ErrEmpty is returned by non-blocking receives when nothing is
	// buffered.
	ErrEmpty = errors.New("chanx: channel empty")

	// ErrFull is returned by non-blocking sends on a full bounded queue.
	ErrFull = errors.New("chanx: channel full")
)

// Oneshot creates a single-producer/single-consumer channel for exactly
// one value. The sender consumes itself on first use; the receiver
// suspends until a value arrives or the sender is dropped.
func Oneshot[T any]() (*OneshotSender[T], *OneshotReceiver[T]) {
	st := &oneshot[T]{done: make(chan struct{})}
	return &OneshotSender[T]{st: st}, &OneshotReceiver[T]{st: st}
}

type oneshot[T any] struct {
	mu       sync.Mutex
	val      T
	sent     bool
	consumed bool
	dropped  bool
	waiter   cotask.Waker
	waiting  bool
	done     chan struct{}
}

func (st *oneshot[T]) resolve() {
	// Called with st.mu held, exactly once.
	close(st.done)
	if st.waiting {
		st.waiting = false
		st.waiter.Wake()
	}
}

// OneshotSender is the sending half. It is single-use: Send succeeds at
// most once, and Drop resolves the receiver with [ErrSenderDropped].
type OneshotSender[T any] struct {
	st *oneshot[T]
}

// Send delivers the value and resolves the receiver. The second call
// returns [ErrAlreadySent]: a double send is a programming error, never
// silently dropped. Send after [OneshotSender.Drop] also fails.
func (s *OneshotSender[T]) Send(v T) error {
	st := s.st
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.sent {
		return ErrAlreadySent
	}
	if st.dropped {
		return ErrSenderDropped
	}
	st.val = v
	st.sent = true
	st.resolve()
	return nil
}

// Drop releases the sender without sending. If nothing was sent the
// receiver resolves with [ErrSenderDropped]. Drop is idempotent.
func (s *OneshotSender[T]) Drop() {
	st := s.st
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.sent || st.dropped {
		return
	}
	st.dropped = true
	st.resolve()
}

// OneshotReceiver is the receiving half.
type OneshotReceiver[T any] struct {
	st *oneshot[T]
}

// Poll suspends the task until the value is sent or the sender is
// dropped. It implements cotask.Pollable.
func (r *OneshotReceiver[T]) Poll(tc *cotask.Context) (T, error, bool) {
	st := r.st
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.sent {
		if st.consumed {
			var zero T
			return zero, ErrClosed, true
		}
		st.consumed = true
		return st.val, nil, true
	}
	if st.dropped {
		var zero T
		return zero, ErrSenderDropped, true
	}
	st.waiter = tc.Waker()
	st.waiting = true
	var zero T
	return zero, nil, false
}

// Abandon withdraws the receiver's interest; a later resolution wakes
// nobody. Used by timeout races.
func (r *OneshotReceiver[T]) Abandon() {
	st := r.st
	st.mu.Lock()
	st.waiting = false
	st.mu.Unlock()
}

// TryRecv returns the value if it has been sent and not yet consumed,
// [ErrSenderDropped] if the sender is gone, [ErrClosed] if the value was
// already consumed, or [ErrEmpty] if the channel is still pending.
func (r *OneshotReceiver[T]) TryRecv() (T, error) {
	st := r.st
	st.mu.Lock()
	defer st.mu.Unlock()

	var zero T
	switch {
	case st.sent && st.consumed:
		return zero, ErrClosed
	case st.sent:
		st.consumed = true
		return st.val, nil
	case st.dropped:
		return zero, ErrSenderDropped
	default:
		return zero, ErrEmpty
	}
}

// Await blocks the calling goroutine until the channel resolves.
// Host-side only; inside a task use [OneshotReceiver.Poll].
func (r *OneshotReceiver[T]) Await() (T, error) {
	<-r.st.done
	return r.TryRecv()
}

// Done returns a channel closed when the one-shot resolves either way.
func (r *OneshotReceiver[T]) Done() <-chan struct{} {
	return r.st.done
}
