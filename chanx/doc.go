// Package chanx provides the coordination channels of the cotask runtime:
// one-shot handoff ([Oneshot]), multi-producer/single-consumer queue
// ([NewQueue]), multi-consumer broadcast ([NewBroadcast]), and
// latest-value watch ([NewWatch]).
//
// Every blocking operation is a poll: it completes synchronously when it
// can, otherwise it registers the calling task's waker and reports
// not-done. Polls are idempotent and abandon-safe: a task that stops
// polling (e.g. because a timeout won the race) leaves no half-mutated
// channel state behind, at worst a spurious wake for someone else.
//
// Delivery guarantees by kind:
//
//   - One-shot delivers exactly once or not at all; a second send is a
//     programming error surfaced as [ErrAlreadySent].
//   - The queue preserves per-sender FIFO order and interleaves across
//     senders arbitrarily. The bounded variant applies backpressure by
//     suspending senders when full; the unbounded variant never suspends
//     on send but can grow without limit, which is the caller's risk to
//     manage (watch [Receiver.Len] under sustained overload).
//   - Broadcast delivers to every subscriber that has not fallen more
//     than the capacity behind, in send order; a lagging subscriber gets
//     one [*LaggedError] with the skipped count, then resumes at the
//     oldest retained message.
//   - Watch is latest-value-wins: readers observe only the current value,
//     never a queued history.
package chanx
