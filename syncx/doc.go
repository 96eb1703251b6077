// Package syncx provides the synchronization primitives of the cotask
// runtime: a lock-free counter ([NewCounter]), an asynchronous exclusive
// lock ([NewMutex]), an asynchronous shared/exclusive lock ([NewRWMutex]),
// and a weighted semaphore ([NewSemaphore]).
//
// On contention the locks suspend the calling task instead of blocking
// its worker thread. The exclusive lock is FIFO-fair: waiters acquire in
// arrival order and a release wakes exactly the next waiter, so there is
// no barging and no thundering herd. The shared/exclusive lock gives
// writers priority: a pending writer stops new readers from acquiring,
// so a continuous stream of readers cannot starve a writer.
//
// Both locks poison themselves when the task holding a (write) guard
// panics: the next acquirer observes [ErrPoisoned] instead of silently
// reading a possibly half-mutated value, and must acknowledge the fault
// via IntoInner before the lock is usable again.
//
// The counter never suspends and is safe from any context, including
// blocking-pool threads.
package syncx
