// Package cotask is a cooperative multi-task execution runtime: many
// logically-concurrent tasks multiplexed over a fixed pool of worker
// threads, with the channels and locks tasks use to coordinate.
//
// # Runtime
//
// A [Runtime] is created with [New] and owns N worker threads (default:
// core count). Each worker pulls ready tasks from its local queue, drains
// a batch from the shared injector when the local queue is empty, and
// steals half of a random peer's queue when both are empty. A Runtime is
// an explicit instance with a documented construction/shutdown lifecycle;
// there is no ambient global, so independent runtimes can coexist:
//
//	rt := cotask.New(cotask.WithWorkers(4))
//	defer rt.Shutdown()
//
// # Tasks
//
// A [Task] is a resumable state machine: Resume runs until the task
// finishes or reaches a suspension point. At a suspension point the task
// registers the context's [Waker] with whatever it is waiting on and
// returns not-done; the scheduler will not poll it again until the waker
// fires. Tasks never pre-empt each other; suspension is always
// voluntary, via channel operations, lock acquisition, timers, or
// [Context.Yield].
//
//	h := cotask.Spawn(rt, "fetch", cotask.TaskFunc[string](
//	    func(tc *cotask.Context) (string, error, bool) {
//	        return "done", nil, true
//	    },
//	))
//	v, err := h.Await()
//
// [Spawn] returns a [JoinHandle] for awaiting the outcome, observing
// panics, or requesting cooperative cancellation. Dropping the handle
// detaches the task. [NewScope] and [SpawnIn] provide the structured
// variant: [Scope.Wait] cannot return before every scoped task has.
//
// # Transferable and Shareable state
//
// A task's captured state moves with it across worker threads whenever it
// is re-enqueued, so that state must be transferable: exclusively owned
// by the task, not referenced by other goroutines. State referenced from
// several tasks at once must be shareable: wrapped in a primitive built
// for concurrent access (the syncx locks and counter, or the chanx
// channels). This is a construction-time contract, not a runtime check;
// the one mechanical check it has is that [Spawn] rejects task types that
// declare themselves [ThreadConfined]. Holding non-transferable state
// across a suspension point is a bug this package cannot detect for you.
//
// # Blocking work
//
// Work that cannot suspend cooperatively (blocking I/O, CPU-heavy loops,
// foreign calls) goes through [RunBlocking], which runs the closure on an
// elastic thread pool outside the workers and hands the result back
// through a pollable [BlockingHandle].
//
// # Panic containment
//
// A panic in a task is captured as a [*PanicError] with its stack trace
// and delivered through the task's handle; it never unwinds a worker.
// Lock guards the task held are poisoned so the next acquirer sees the
// fault. Only a fault in the scheduler itself is fatal to the runtime.
//
// # Timers
//
// [NewSleep] suspends a task for a duration; [WithTimeout] races any
// [Pollable] against a deadline, abandoning the loser. Both draw time
// from the [Clock] the runtime was constructed with.
//
// # Channels and locks
//
// The [github.com/baxromumarov/cotask/chanx] subpackage provides the four
// coordination channels (one-shot, multi-producer queue, broadcast,
// watch); [github.com/baxromumarov/cotask/syncx] provides the atomic
// counter, the asynchronous mutex and rwmutex, and a weighted semaphore.
// All of their blocking operations suspend the calling task instead of
// blocking its worker thread.
package cotask
