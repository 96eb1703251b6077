package cotask

import (
	"errors"
	"sync"
	"sync/atomic"
)

// State is the lifecycle state of a task. Transitions are monotonic:
// Pending → Running → (Suspended ↔ Running) → Completed | Cancelled |
// Panicked. Terminal states absorb.
type State uint32

const (
	// StatePending means the task is queued and has never run.
	StatePending State = iota
	// StateRunning means a worker is currently resuming the task.
	StateRunning
	// StateSuspended means the task yielded at a suspension point and is
	// waiting for its waker to fire.
	StateSuspended
	// StateCompleted means the task finished, with or without an error.
	StateCompleted
	// StateCancelled means the task was cancelled before completing.
	StateCancelled
	// StatePanicked means the task's body panicked; the panic was
	// contained and delivered through its join handle.
	StatePanicked
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StatePanicked:
		return "panicked"
	default:
		return "unknown"
	}
}

// Scheduling state word. Separate from State: it tracks queue membership,
// not lifecycle, and implements the wake protocol that makes Wake both
// cheap and race-free against a concurrent resume.
const (
	schedSleeping uint32 = iota // suspended, not queued; Wake must enqueue
	schedQueued                 // already in a run queue; Wake is a no-op
	schedRunning                // a worker is resuming it; Wake sets notified
	schedNotified               // woken while running; worker re-enqueues
)

// task is the scheduler's view of a spawned unit of work: an erased
// resumable state machine plus the bookkeeping that moves it between
// run queues and its terminal state.
type task struct {
	id   uint64
	name string
	rt   *Runtime

	// resume drives the typed task one step. It reports true when the
	// task reached a terminal outcome and published it to its handle.
	resume func(tc *Context) bool

	// fail publishes err as the task's outcome without running the body
	// again. Used for cancellation, shutdown, and panic containment.
	fail func(err error)

	state     atomic.Uint32 // State
	sched     atomic.Uint32
	cancelled atomic.Bool

	ctx Context

	guardMu sync.Mutex
	guards  []Releasable
}

// Releasable is implemented by lock guards that must be poisoned and
// released when the task holding them panics. Guards register themselves
// via [Context.TrackGuard] on acquisition and deregister on release.
type Releasable interface {
	// PoisonRelease releases the guarded resource and marks it poisoned
	// with the given cause.
	PoisonRelease(cause error)
}

func (t *task) info() TaskInfo {
	return TaskInfo{ID: t.id, Name: t.name}
}

func (t *task) currentState() State {
	return State(t.state.Load())
}

func (t *task) terminal() bool {
	switch t.currentState() {
	case StateCompleted, StateCancelled, StatePanicked:
		return true
	}
	return false
}

// requestCancel sets the cancellation flag and wakes the task so the
// scheduler observes the flag at its next resume boundary. Cancellation
// is cooperative: a task that never suspends is never interrupted.
func (t *task) requestCancel() {
	t.cancelled.Store(true)
	Waker{t: t}.Wake()
}

// runOnce drives the task to its next suspension point or terminal state.
// It reports whether the task is now terminal. Panics in the task body are
// contained here and never reach the worker loop.
func (t *task) runOnce(w *worker) bool {
	if t.terminal() {
		return true
	}

	t.sched.Store(schedRunning)

	if t.cancelled.Load() {
		t.fail(ErrCancelled)
		return true
	}

	t.state.Store(uint32(StateRunning))

	tc := &t.ctx
	tc.w = w
	tc.yielded = false

	var done bool
	panicked := func() (panicked bool) {
		defer func() {
			if r := recover(); r != nil {
				pe := newPanicError(r)
				t.poisonGuards(pe)
				t.fail(pe)
				panicked = true
			}
		}()
		done = t.resume(tc)
		return false
	}()

	if panicked {
		return true
	}
	if done {
		// fail paths set their own terminal state; a normal return is
		// Completed regardless of whether the outcome carries an error.
		t.state.CompareAndSwap(uint32(StateRunning), uint32(StateCompleted))
		return true
	}

	if tc.yielded {
		// Cooperative yield: rejoin at the back of the shared injector
		// so every queued peer gets a turn first. The local queue would
		// be popped straight back.
		t.sched.Store(schedQueued)
		t.rt.enqueue(t)
		return false
	}

	// Suspended. If a wake arrived while the body was running, the CAS
	// fails and the task goes straight back to a queue; otherwise it
	// sleeps until its waker fires.
	t.state.Store(uint32(StateSuspended))
	if !t.sched.CompareAndSwap(schedRunning, schedSleeping) {
		t.sched.Store(schedQueued)
		w.pushLocal(t)
	}
	return false
}

func (t *task) trackGuard(g Releasable) {
	t.guardMu.Lock()
	t.guards = append(t.guards, g)
	t.guardMu.Unlock()
}

func (t *task) untrackGuard(g Releasable) {
	t.guardMu.Lock()
	for i, held := range t.guards {
		if held == g {
			t.guards = append(t.guards[:i], t.guards[i+1:]...)
			break
		}
	}
	t.guardMu.Unlock()
}

// poisonGuards releases every guard the task still holds, marking each
// poisoned so the next acquirer observes the fault instead of a silently
// corrupted invariant.
func (t *task) poisonGuards(cause error) {
	t.guardMu.Lock()
	held := t.guards
	t.guards = nil
	t.guardMu.Unlock()

	for _, g := range held {
		g.PoisonRelease(cause)
	}
}

// classifyFailure maps a failure cause to the terminal state recorded on
// the task.
func classifyFailure(err error) State {
	switch {
	case IsPanic(err):
		return StatePanicked
	case errors.Is(err, ErrCancelled), errors.Is(err, ErrShutdown):
		return StateCancelled
	default:
		return StateCompleted
	}
}

// Waker re-enqueues a suspended task. It is the registration token every
// suspension point hands to whatever condition it waits on. Wake is safe
// to call from any goroutine, including blocking-pool threads and timer
// callbacks, and is idempotent while the task is already queued.
type Waker struct {
	t *task
}

// Wake schedules the task to be resumed. Waking a terminal task is a no-op.
// A wake that races with the task's own resume is never lost: if the task
// is mid-resume the worker re-enqueues it as soon as the resume returns.
func (w Waker) Wake() {
	t := w.t
	if t == nil || t.terminal() {
		return
	}
	for {
		switch t.sched.Load() {
		case schedSleeping:
			if t.sched.CompareAndSwap(schedSleeping, schedQueued) {
				t.rt.enqueue(t)
				return
			}
		case schedRunning:
			if t.sched.CompareAndSwap(schedRunning, schedNotified) {
				return
			}
		case schedQueued, schedNotified:
			return
		}
	}
}

// Context is the continuation context passed to every resume. It carries
// the task's waker, its cancellation flag, and the worker the task is
// currently running on. A Context is only valid inside Resume; storing it
// and using it from another goroutine is a contract violation.
type Context struct {
	t       *task
	w       *worker
	yielded bool
}

// Waker returns the waker that re-enqueues this task. Suspension points
// register it with the condition they wait on before returning "pending".
func (tc *Context) Waker() Waker {
	return Waker{t: tc.t}
}

// Runtime returns the runtime executing this task.
func (tc *Context) Runtime() *Runtime {
	return tc.t.rt
}

// Cancelled reports whether cancellation has been requested for this task.
// Long-running bodies should check it at their own suspension points and
// unwind cleanly; the scheduler also honors it at every resume boundary.
func (tc *Context) Cancelled() bool {
	return tc.t.cancelled.Load()
}

// Yield asks the scheduler to re-enqueue the task immediately after this
// resume returns "pending", giving queued peers a turn. It is the explicit
// cooperative-yield suspension point.
func (tc *Context) Yield() {
	tc.yielded = true
}

// TaskInfo returns the identity of the running task.
func (tc *Context) TaskInfo() TaskInfo {
	return tc.t.info()
}

// TrackGuard registers a lock guard held by this task so it can be
// poisoned if the task panics while holding it.
func (tc *Context) TrackGuard(g Releasable) {
	tc.t.trackGuard(g)
}

// UntrackGuard removes a guard registered via TrackGuard. Guards call it
// on normal release.
func (tc *Context) UntrackGuard(g Releasable) {
	tc.t.untrackGuard(g)
}
