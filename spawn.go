package cotask

import "fmt"

// Task is a suspendable unit of cooperative work: a resumable state
// machine driven by the scheduler. Resume runs until the task either
// finishes (done=true, val/err carry the outcome) or reaches a suspension
// point, in which case it must register the context's [Waker] with the
// condition it waits on and return done=false.
//
// The scheduler never resumes a suspended task again until that waker
// fires. Two contracts the scheduler cannot enforce for arbitrary bodies:
// Resume must return within a bounded amount of CPU work, and a task must
// not indefinitely avoid both finishing and suspending.
//
// State captured by a Task moves across worker threads between resumes,
// so it must be transferable: owned by the task, not shared with other
// goroutines except through channels and locks built for that purpose.
// Types that are inherently confined to one thread can declare it by
// implementing [ThreadConfined]; [Spawn] rejects such tasks outright.
type Task[T any] interface {
	Resume(tc *Context) (val T, err error, done bool)
}

// TaskFunc adapts a function to the [Task] interface.
type TaskFunc[T any] func(tc *Context) (T, error, bool)

// Resume implements [Task].
func (f TaskFunc[T]) Resume(tc *Context) (T, error, bool) {
	return f(tc)
}

// ThreadConfined marks a type whose values must never move between
// threads. Spawning a task that implements it is a construction-time
// error: the thread-safety classification is checked where the task is
// built, not at every hop.
type ThreadConfined interface {
	ThreadConfined()
}

// Spawn submits a task to the runtime and returns a handle to its
// outcome. The task is pushed to the shared injector queue and will be
// resumed by some worker; the handle's owner may await it, poll it from
// another task, cancel it, or drop it (the task still runs to
// completion, only observability is lost).
//
// Spawn panics if the runtime has been shut down or if the task's type
// declares itself [ThreadConfined]. A Spawn that races with
// [Runtime.Shutdown] may instead return a handle already completed with
// [ErrShutdown]; it never returns a handle that stays unresolved.
func Spawn[T any](rt *Runtime, name string, tk Task[T]) *JoinHandle[T] {
	h := prepare(rt, name, tk)
	if !h.t.terminal() {
		rt.enqueue(h.t)
	}
	return h
}

// SpawnLocal is Spawn for use inside a running task: the new task goes to
// the current worker's local queue instead of the shared injector, which
// keeps parent and child on the same thread while the queue lasts.
func SpawnLocal[T any](tc *Context, name string, tk Task[T]) *JoinHandle[T] {
	h := prepare(tc.Runtime(), name, tk)
	tc.w.pushLocal(h.t)
	return h
}

func prepare[T any](rt *Runtime, name string, tk Task[T]) *JoinHandle[T] {
	if rt.closed.Load() {
		panic("cotask: Spawn called after runtime shutdown")
	}
	if _, confined := any(tk).(ThreadConfined); confined {
		panic(fmt.Sprintf("cotask: task %q captures thread-confined state", name))
	}

	p := newPromise[T]()
	t := rt.newTask(name)

	t.resume = func(tc *Context) bool {
		v, err, done := tk.Resume(tc)
		if !done {
			return false
		}
		p.complete(v, err)
		return true
	}
	t.fail = func(err error) {
		t.state.Store(uint32(classifyFailure(err)))
		var zero T
		p.complete(zero, err)
	}

	// Register only once the task is fully wired, then re-check: a
	// Shutdown racing past the first check either finds the task in its
	// registry sweep, or has already swept and is caught here. Either way
	// the handle resolves with ErrShutdown instead of hanging.
	rt.register(t)
	if rt.closed.Load() {
		t.fail(ErrShutdown)
	}

	return &JoinHandle[T]{p: p, t: t}
}
