package cotask

import (
	"errors"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// scopeMember is the type-erased view a [Scope] keeps of each handle
// spawned into it.
type scopeMember interface {
	waitDone()
	outcomeErr() error
	member() TaskInfo
	cancelTask()
}

// ScopePolicy determines how a [Scope] reacts to task faults.
type ScopePolicy int

const (
	// CollectFaults (default) waits for every scoped task and returns
	// all faults as one aggregated error.
	CollectFaults ScopePolicy = iota

	// FailFast cancels the remaining scoped tasks when the first fault
	// is observed. [Scope.Wait] still waits for every task to reach a
	// terminal state and returns the first fault only.
	FailFast
)

// ScopeOption configures a [Scope].
type ScopeOption func(*scopeConfig)

type scopeConfig struct {
	policy ScopePolicy
}

// WithScopePolicy sets the fault policy for the scope.
// It panics if p is not a known policy value.
func WithScopePolicy(p ScopePolicy) ScopeOption {
	switch p {
	case CollectFaults, FailFast:
	default:
		panic("cotask: invalid scope policy")
	}
	return func(c *scopeConfig) {
		c.policy = p
	}
}

// Scope ties a group of spawned tasks to a single exit point: Wait does
// not return until every task spawned into the scope is terminal, so the
// scope cannot outlive its tasks (structured concurrency).
//
// Faults are returned from Wait as an aggregated error of [*TaskError]
// entries; individual results stay retrievable from their handles because
// the scope only peeks at outcomes, it never consumes them.
type Scope struct {
	rt  *Runtime
	cfg scopeConfig

	mu      sync.Mutex
	members []scopeMember
	closed  bool

	once   sync.Once
	result error
}

// NewScope creates a scope over the runtime. Spawn tasks into it with
// [SpawnIn] and finalize it with [Scope.Wait].
func NewScope(rt *Runtime, opts ...ScopeOption) *Scope {
	var cfg scopeConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Scope{rt: rt, cfg: cfg}
}

// SpawnIn spawns a task into the scope and returns its handle. The handle
// behaves exactly like one from [Spawn] except that [Scope.Wait] will not
// return before the task is terminal.
//
// SpawnIn panics if the scope has already been finalized.
func SpawnIn[T any](sc *Scope, name string, tk Task[T]) *JoinHandle[T] {
	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		panic("cotask: SpawnIn called after Scope.Wait")
	}
	h := Spawn(sc.rt, name, tk)
	sc.members = append(sc.members, h)
	sc.mu.Unlock()
	return h
}

// Wait blocks until every task spawned into the scope is terminal and
// returns the aggregated fault set (nil when all tasks succeeded). Under
// [FailFast] the first fault cancels the remaining tasks and is returned
// alone; cancellations it induced are not reported as faults.
//
// Wait is idempotent; subsequent calls return the same result.
func (sc *Scope) Wait() error {
	sc.once.Do(func() {
		sc.mu.Lock()
		sc.closed = true
		members := sc.members
		sc.mu.Unlock()

		if sc.cfg.policy == FailFast {
			// Observe outcomes as they land, not in spawn order: the
			// first fault must cancel members spawned before it that are
			// still suspended, or Wait would never reach it.
			var firstOnce sync.Once
			var first error
			var wg sync.WaitGroup
			for _, m := range members {
				wg.Add(1)
				go func(m scopeMember) {
					defer wg.Done()
					m.waitDone()
					err := m.outcomeErr()
					if err == nil || errors.Is(err, ErrCancelled) || errors.Is(err, ErrShutdown) {
						return
					}
					firstOnce.Do(func() {
						first = &TaskError{Task: m.member(), Err: err}
						for _, rest := range members {
							rest.cancelTask()
						}
					})
				}(m)
			}
			wg.Wait()
			sc.result = first
			return
		}

		var faults *multierror.Error
		for _, m := range members {
			m.waitDone()
			if err := m.outcomeErr(); err != nil {
				faults = multierror.Append(faults, &TaskError{Task: m.member(), Err: err})
			}
		}
		sc.result = faults.ErrorOrNil()
	})

	return sc.result
}

// Cancel requests cooperative cancellation of every task currently in the
// scope. Wait must still be called to finalize.
func (sc *Scope) Cancel() {
	sc.mu.Lock()
	members := sc.members
	sc.mu.Unlock()

	for _, m := range members {
		m.cancelTask()
	}
}

// Len returns the number of tasks spawned into the scope so far.
func (sc *Scope) Len() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return len(sc.members)
}
