package cotask

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the runtime.
var (
	// ErrCancelled is the outcome of a task whose cancellation was
	// requested via [JoinHandle.Cancel] before it completed.
	ErrCancelled = errors.New("cotask: task cancelled")

	// ErrShutdown is the outcome of a task that was still pending or
	// suspended when [Runtime.Shutdown] ran.
	ErrShutdown = errors.New("cotask: runtime shut down")

	// ErrConsumed is returned by [JoinHandle.Await] when the handle's
	// result has already been consumed.
	ErrConsumed = errors.New("cotask: join handle already consumed")

	// ErrTimeout is returned by [TimeoutFuture.Poll] when the deadline
	// fires before the inner operation completes.
	ErrTimeout = errors.New("cotask: operation timed out")
)

// TaskInfo provides metadata about a spawned task. It is carried by
// [*TaskError] so failures can be attributed to specific tasks.
type TaskInfo struct {
	ID   uint64
	Name string
}

// TaskError wraps an error together with the [TaskInfo] of the task that
// produced it. [Scope.Wait] wraps every task fault in a TaskError so
// callers can attribute faults to specific tasks.
type TaskError struct {
	Task TaskInfo
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %q failed: %v", e.Task.Name, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// IsTaskError reports whether err (or any error in its chain) is a [*TaskError].
func IsTaskError(err error) bool {
	if err == nil {
		return false
	}
	var te *TaskError
	return errors.As(err, &te)
}

// TaskOf extracts the [TaskInfo] from the first [*TaskError] in err's chain.
// Returns false if no TaskError is found.
func TaskOf(err error) (TaskInfo, bool) {
	if err == nil {
		return TaskInfo{}, false
	}

	var te *TaskError
	if errors.As(err, &te) {
		return te.Task, true
	}
	return TaskInfo{}, false
}

// CauseOf unwraps the first [*TaskError] in err's chain and returns its
// underlying cause. If err is not a TaskError, it is returned as-is.
// Returns nil if err is nil.
func CauseOf(err error) error {
	if err == nil {
		return nil
	}

	var te *TaskError
	if errors.As(err, &te) {
		return te.Err
	}

	return err
}

// AllTaskErrors recursively collects every [*TaskError] from err's chain,
// including errors aggregated by [Scope.Wait]. Returns nil if none are found.
func AllTaskErrors(err error) []*TaskError {
	if err == nil {
		return nil
	}

	var out []*TaskError
	collectTaskErrors(err, &out)
	return out
}

func collectTaskErrors(err error, out *[]*TaskError) {
	switch e := err.(type) {
	case *TaskError:
		*out = append(*out, e)

	case interface{ Unwrap() []error }:
		for _, sub := range e.Unwrap() {
			collectTaskErrors(sub, out)
		}

	case interface{ WrappedErrors() []error }:
		// hashicorp/go-multierror exposes its members this way.
		for _, sub := range e.WrappedErrors() {
			collectTaskErrors(sub, out)
		}

	case interface{ Unwrap() error }:
		collectTaskErrors(e.Unwrap(), out)
	}
}
