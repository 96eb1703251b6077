package cotask_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/cotask"
)

func TestAwaitConsumesResultOnce(t *testing.T) {
	rt := cotask.New(cotask.WithWorkers(2))
	defer rt.Shutdown()

	h := cotask.Spawn(rt, "once", value(7))

	got, err := awaitWithin(t, h, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, 7, got)

	_, err = h.Await()
	require.ErrorIs(t, err, cotask.ErrConsumed)
}

func TestTaskErrorOutcomeIsCompleted(t *testing.T) {
	rt := cotask.New(cotask.WithWorkers(2))
	defer rt.Shutdown()

	sentinel := errors.New("expected failure")
	h := cotask.Spawn(rt, "failing", cotask.TaskFunc[int](
		func(tc *cotask.Context) (int, error, bool) {
			return 0, sentinel, true
		},
	))

	_, err := awaitWithin(t, h, 5*time.Second)
	require.ErrorIs(t, err, sentinel)
	// Returning an error is a normal completion, not a fault state.
	require.Equal(t, cotask.StateCompleted, h.State())
}

func TestJoinHandleIsPollableFromAnotherTask(t *testing.T) {
	rt := cotask.New(cotask.WithWorkers(2))
	defer rt.Shutdown()

	parent := cotask.Spawn(rt, "parent", cotask.TaskFunc[int](
		func() cotask.TaskFunc[int] {
			var child *cotask.JoinHandle[int]
			return func(tc *cotask.Context) (int, error, bool) {
				if child == nil {
					child = cotask.SpawnLocal(tc, "child", value(41))
				}
				v, err, ok := child.Poll(tc)
				if !ok {
					return 0, nil, false
				}
				return v + 1, err, true
			}
		}(),
	))

	got, err := awaitWithin(t, parent, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, 42, got)
}

func TestDroppedHandleDetachesTask(t *testing.T) {
	rt := cotask.New(cotask.WithWorkers(2))
	defer rt.Shutdown()

	var ran atomic.Bool
	cotask.Spawn(rt, "detached", cotask.TaskFunc[struct{}](
		func(tc *cotask.Context) (struct{}, error, bool) {
			ran.Store(true)
			return struct{}{}, nil, true
		},
	))

	require.Eventually(t, ran.Load, 5*time.Second, 5*time.Millisecond,
		"detached task must still run to completion")
}

func TestCancelBeforeFirstResume(t *testing.T) {
	rt := cotask.New(cotask.WithWorkers(1))
	defer rt.Shutdown()

	// Park the single worker with a long-running resume so the target
	// task cannot start before Cancel lands.
	gate := make(chan struct{})
	blocker := cotask.Spawn(rt, "blocker", cotask.TaskFunc[struct{}](
		func(tc *cotask.Context) (struct{}, error, bool) {
			<-gate
			return struct{}{}, nil, true
		},
	))

	target := cotask.Spawn(rt, "target", value("never observed"))
	target.Cancel()
	close(gate)

	_, err := awaitWithin(t, blocker, 5*time.Second)
	require.NoError(t, err)
	_, err = awaitWithin(t, target, 5*time.Second)
	require.ErrorIs(t, err, cotask.ErrCancelled)
	require.Equal(t, cotask.StateCancelled, target.State())
}

func TestTaskInfoAttribution(t *testing.T) {
	rt := cotask.New(cotask.WithWorkers(1))
	defer rt.Shutdown()

	h := cotask.Spawn(rt, "named-task", value(0))
	require.Equal(t, "named-task", h.TaskInfo().Name)
	require.NotZero(t, h.TaskInfo().ID)

	_, err := awaitWithin(t, h, 5*time.Second)
	require.NoError(t, err)
}
