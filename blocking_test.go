package cotask_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/cotask"
)

func TestRunBlockingDeliversResult(t *testing.T) {
	rt := cotask.New(cotask.WithWorkers(2))
	defer rt.Shutdown()

	h := cotask.RunBlocking(rt, func() (string, error) {
		time.Sleep(10 * time.Millisecond)
		return "done", nil
	})

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("blocking closure did not finish")
	}

	got, err := h.Await()
	require.NoError(t, err)
	require.Equal(t, "done", got)
}

func TestRunBlockingContainsPanic(t *testing.T) {
	rt := cotask.New(cotask.WithWorkers(2))
	defer rt.Shutdown()

	h := cotask.RunBlocking(rt, func() (int, error) {
		panic("off-loop explosion")
	})

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("panicking closure did not complete its handle")
	}

	_, err := h.Await()
	require.True(t, cotask.IsPanic(err), "expected a PanicError, got %v", err)
	require.Contains(t, err.Error(), "off-loop explosion")

	// The pool survives the panic and keeps accepting work.
	after := cotask.RunBlocking(rt, func() (int, error) { return 1, nil })
	got, err := after.Await()
	require.NoError(t, err)
	require.Equal(t, 1, got)
}

func TestRunBlockingPropagatesError(t *testing.T) {
	rt := cotask.New(cotask.WithWorkers(1))
	defer rt.Shutdown()

	sentinel := errors.New("io failed")
	h := cotask.RunBlocking(rt, func() (int, error) {
		return 0, sentinel
	})

	_, err := h.Await()
	require.ErrorIs(t, err, sentinel)
}

func TestBlockingHandleIsPollableFromTask(t *testing.T) {
	rt := cotask.New(cotask.WithWorkers(2))
	defer rt.Shutdown()

	h := cotask.Spawn(rt, "bridge", cotask.TaskFunc[int](
		func() cotask.TaskFunc[int] {
			var bh *cotask.BlockingHandle[int]
			return func(tc *cotask.Context) (int, error, bool) {
				if bh == nil {
					bh = cotask.RunBlocking(tc.Runtime(), func() (int, error) {
						time.Sleep(20 * time.Millisecond)
						return 99, nil
					})
				}
				return bh.Poll(tc)
			}
		}(),
	))

	got, err := awaitWithin(t, h, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, 99, got)
}

func TestBlockingPoolRespectsThreadLimit(t *testing.T) {
	rt := cotask.New(cotask.WithWorkers(1), cotask.WithBlockingLimit(2))
	defer rt.Shutdown()

	release := make(chan struct{})
	handles := make([]*cotask.BlockingHandle[int], 4)
	for i := range handles {
		handles[i] = cotask.RunBlocking(rt, func() (int, error) {
			<-release
			return i, nil
		})
	}

	// Two closures occupy the two threads; the other two must queue.
	require.Eventually(t, func() bool {
		b := rt.Stats().Blocking
		return b.Threads == 2 && b.QueueDepth == 2
	}, 5*time.Second, 5*time.Millisecond)
	require.LessOrEqual(t, rt.Stats().Blocking.PeakThreads, int64(2))

	close(release)
	for i, h := range handles {
		select {
		case <-h.Done():
		case <-time.After(5 * time.Second):
			t.Fatalf("queued closure %d never ran", i)
		}
		got, err := h.Await()
		require.NoError(t, err)
		require.Equal(t, i, got)
	}
	require.EqualValues(t, 4, rt.Stats().Blocking.Completed)
}

func TestIdleBlockingThreadsRetire(t *testing.T) {
	rt := cotask.New(
		cotask.WithWorkers(1),
		cotask.WithBlockingLimit(4),
		cotask.WithBlockingIdleTimeout(30*time.Millisecond),
	)
	defer rt.Shutdown()

	h := cotask.RunBlocking(rt, func() (int, error) { return 0, nil })
	_, err := h.Await()
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return rt.Stats().Blocking.Threads == 0
	}, 5*time.Second, 10*time.Millisecond, "idle thread did not retire")
}

func TestRunBlockingAfterShutdown(t *testing.T) {
	rt := cotask.New(cotask.WithWorkers(1))
	rt.Shutdown()

	h := cotask.RunBlocking(rt, func() (int, error) { return 1, nil })
	_, err := h.Await()
	require.ErrorIs(t, err, cotask.ErrBlockingClosed)
}
