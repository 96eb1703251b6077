package cotask_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/cotask"
	"github.com/baxromumarov/cotask/syncx"
)

// awaitWithin is the watchdog used throughout the tests: a task that
// neither finishes nor gets woken is a liveness bug, and must fail the
// test instead of hanging it.
func awaitWithin[T any](t *testing.T, h *cotask.JoinHandle[T], d time.Duration) (T, error) {
	t.Helper()
	select {
	case <-h.Done():
		return h.Await()
	case <-time.After(d):
		t.Fatalf("task %q did not reach a terminal state within %v", h.TaskInfo().Name, d)
		panic("unreachable")
	}
}

// value spawns immediately-completing tasks in the tests.
func value[T any](v T) cotask.TaskFunc[T] {
	return func(tc *cotask.Context) (T, error, bool) {
		return v, nil, true
	}
}

func TestSpawnDeliversEachResultExactlyOnce(t *testing.T) {
	rt := cotask.New(cotask.WithWorkers(4))
	defer rt.Shutdown()

	const n = 64
	handles := make([]*cotask.JoinHandle[int], n)
	for i := range n {
		handles[i] = cotask.Spawn(rt, "square", value(i*i))
	}

	for i, h := range handles {
		got, err := awaitWithin(t, h, 5*time.Second)
		require.NoError(t, err)
		require.Equal(t, i*i, got)
	}
}

func TestSharedCounterAcrossTasks(t *testing.T) {
	rt := cotask.New(cotask.WithWorkers(4))
	defer rt.Shutdown()

	counter := syncx.NewCounter()

	const tasks, increments = 100, 1000
	handles := make([]*cotask.JoinHandle[struct{}], tasks)
	for i := range tasks {
		handles[i] = cotask.Spawn(rt, "increment", cotask.TaskFunc[struct{}](
			func(tc *cotask.Context) (struct{}, error, bool) {
				for range increments {
					counter.Inc()
				}
				return struct{}{}, nil, true
			},
		))
	}

	for _, h := range handles {
		_, err := awaitWithin(t, h, 10*time.Second)
		require.NoError(t, err)
	}
	require.EqualValues(t, tasks*increments, counter.Value())
}

func TestPanicIsContainedPerTask(t *testing.T) {
	rt := cotask.New(cotask.WithWorkers(2))
	defer rt.Shutdown()

	boom := cotask.Spawn(rt, "boom", cotask.TaskFunc[int](
		func(tc *cotask.Context) (int, error, bool) {
			panic("kaput")
		},
	))

	_, err := awaitWithin(t, boom, 5*time.Second)
	require.True(t, cotask.IsPanic(err), "expected a PanicError, got %v", err)
	require.Contains(t, err.Error(), "kaput")
	require.Equal(t, cotask.StatePanicked, boom.State())

	// The worker that contained the panic must still run tasks.
	after := cotask.Spawn(rt, "after", value("alive"))
	got, err := awaitWithin(t, after, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, "alive", got)

	require.EqualValues(t, 1, rt.Stats().Panicked)
}

func TestYieldInterleavesTasksOnOneWorker(t *testing.T) {
	rt := cotask.New(cotask.WithWorkers(1))
	defer rt.Shutdown()

	var mu sync.Mutex
	var trace []string

	turn := func(name string, turns int) cotask.TaskFunc[struct{}] {
		i := 0
		return func(tc *cotask.Context) (struct{}, error, bool) {
			mu.Lock()
			trace = append(trace, name)
			mu.Unlock()
			i++
			if i == turns {
				return struct{}{}, nil, true
			}
			tc.Yield()
			return struct{}{}, nil, false
		}
	}

	// Spawn both from inside a task so the single worker sees them
	// enqueued together; spawning from the host races with the worker
	// already draining the first task.
	handles := make(chan *cotask.JoinHandle[struct{}], 2)
	starter := cotask.Spawn(rt, "starter", cotask.TaskFunc[struct{}](
		func(tc *cotask.Context) (struct{}, error, bool) {
			handles <- cotask.SpawnLocal(tc, "b", turn("b", 3))
			handles <- cotask.SpawnLocal(tc, "a", turn("a", 3))
			return struct{}{}, nil, true
		},
	))
	_, err := awaitWithin(t, starter, 5*time.Second)
	require.NoError(t, err)

	b, a := <-handles, <-handles
	_, err = awaitWithin(t, a, 5*time.Second)
	require.NoError(t, err)
	_, err = awaitWithin(t, b, 5*time.Second)
	require.NoError(t, err)

	// A single worker with cooperative yields must alternate; a yielding
	// task must not monopolize the worker.
	require.Equal(t, []string{"a", "b", "a", "b", "a", "b"}, trace)
}

func TestWorkStealingDrainsOneWorkersBacklog(t *testing.T) {
	rt := cotask.New(cotask.WithWorkers(4))
	defer rt.Shutdown()

	// The parent dumps every child onto its own local queue; idle peers
	// must steal them for the batch to finish promptly.
	parent := cotask.Spawn(rt, "parent", cotask.TaskFunc[int](
		func() cotask.TaskFunc[int] {
			var children []*cotask.JoinHandle[int]
			sum, next := 0, 0
			return func(tc *cotask.Context) (int, error, bool) {
				if children == nil {
					for i := range 100 {
						children = append(children, cotask.SpawnLocal(tc, "child", value(i)))
					}
				}
				// Join in order; each handle's result is consumed once.
				for next < len(children) {
					v, err, ok := children[next].Poll(tc)
					if !ok {
						return 0, nil, false
					}
					if err != nil {
						return 0, err, true
					}
					sum += v
					next++
				}
				return sum, nil, true
			}
		}(),
	))

	sum, err := awaitWithin(t, parent, 10*time.Second)
	require.NoError(t, err)
	require.Equal(t, 99*100/2, sum)
}

func TestCancelStopsSuspendedTask(t *testing.T) {
	rt := cotask.New(cotask.WithWorkers(2))
	defer rt.Shutdown()

	spinner := cotask.Spawn(rt, "spinner", cotask.TaskFunc[struct{}](
		func(tc *cotask.Context) (struct{}, error, bool) {
			tc.Yield()
			return struct{}{}, nil, false
		},
	))

	spinner.Cancel()
	_, err := awaitWithin(t, spinner, 5*time.Second)
	require.ErrorIs(t, err, cotask.ErrCancelled)
	require.Equal(t, cotask.StateCancelled, spinner.State())
}

func TestShutdownFailsOrphanedTasks(t *testing.T) {
	rt := cotask.New(cotask.WithWorkers(2))

	// Suspends without registering any waker: without shutdown this
	// handle would never resolve.
	stuck := cotask.Spawn(rt, "stuck", cotask.TaskFunc[int](
		func(tc *cotask.Context) (int, error, bool) {
			return 0, nil, false
		},
	))

	// Let the task reach its suspension point before shutting down.
	time.Sleep(50 * time.Millisecond)
	rt.Shutdown()

	_, err := awaitWithin(t, stuck, 5*time.Second)
	require.ErrorIs(t, err, cotask.ErrShutdown)
}

func TestSpawnShutdownRaceResolvesEveryHandle(t *testing.T) {
	// Hammer Spawn from several goroutines while Shutdown runs. Whatever
	// side of the race a spawn lands on, its handle must reach a terminal
	// state: completed normally, or failed with ErrShutdown.
	for range 20 {
		rt := cotask.New(cotask.WithWorkers(2))

		var mu sync.Mutex
		var handles []*cotask.JoinHandle[int]
		stop := make(chan struct{})
		var wg sync.WaitGroup
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-stop:
						return
					default:
					}
					func() {
						// Spawn strictly after shutdown panics; only
						// handles actually returned are checked.
						defer func() { _ = recover() }()
						h := cotask.Spawn(rt, "racer", value(1))
						mu.Lock()
						handles = append(handles, h)
						mu.Unlock()
					}()
				}
			}()
		}

		time.Sleep(time.Millisecond)
		rt.Shutdown()
		close(stop)
		wg.Wait()

		for _, h := range handles {
			v, err := awaitWithin(t, h, 5*time.Second)
			if err != nil {
				require.ErrorIs(t, err, cotask.ErrShutdown)
			} else {
				require.Equal(t, 1, v)
			}
		}
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	rt := cotask.New(cotask.WithWorkers(1))
	rt.Shutdown()
	rt.Shutdown()
}

type confinedTask struct{}

func (confinedTask) Resume(*cotask.Context) (int, error, bool) { return 0, nil, true }
func (confinedTask) ThreadConfined()                           {}

func TestSpawnRejectsThreadConfinedState(t *testing.T) {
	rt := cotask.New(cotask.WithWorkers(1))
	defer rt.Shutdown()

	require.Panics(t, func() {
		cotask.Spawn(rt, "confined", confinedTask{})
	})
}

func TestStatsCountsOutcomes(t *testing.T) {
	rt := cotask.New(cotask.WithWorkers(2))
	defer rt.Shutdown()

	ok := cotask.Spawn(rt, "ok", value(1))
	bad := cotask.Spawn(rt, "bad", cotask.TaskFunc[int](
		func(tc *cotask.Context) (int, error, bool) { panic("x") },
	))

	_, _ = awaitWithin(t, ok, 5*time.Second)
	_, _ = awaitWithin(t, bad, 5*time.Second)

	stats := rt.Stats()
	require.EqualValues(t, 2, stats.Spawned)
	require.EqualValues(t, 1, stats.Completed)
	require.EqualValues(t, 1, stats.Panicked)
	require.Equal(t, 2, stats.Workers)
}
