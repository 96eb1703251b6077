package chanx_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/cotask"
	"github.com/baxromumarov/cotask/chanx"
)

// awaitWithin guards every join in the tests: a task that never resolves
// must fail the test, not hang it.
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

func TestOneshotDeliversSingleValue(t *testing.T) {
	tx, rx := chanx.Oneshot[string]()

	require.NoError(t, tx.Send("only"))

	got, err := rx.Await()
	require.NoError(t, err)
	require.Equal(t, "only", got)

	// The value is consumed exactly once.
	_, err = rx.TryRecv()
	require.ErrorIs(t, err, chanx.ErrClosed)
}

func TestOneshotSecondSendFails(t *testing.T) {
	tx, rx := chanx.Oneshot[int]()

	require.NoError(t, tx.Send(1))
	require.ErrorIs(t, tx.Send(2), chanx.ErrAlreadySent)

	got, err := rx.Await()
	require.NoError(t, err)
	require.Equal(t, 1, got)
}

func TestOneshotDropResolvesReceiver(t *testing.T) {
	tx, rx := chanx.Oneshot[int]()
	tx.Drop()
	tx.Drop() // idempotent

	_, err := rx.Await()
	require.ErrorIs(t, err, chanx.ErrSenderDropped)
	require.ErrorIs(t, tx.Send(1), chanx.ErrSenderDropped)
}

func TestOneshotTryRecvBeforeSend(t *testing.T) {
	_, rx := chanx.Oneshot[int]()
	_, err := rx.TryRecv()
	require.ErrorIs(t, err, chanx.ErrEmpty)
}

func TestOneshotWakesSuspendedTask(t *testing.T) {
	rt := cotask.New(cotask.WithWorkers(2))
	defer rt.Shutdown()

	tx, rx := chanx.Oneshot[int]()

	h := cotask.Spawn(rt, "receiver", cotask.TaskFunc[int](rx.Poll))

	// Let the task suspend on the empty channel before sending.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, tx.Send(77))

	got, err := awaitWithin(t, h, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, 77, got)
}

func TestOneshotDropWakesSuspendedTask(t *testing.T) {
	rt := cotask.New(cotask.WithWorkers(2))
	defer rt.Shutdown()

	tx, rx := chanx.Oneshot[int]()

	h := cotask.Spawn(rt, "receiver", cotask.TaskFunc[int](rx.Poll))

	time.Sleep(20 * time.Millisecond)
	tx.Drop()

	_, err := awaitWithin(t, h, 5*time.Second)
	require.ErrorIs(t, err, chanx.ErrSenderDropped)
}
