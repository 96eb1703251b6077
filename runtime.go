package cotask

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"
)

// Runtime multiplexes cooperative tasks onto a fixed pool of worker
// threads. Each worker pulls from its own local queue, then from the
// shared injector, then steals from a random peer. Create one via [New];
// a Runtime is an explicit instance, never an ambient singleton, so
// independent runtimes can coexist in one process.
type Runtime struct {
	id  string
	cfg config
	log logrus.FieldLogger

	// Injector: the shared FIFO that receives tasks spawned from outside
	// the runtime and tasks woken from other threads. workSeq increments
	// on every push anywhere, so a worker that snapshots it before a
	// failed steal can detect work that arrived while it was scanning.
	injectMu sync.Mutex
	inject   []*task
	workSeq  uint64
	parked   *sync.Cond

	workers []*worker
	wg      sync.WaitGroup
	closed  atomic.Bool

	tasks  *xsync.MapOf[uint64, *task]
	nextID atomic.Uint64

	spawned   atomic.Int64
	completed atomic.Int64
	cancelled atomic.Int64
	panicked  atomic.Int64

	blocking *blockingPool
	clock    Clock
}

// RuntimeStats is a point-in-time snapshot of runtime activity.
type RuntimeStats struct {
	Spawned   int64 // total tasks spawned
	Completed int64 // tasks that reached Completed
	Cancelled int64 // tasks that reached Cancelled
	Panicked  int64 // tasks that reached Panicked
	Active    int64 // tasks not yet terminal
	Workers   int   // scheduler worker count (fixed at creation)
	Blocking  BlockingStats
}

type worker struct {
	rt    *Runtime
	idx   int
	local deque
}

// New creates a Runtime and starts its workers. The caller owns the
// lifecycle and must call [Runtime.Shutdown] when done.
func New(opts ...Option) *Runtime {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	rt := &Runtime{
		id:    uuid.NewString(),
		cfg:   cfg,
		tasks: xsync.NewMapOf[uint64, *task](),
		clock: cfg.clock,
	}
	rt.log = cfg.logger.WithField("runtime", rt.id)
	rt.parked = sync.NewCond(&rt.injectMu)
	rt.blocking = newBlockingPool(rt.log, cfg.blockingLimit, cfg.blockingIdle, cfg.clock)

	rt.workers = make([]*worker, cfg.workers)
	for i := range rt.workers {
		rt.workers[i] = &worker{rt: rt, idx: i}
	}

	rt.wg.Add(len(rt.workers))
	for _, w := range rt.workers {
		go w.loop()
	}

	rt.log.WithFields(logrus.Fields{
		"workers":        cfg.workers,
		"blocking_limit": cfg.blockingLimit,
	}).Debug("runtime started")

	return rt
}

// Shutdown stops the workers and the blocking pool. Tasks that have not
// reached a terminal state are completed as Cancelled with [ErrShutdown]
// so no handle awaits forever. Shutdown is idempotent.
func (rt *Runtime) Shutdown() {
	if !rt.closed.CompareAndSwap(false, true) {
		return
	}

	rt.injectMu.Lock()
	rt.parked.Broadcast()
	rt.injectMu.Unlock()
	rt.wg.Wait()

	var dropped int
	rt.tasks.Range(func(_ uint64, t *task) bool {
		if !t.terminal() {
			t.fail(ErrShutdown)
			dropped++
		}
		return true
	})

	rt.blocking.close()

	rt.log.WithField("dropped", dropped).Debug("runtime stopped")
}

// Stats returns a point-in-time snapshot of runtime activity.
// Safe to call concurrently.
func (rt *Runtime) Stats() RuntimeStats {
	return RuntimeStats{
		Spawned:   rt.spawned.Load(),
		Completed: rt.completed.Load(),
		Cancelled: rt.cancelled.Load(),
		Panicked:  rt.panicked.Load(),
		Active:    int64(rt.tasks.Size()),
		Workers:   len(rt.workers),
		Blocking:  rt.blocking.stats(),
	}
}

// ID returns the runtime's unique identifier, also attached to its logs.
func (rt *Runtime) ID() string {
	return rt.id
}

func (rt *Runtime) newTask(name string) *task {
	t := &task{
		id:   rt.nextID.Add(1),
		name: name,
		rt:   rt,
	}
	t.ctx.t = t
	t.state.Store(uint32(StatePending))
	t.sched.Store(schedQueued)
	return t
}

// register publishes the task to the live registry. The caller must have
// fully wired the task (resume and fail set) first: the shutdown sweep
// calls fail on everything it finds in the registry.
func (rt *Runtime) register(t *task) {
	rt.tasks.Store(t.id, t)
	rt.spawned.Add(1)
}

// enqueue pushes a task onto the injector and wakes one parked worker.
func (rt *Runtime) enqueue(t *task) {
	rt.injectMu.Lock()
	rt.inject = append(rt.inject, t)
	rt.workSeq++
	rt.parked.Signal()
	rt.injectMu.Unlock()
}

// noteWork records that runnable work appeared outside the injector (a
// local-queue push) so a parked worker wakes up and tries to steal it.
func (rt *Runtime) noteWork() {
	rt.injectMu.Lock()
	rt.workSeq++
	rt.parked.Signal()
	rt.injectMu.Unlock()
}

// finishTask retires a terminal task from the registry and bumps the
// outcome counter matching its final state.
func (rt *Runtime) finishTask(t *task) {
	rt.tasks.Delete(t.id)
	switch t.currentState() {
	case StateCancelled:
		rt.cancelled.Add(1)
	case StatePanicked:
		rt.panicked.Add(1)
		rt.log.WithFields(logrus.Fields{
			"task": t.name,
			"id":   t.id,
		}).Error("task panicked; contained")
	default:
		rt.completed.Add(1)
	}
}

func (w *worker) pushLocal(t *task) {
	w.local.push(t)
	w.rt.noteWork()
}

func (w *worker) loop() {
	defer w.rt.wg.Done()

	for {
		t, ok := w.next()
		if !ok {
			return
		}
		if t.runOnce(w) {
			w.rt.finishTask(t)
		}
	}
}

// next returns the next runnable task: local queue first, then an injector
// batch, then a half-steal from a random peer. With nothing runnable the
// worker parks until new work is noted or the runtime shuts down.
func (w *worker) next() (*task, bool) {
	if t, ok := w.local.pop(); ok {
		return t, true
	}

	for {
		if w.rt.closed.Load() {
			return nil, false
		}

		seq, t, ok := w.drainInjector()
		if ok {
			return t, true
		}
		if t, ok := w.steal(); ok {
			return t, true
		}

		w.park(seq)
	}
}

// drainInjector grabs a fair share of the injector in one lock hold: the
// first task is returned for immediate execution, the rest land on the
// local queue. It also snapshots workSeq for the caller's park decision.
func (w *worker) drainInjector() (uint64, *task, bool) {
	rt := w.rt

	rt.injectMu.Lock()
	seq := rt.workSeq
	n := len(rt.inject)
	if n == 0 {
		rt.injectMu.Unlock()
		return seq, nil, false
	}

	batch := n/len(rt.workers) + 1
	if batch > n {
		batch = n
	}
	taken := make([]*task, batch)
	copy(taken, rt.inject[:batch])
	remaining := copy(rt.inject, rt.inject[batch:])
	for i := remaining; i < n; i++ {
		rt.inject[i] = nil
	}
	rt.inject = rt.inject[:remaining]
	rt.injectMu.Unlock()

	for _, t := range taken[1:] {
		w.local.push(t)
	}
	if len(taken) > 1 {
		rt.noteWork()
	}
	return seq, taken[0], true
}

// steal scans peers from a random starting point and takes half of the
// first non-empty queue it finds. Randomizing the victim keeps repeated
// steals from always draining the same worker.
func (w *worker) steal() (*task, bool) {
	peers := w.rt.workers
	if len(peers) < 2 {
		return nil, false
	}

	start := rand.IntN(len(peers))
	for i := range len(peers) {
		victim := peers[(start+i)%len(peers)]
		if victim == w {
			continue
		}
		stolen := victim.local.stealHalf()
		if len(stolen) == 0 {
			continue
		}
		for _, t := range stolen[1:] {
			w.local.push(t)
		}
		return stolen[0], true
	}
	return nil, false
}

// park blocks until new work has been noted since seq was snapshotted.
// Comparing against the snapshot closes the window where work arrives
// between a failed steal and the wait.
func (w *worker) park(seq uint64) {
	rt := w.rt

	rt.injectMu.Lock()
	for rt.workSeq == seq && len(rt.inject) == 0 && !rt.closed.Load() {
		rt.parked.Wait()
	}
	rt.injectMu.Unlock()
}
