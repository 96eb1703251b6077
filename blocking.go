package cotask

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrBlockingClosed is returned when a closure is submitted after the
// runtime shut down.
var ErrBlockingClosed = errors.New("cotask: blocking pool is closed")

// blockingPool runs closures that may block or burn CPU on threads
// outside the cooperative worker pool. It is elastic: threads are started
// on demand up to a limit and retired after an idle timeout.
type blockingPool struct {
	log    logrus.FieldLogger
	limit  int
	idleTO time.Duration
	clock  Clock

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	idle    int
	threads int
	closed  bool
	wg      sync.WaitGroup

	// Observability counters.
	submitted atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64
	peak      atomic.Int64
}

// BlockingStats is a point-in-time snapshot of blocking-pool activity.
type BlockingStats struct {
	Submitted   int64 // total closures submitted
	Completed   int64 // closures finished (success + panic)
	Panicked    int64 // closures that panicked
	Threads     int   // live pool threads
	PeakThreads int64 // high-water mark of live threads
	QueueDepth  int   // closures waiting for a thread
	Limit       int   // thread cap (fixed at creation)
}

func newBlockingPool(log logrus.FieldLogger, limit int, idleTO time.Duration, clock Clock) *blockingPool {
	p := &blockingPool{
		log:    log,
		limit:  limit,
		idleTO: idleTO,
		clock:  clock,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *blockingPool) submit(fn func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrBlockingClosed
	}

	p.queue = append(p.queue, fn)
	p.submitted.Add(1)

	switch {
	case p.idle > 0:
		p.cond.Signal()
	case p.threads < p.limit:
		p.threads++
		if int64(p.threads) > p.peak.Load() {
			p.peak.Store(int64(p.threads))
		}
		p.wg.Add(1)
		go p.thread()
	}
	// At the limit with no idle thread: the closure waits in the queue.
	p.mu.Unlock()
	return nil
}

// thread is one pool thread: it drains the queue, then idles up to the
// retirement deadline before exiting.
func (p *blockingPool) thread() {
	defer p.wg.Done()

	p.mu.Lock()
	for {
		for len(p.queue) > 0 {
			fn := p.queue[0]
			p.queue[0] = nil
			p.queue = p.queue[1:]

			p.mu.Unlock()
			p.run(fn)
			p.mu.Lock()
		}

		if p.closed {
			break
		}

		retireAt := p.clock.Now().Add(p.idleTO)
		expired := false
		for len(p.queue) == 0 && !p.closed && !expired {
			wake := p.clock.AfterFunc(p.idleTO, func() {
				p.mu.Lock()
				p.cond.Broadcast()
				p.mu.Unlock()
			})

			p.idle++
			p.cond.Wait()
			p.idle--

			wake.Stop()
			expired = !p.clock.Now().Before(retireAt)
		}
		if len(p.queue) == 0 && !p.closed {
			break // retire
		}
	}
	p.threads--
	p.mu.Unlock()
}

func (p *blockingPool) run(fn func()) {
	defer p.completed.Add(1)
	defer func() {
		if r := recover(); r != nil {
			// The closure's own promise already captured the panic; a
			// second panic past that point must not kill the thread.
			p.panicked.Add(1)
			p.log.WithField("value", r).Error("blocking closure panicked past containment")
		}
	}()
	fn()
}

func (p *blockingPool) stats() BlockingStats {
	p.mu.Lock()
	threads := p.threads
	depth := len(p.queue)
	p.mu.Unlock()

	return BlockingStats{
		Submitted:   p.submitted.Load(),
		Completed:   p.completed.Load(),
		Panicked:    p.panicked.Load(),
		Threads:     threads,
		PeakThreads: p.peak.Load(),
		QueueDepth:  depth,
		Limit:       p.limit,
	}
}

// close stops accepting closures and waits for in-flight ones to finish.
// Queued closures still run; only then do the threads exit.
func (p *blockingPool) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
}

// BlockingHandle observes the outcome of a closure submitted to the
// blocking pool. It bridges the result back into the cooperative world:
// tasks poll it as a suspension point, host code awaits it.
type BlockingHandle[T any] struct {
	p *promise[T]
}

// RunBlocking submits fn to the runtime's blocking pool and returns a
// handle that completes when fn returns. fn runs on a thread outside the
// cooperative worker pool, so it may block or consume CPU freely without
// starving tasks. A panic in fn is contained and delivered through the
// handle as a [*PanicError].
//
// If the runtime is shut down the handle completes immediately with
// [ErrBlockingClosed].
func RunBlocking[T any](rt *Runtime, fn func() (T, error)) *BlockingHandle[T] {
	h := &BlockingHandle[T]{p: newPromise[T]()}

	err := rt.blocking.submit(func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				h.p.complete(zero, newPanicError(r))
			}
		}()
		v, err := fn()
		h.p.complete(v, err)
	})
	if err != nil {
		var zero T
		h.p.complete(zero, err)
	}

	return h
}

// Await blocks the calling goroutine until the closure finishes. Host-side
// only; from inside a task use [BlockingHandle.Poll].
func (h *BlockingHandle[T]) Await() (T, error) {
	return h.p.await()
}

// Poll returns the closure's outcome if it has finished, or registers the
// calling task's waker and reports not-done.
func (h *BlockingHandle[T]) Poll(tc *Context) (T, error, bool) {
	return h.p.poll(tc)
}

// Done returns a channel closed when the closure has finished.
func (h *BlockingHandle[T]) Done() <-chan struct{} {
	return h.p.done
}
