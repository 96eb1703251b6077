package cotask

import "sync"

// deque is a worker's local run queue: push and pop at the back for cache
// locality, steal from the front so thieves take the oldest work. A plain
// mutex keeps it correct under concurrent steals; contention is low because
// only idle workers touch a peer's queue.
type deque struct {
	mu    sync.Mutex
	items []*task
}

func (d *deque) push(t *task) {
	d.mu.Lock()
	d.items = append(d.items, t)
	d.mu.Unlock()
}

func (d *deque) pop() (*task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := len(d.items)
	if n == 0 {
		return nil, false
	}
	t := d.items[n-1]
	d.items[n-1] = nil
	d.items = d.items[:n-1]
	return t, true
}

func (d *deque) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

// stealHalf removes the older half of the queue (rounded up) and returns
// it, oldest first. Taking half per steal amortizes the lock traffic when
// one worker is far ahead of its peers.
func (d *deque) stealHalf() []*task {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := len(d.items)
	if n == 0 {
		return nil
	}
	take := (n + 1) / 2

	stolen := make([]*task, take)
	copy(stolen, d.items[:take])
	remaining := copy(d.items, d.items[take:])
	for i := remaining; i < n; i++ {
		d.items[i] = nil
	}
	d.items = d.items[:remaining]
	return stolen
}
