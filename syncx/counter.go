package syncx

import "github.com/puzpuzpuz/xsync/v3"

// Counter is a striped atomic counter. Add never suspends and never
// takes a lock, so it is usable from any context: tasks, blocking-pool
// threads, and plain goroutines alike. Striping keeps concurrent Adds
// from contending on one cache line; Value folds the stripes.
type Counter struct {
	c *xsync.Counter
}

// NewCounter creates a counter starting at zero.
func NewCounter() *Counter {
	return &Counter{c: xsync.NewCounter()}
}

// Add adds delta (which may be negative) to the counter.
func (c *Counter) Add(delta int64) {
	c.c.Add(delta)
}

// Inc increments the counter by one.
func (c *Counter) Inc() {
	c.c.Inc()
}

// Dec decrements the counter by one.
func (c *Counter) Dec() {
	c.c.Dec()
}

// Value returns the current value. With concurrent writers the value is
// a linearization-point snapshot, exact once writers quiesce.
func (c *Counter) Value() int64 {
	return c.c.Value()
}

// Reset sets the counter back to zero.
func (c *Counter) Reset() {
	c.c.Reset()
}
