package cotask

import (
	"io"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

type config struct {
	workers       int
	blockingLimit int
	blockingIdle  time.Duration
	clock         Clock
	logger        logrus.FieldLogger
}

// Option configures a [Runtime] at construction. The configuration is
// consumed once by [New] and never re-read afterward.
type Option func(*config)

func defaultConfig() config {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return config{
		workers:       runtime.NumCPU(),
		blockingLimit: 128,
		blockingIdle:  30 * time.Second,
		clock:         systemClock{},
		logger:        log,
	}
}

// WithWorkers sets the number of scheduler worker threads.
// The default is [runtime.NumCPU]. WithWorkers panics if n <= 0.
func WithWorkers(n int) Option {
	if n <= 0 {
		panic("cotask: WithWorkers requires n > 0")
	}
	return func(c *config) {
		c.workers = n
	}
}

// WithBlockingLimit caps the number of threads the blocking pool may grow
// to. The default is 128. WithBlockingLimit panics if n <= 0.
func WithBlockingLimit(n int) Option {
	if n <= 0 {
		panic("cotask: WithBlockingLimit requires n > 0")
	}
	return func(c *config) {
		c.blockingLimit = n
	}
}

// WithBlockingIdleTimeout sets how long an idle blocking-pool thread is
// kept before it is retired. The default is 30s.
// WithBlockingIdleTimeout panics if d <= 0.
func WithBlockingIdleTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("cotask: WithBlockingIdleTimeout requires d > 0")
	}
	return func(c *config) {
		c.blockingIdle = d
	}
}

// WithClock sets the clock used for timers and timeouts. The default is
// the system clock. WithClock panics if c is nil.
func WithClock(clk Clock) Option {
	if clk == nil {
		panic("cotask: WithClock requires a non-nil clock")
	}
	return func(c *config) {
		c.clock = clk
	}
}

// WithLogger sets the logger for runtime lifecycle events. The default
// logger discards everything.
func WithLogger(l logrus.FieldLogger) Option {
	if l == nil {
		panic("cotask: WithLogger requires a non-nil logger")
	}
	return func(c *config) {
		c.logger = l
	}
}
