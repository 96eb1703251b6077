package syncx_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/cotask/syncx"
)

func TestCounterBasics(t *testing.T) {
	c := syncx.NewCounter()
	require.Zero(t, c.Value())

	c.Inc()
	c.Add(10)
	c.Dec()
	require.EqualValues(t, 10, c.Value())

	c.Add(-4)
	require.EqualValues(t, 6, c.Value())

	c.Reset()
	require.Zero(t, c.Value())
}

func TestCounterUnderConcurrency(t *testing.T) {
	c := syncx.NewCounter()

	const goroutines, each = 16, 10000
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			for range each {
				c.Inc()
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, goroutines*each, c.Value())
}
