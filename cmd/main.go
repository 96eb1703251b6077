// Command cotask-demo runs a small pipeline on the cooperative runtime:
// producers feed a bounded queue, a consumer folds the values, progress is
// published on a watch channel, and a blocking closure simulates off-loop
// work.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/baxromumarov/cotask"
	"github.com/baxromumarov/cotask/chanx"
	"github.com/baxromumarov/cotask/syncx"
)

func main() {
	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)

	rt := cotask.New(cotask.WithWorkers(4), cotask.WithLogger(log))
	defer rt.Shutdown()

	tx, rx := chanx.NewQueue[int](8)
	progress, watcher := chanx.NewWatch(0)
	total := syncx.NewCounter()

	sc := cotask.NewScope(rt)

	for p := range 3 {
		sender := tx.Clone()
		cotask.SpawnIn(sc, fmt.Sprintf("producer-%d", p), cotask.TaskFunc[struct{}](
			producer(sender, p*100, 25),
		))
	}
	tx.Drop()

	consumer := cotask.SpawnIn(sc, "consumer", cotask.TaskFunc[int](
		func() func(tc *cotask.Context) (int, error, bool) {
			var fut *chanx.RecvFuture[int]
			sum := 0
			return func(tc *cotask.Context) (int, error, bool) {
				for {
					if fut == nil {
						fut = rx.Recv()
					}
					v, err, ok := fut.Poll(tc)
					if !ok {
						return 0, nil, false
					}
					fut = nil
					if err != nil { // ErrClosed: producers done
						return sum, nil, true
					}
					sum += v
					total.Inc()
					progress.Send(int(total.Value()))
				}
			}
		}(),
	))

	checksum := cotask.RunBlocking(rt, func() (int, error) {
		// Stands in for blocking I/O or a foreign call.
		return 42, nil
	})

	if err := sc.Wait(); err != nil {
		log.WithError(err).Fatal("pipeline failed")
	}

	sum, err := consumer.Await()
	if err != nil {
		log.WithError(err).Fatal("consumer failed")
	}
	side, err := checksum.Await()
	if err != nil {
		log.WithError(err).Fatal("blocking work failed")
	}

	fmt.Printf("consumed %d values, sum=%d, side=%d, last progress=%d\n",
		total.Value(), sum, side, watcher.Get())

	stats := rt.Stats()
	fmt.Printf("spawned=%d completed=%d workers=%d\n",
		stats.Spawned, stats.Completed, stats.Workers)

	if total.Value() != 75 {
		os.Exit(1)
	}
}

// producer sends count values starting at base, suspending on queue
// backpressure, then drops its sender.
func producer(tx *chanx.Sender[int], base, count int) func(tc *cotask.Context) (struct{}, error, bool) {
	i := 0
	var fut *chanx.SendFuture[int]
	return func(tc *cotask.Context) (struct{}, error, bool) {
		for i < count {
			if fut == nil {
				fut = tx.Send(base + i)
			}
			if _, err, ok := fut.Poll(tc); !ok {
				return struct{}{}, nil, false
			} else if err != nil {
				return struct{}{}, err, true
			}
			fut = nil
			i++
		}
		tx.Drop()
		return struct{}{}, nil, true
	}
}
