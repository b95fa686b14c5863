package testbench

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/i5heu/GoStrQueue/internal/queue"
)

// Config is only about concurrency: how many producers, how many consumers.
type Config struct {
	NumProducers int `yaml:"producers" json:"num_producers"`
	NumConsumers int `yaml:"consumers" json:"num_consumers"`
}

// RunTimedTest spawns producers and consumers that run for the specified
// duration, measuring how many messages are actually enqueued/dequeued
// in that window. Once the context expires, producers stop and consumers
// drain any remaining messages in the queue.
// Returns the total messages enqueued, total consumed, and the actual elapsed time.
func RunTimedTest[T any, Q queue.QueueValidationInterface[T]](
	q Q,
	cfg Config,
	testDuration time.Duration,
	valueGenerator func(int) T,
) (producedCount int64, consumedCount int64, elapsed time.Duration) {

	ctx, cancel := context.WithTimeout(context.Background(), testDuration)
	defer cancel()

	var totalProduced int64
	var totalConsumed int64

	start := time.Now()

	var msgIndex int64
	var prodWg sync.WaitGroup
	prodWg.Add(cfg.NumProducers)

	// productionDone flips to 1 when the test duration expires.
	var productionDone int32
	go func() {
		<-ctx.Done()
		atomic.StoreInt32(&productionDone, 1)
	}()

	for i := 0; i < cfg.NumProducers; i++ {
		go func() {
			defer prodWg.Done()
			for atomic.LoadInt32(&productionDone) == 0 {
				idx := atomic.AddInt64(&msgIndex, 1) - 1
				q.Enqueue(valueGenerator(int(idx)))
				atomic.AddInt64(&totalProduced, 1)
			}
		}()
	}

	var consWg sync.WaitGroup
	consWg.Add(cfg.NumConsumers)
	for i := 0; i < cfg.NumConsumers; i++ {
		go func() {
			defer consWg.Done()
			for {
				if atomic.LoadInt32(&productionDone) == 1 {
					for {
						if _, ok := q.Dequeue(); !ok {
							return
						}
						atomic.AddInt64(&totalConsumed, 1)
					}
				}
				if _, ok := q.Dequeue(); ok {
					atomic.AddInt64(&totalConsumed, 1)
				} else {
					runtime.Gosched()
				}
			}
		}()
	}

	<-ctx.Done()
	prodWg.Wait()

	// Producers blocked on a full queue may have finished after the consumers
	// drained, so drain once more.
	consWg.Wait()
	for {
		if _, ok := q.Dequeue(); !ok {
			break
		}
		atomic.AddInt64(&totalConsumed, 1)
	}

	elapsed = time.Since(start)
	producedCount = atomic.LoadInt64(&totalProduced)
	consumedCount = atomic.LoadInt64(&totalConsumed)
	return producedCount, consumedCount, elapsed
}

// SizedConfig describes one single-threaded structural measurement.
type SizedConfig struct {
	Size    int
	Prefill bool // fill the queue with Size generated values before timing
}

// RunSizedTest times op against q on the calling goroutine. When Prefill is
// set, q is first filled from the tail with cfg.Size generated values. The
// chain is validated after op and q is freed before returning.
func RunSizedTest[Q queue.StructuralQueue](
	q Q,
	cfg SizedConfig,
	valueGenerator func(int) []byte,
	op func(q Q, size int, valueGenerator func(int) []byte),
) (elapsed time.Duration, err error) {
	defer q.Free()

	if cfg.Prefill {
		for i := 0; i < cfg.Size; i++ {
			if !q.InsertTail(valueGenerator(i)) {
				return 0, fmt.Errorf("prefill value %d of %d refused", i, cfg.Size)
			}
		}
	}

	start := time.Now()
	op(q, cfg.Size, valueGenerator)
	elapsed = time.Since(start)

	if err := q.Check(); err != nil {
		return elapsed, fmt.Errorf("after %d-element run: %w", cfg.Size, err)
	}
	return elapsed, nil
}
