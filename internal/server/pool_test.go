package server

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	const limit = 3
	pool := NewWorkerPool(limit)

	var current, peak int64
	var mu sync.Mutex
	for i := 0; i < 20; i++ {
		pool.Go(func() {
			n := atomic.AddInt64(&current, 1)
			mu.Lock()
			if n > peak {
				peak = n
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt64(&current, -1)
		})
	}
	pool.Wait()

	mu.Lock()
	defer mu.Unlock()
	if peak > limit {
		t.Fatalf("observed %d concurrent jobs, limit is %d", peak, limit)
	}
}

func TestWorkerPoolSubmitNeverBlocks(t *testing.T) {
	pool := NewWorkerPool(1)
	release := make(chan struct{})
	pool.Go(func() { <-release })

	done := make(chan struct{})
	go func() {
		// Submitting past the limit must return immediately.
		pool.Go(func() {})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Go blocked the caller when the pool was full")
	}
	close(release)
	pool.Wait()
}

func TestWorkerPoolZeroSize(t *testing.T) {
	pool := NewWorkerPool(0)
	ran := make(chan struct{})
	pool.Go(func() { close(ran) })
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("job never ran with clamped pool size")
	}
	pool.Wait()
}
