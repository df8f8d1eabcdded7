package server

import "sync"

// WorkerPool caps the number of concurrently running background jobs
// (exploration loops, generation pipelines). Submission never blocks the
// caller; the job waits for a slot on its own goroutine.
type WorkerPool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

// NewWorkerPool builds a pool with n slots.
func NewWorkerPool(n int) *WorkerPool {
	if n <= 0 {
		n = 1
	}
	return &WorkerPool{sem: make(chan struct{}, n)}
}

// Go schedules fn on a background goroutine bounded by the pool size.
func (p *WorkerPool) Go(fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.sem <- struct{}{}
		defer func() { <-p.sem }()
		fn()
	}()
}

// Wait blocks until all submitted jobs have finished.
func (p *WorkerPool) Wait() { p.wg.Wait() }
