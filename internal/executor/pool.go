package executor

import "sync"

// NamePool is the registry name of the pool executor.
const NamePool = "pool"

// Compile-time interface satisfaction check.
var _ Executor = (*Pool)(nil)

// Pool dispatches work to goroutines with bounded concurrency. Work beyond
// the bound queues on the semaphore; relative completion order among
// launched functions is unspecified.
type Pool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

// NewPool creates a pool executor running at most max functions at once.
// If max <= 0, it defaults to 1.
func NewPool(max int) *Pool {
	if max <= 0 {
		max = 1
	}
	return &Pool{sem: make(chan struct{}, max)}
}

// Launch schedules fn on the pool and returns immediately.
func (p *Pool) Launch(fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.sem <- struct{}{}
		defer func() { <-p.sem }()
		fn()
	}()
}

// Wait blocks until all launched functions have returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Capabilities reports the pool executor's characteristics.
func (p *Pool) Capabilities() Capabilities {
	return Capabilities{Name: NamePool, Concurrent: true, MaxConcurrency: cap(p.sem)}
}
