package stream

import (
	"context"
	"sync"
	"sync/atomic"
)

// Pool runs submitted jobs on a fixed number of workers. Submit blocks while
// every worker is busy, so excess work queues in the caller rather than being
// rejected.
type Pool struct {
	dispatch chan func()
	busy     atomic.Int64
	wg       sync.WaitGroup
	once     sync.Once
}

// NewPool starts workers goroutines. Values below one are raised to one.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}

	p := &Pool{dispatch: make(chan func())}
	p.wg.Add(workers)
	for range workers {
		go func() {
			defer p.wg.Done()
			for job := range p.dispatch {
				p.busy.Add(1)
				job()
				p.busy.Add(-1)
			}
		}()
	}
	return p
}

// Submit hands job to a free worker, waiting until one is available or ctx is done.
// Must not be called after Close.
func (p *Pool) Submit(ctx context.Context, job func()) error {
	select {
	case p.dispatch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Busy returns the number of workers currently running a job
func (p *Pool) Busy() int {
	return int(p.busy.Load())
}

// Close stops accepting jobs and waits for running ones to return
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.dispatch)
	})
	p.wg.Wait()
}
