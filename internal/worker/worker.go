// Package worker provides a bounded worker pool used to run tile download
// tasks off the request path.
package worker

import (
	"context"
	"sync"
)

// ProcessFunc handles one task. Errors are the processor's responsibility
// to record; the pool does not retry.
type ProcessFunc[T any] func(ctx context.Context, task T) error

// Pool fans tasks out to a fixed number of goroutines over a buffered channel.
type Pool[T any] struct {
	numWorkers int
	tasks      chan T
	quit       chan struct{}
	processor  ProcessFunc[T]
	wg         sync.WaitGroup
}

func NewPool[T any](numWorkers, bufferSize int, processor ProcessFunc[T]) *Pool[T] {
	return &Pool[T]{
		numWorkers: numWorkers,
		tasks:      make(chan T, bufferSize),
		quit:       make(chan struct{}),
		processor:  processor,
	}
}

func (p *Pool[T]) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

func (p *Pool[T]) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.quit:
			p.drain(ctx)
			return
		case task := <-p.tasks:
			p.processor(ctx, task)
		}
	}
}

// drain processes whatever is left in the queue at shutdown.
func (p *Pool[T]) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-p.tasks:
			p.processor(ctx, task)
		default:
			return
		}
	}
}

// Submit enqueues a task, blocking when the buffer is full. Returns false
// once the pool is stopping; the task is not enqueued. The queue channel is
// never closed, so a producer blocked here during shutdown is released
// instead of panicking.
func (p *Pool[T]) Submit(task T) bool {
	select {
	case <-p.quit:
		return false
	case p.tasks <- task:
		return true
	}
}

// Stop signals shutdown and waits for the workers to finish. Queued tasks
// are still processed unless the workers' context is already cancelled.
func (p *Pool[T]) Stop() {
	close(p.quit)
	p.wg.Wait()
}
