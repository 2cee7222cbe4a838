// Package worker provides a bounded worker pool for background jobs
// enqueued by the sweep loops.
package worker

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Task is a self-contained unit of work. It must carry all data it
// needs; nothing is shared with the submitter.
type Task func(ctx context.Context)

// Pool runs submitted tasks on a fixed number of workers with a bounded
// queue. Submit never blocks the caller.
type Pool struct {
	tasks  chan Task
	size   int
	logger zerolog.Logger
	wg     sync.WaitGroup
}

// NewPool creates a pool with the given worker count and queue depth.
func NewPool(size, queueDepth int, logger zerolog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if queueDepth < 1 {
		queueDepth = 1
	}
	return &Pool{
		tasks:  make(chan Task, queueDepth),
		size:   size,
		logger: logger,
	}
}

// Start launches the workers and blocks until the context is cancelled
// and all in-flight tasks finished.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info().Int("workers", p.size).Msg("worker pool started")

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.wg.Wait()
	p.logger.Info().Msg("worker pool stopped")
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-p.tasks:
			p.run(ctx, task)
		}
	}
}

// run executes one task, isolating panics so a bad job cannot take down
// a worker.
func (p *Pool) run(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Msg("task panicked")
		}
	}()
	task(ctx)
}

// Submit enqueues a task. Returns false when the queue is full; the
// caller decides whether to drop or retry on the next sweep.
func (p *Pool) Submit(task Task) bool {
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

// Pending returns the number of queued tasks.
func (p *Pool) Pending() int { return len(p.tasks) }
