// Package workerpool provides the bounded offload pool used for CPU-heavy
// verification jobs, per the concurrency model's rule that only the reactor
// thread mutates node-owned state: workers read immutable inputs and post
// results back through a completion channel drained by the reactor.
package workerpool

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Job is a unit of CPU-heavy work with an id used to correlate its result.
type Job struct {
	ID   uint64
	Work func(ctx context.Context) error
}

// Result is a completed job's outcome, delivered on Pool.Done.
type Result struct {
	ID  uint64
	Err error
}

// Pool bounds concurrent verification work to a fixed number of slots.
type Pool struct {
	sem  *semaphore.Weighted
	done chan Result
	grp  *errgroup.Group
	ctx  context.Context
}

// New creates a pool with capacity concurrent slots. capacity <= 0 means
// effectively unbounded (1<<20 slots).
func New(ctx context.Context, capacity int) *Pool {
	if capacity <= 0 {
		capacity = 1 << 20
	}
	grp, grpCtx := errgroup.WithContext(ctx)
	return &Pool{
		sem:  semaphore.NewWeighted(int64(capacity)),
		done: make(chan Result, 256),
		grp:  grp,
		ctx:  grpCtx,
	}
}

// Done is the channel the reactor drains for job completions.
func (p *Pool) Done() <-chan Result {
	return p.done
}

// Submit blocks until a slot is free, then runs job.Work in a goroutine.
// Submit itself never runs Work synchronously, so callers on the reactor
// thread never block on job execution, only on slot acquisition.
func (p *Pool) Submit(job Job) error {
	if err := p.sem.Acquire(p.ctx, 1); err != nil {
		return err
	}
	p.grp.Go(func() error {
		defer p.sem.Release(1)
		err := job.Work(p.ctx)
		select {
		case p.done <- Result{ID: job.ID, Err: err}:
		case <-p.ctx.Done():
		}
		return nil
	})
	return nil
}

// Wait blocks until every submitted job has completed.
func (p *Pool) Wait() error {
	return p.grp.Wait()
}
