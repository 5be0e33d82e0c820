package fsm

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Runner executes workers. The machine hands every spawned job to its Runner
// and never waits for it; implementations decide where the function runs.
type Runner interface {
	Go(fn func())
}

// Waiter is implemented by runners that can block until every function they
// started has returned
type Waiter interface {
	Wait() error
}

// RunnerFunc adapts a plain function to the Runner interface
type RunnerFunc func(fn func())

func (f RunnerFunc) Go(fn func()) { f(fn) }

// GoRunner starts one goroutine per job. It is the default runner.
type GoRunner struct {
	wg sync.WaitGroup
}

// NewGoRunner creates a goroutine-per-job runner
func NewGoRunner() *GoRunner {
	return &GoRunner{}
}

func (r *GoRunner) Go(fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
}

// Wait blocks until all started goroutines returned
func (r *GoRunner) Wait() error {
	r.wg.Wait()
	return nil
}

// SyncRunner runs each job inline on the caller's goroutine. Useful in tests
// that must not depend on scheduling.
type SyncRunner struct{}

func (SyncRunner) Go(fn func()) { fn() }

// Pool bounds the number of concurrently running jobs. Go never blocks: every
// job gets its own goroutine which waits for a free slot before running.
type Pool struct {
	sem   *semaphore.Weighted
	group errgroup.Group
	limit int
}

// NewPool creates a pool running at most size jobs at once.
//
// A value <= 0 will be normalized to runtime.NumCPU().
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Pool{
		sem:   semaphore.NewWeighted(int64(size)),
		limit: size,
	}
}

func (p *Pool) Go(fn func()) {
	p.group.Go(func() error {
		// Background context: jobs are never cancelled, so Acquire cannot fail
		if err := p.sem.Acquire(context.Background(), 1); err != nil {
			return err
		}
		defer p.sem.Release(1)
		fn()
		return nil
	})
}

// Wait blocks until all jobs handed to the pool returned
func (p *Pool) Wait() error {
	return p.group.Wait()
}

// Size returns the concurrency limit
func (p *Pool) Size() int {
	return p.limit
}
