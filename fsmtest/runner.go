// Package fsmtest provides helpers for testing machines built with the fsm
// package without depending on goroutine scheduling.
package fsmtest

import "sync"

// Runner queues every worker it is handed instead of running it. Tests decide
// when, and in which order, workers run.
type Runner struct {
	mu    sync.Mutex
	queue []func()
}

// Go records fn in spawn order
func (r *Runner) Go(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, fn)
}

// Len returns the number of workers not run yet
func (r *Runner) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Run runs the i-th queued worker (in spawn order) and removes it.
// It reports false when i is out of range.
func (r *Runner) Run(i int) bool {
	r.mu.Lock()
	if i < 0 || i >= len(r.queue) {
		r.mu.Unlock()
		return false
	}
	fn := r.queue[i]
	r.queue = append(r.queue[:i], r.queue[i+1:]...)
	r.mu.Unlock()

	fn()
	return true
}

// RunNext runs the oldest queued worker
func (r *Runner) RunNext() bool {
	return r.Run(0)
}

// RunAll runs every queued worker in spawn order, including workers queued
// while running
func (r *Runner) RunAll() int {
	n := 0
	for r.RunNext() {
		n++
	}
	return n
}
