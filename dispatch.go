package fsm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// job is a dispatched, not yet started unit of async work. Ownership moves to
// the worker on spawn.
type job[P any] struct {
	id    uuid.UUID
	event EventID
	run   func(ctx context.Context) (State[P], error)
}

// completion is what a worker sends back to the machine
type completion[P any] struct {
	id    uuid.UUID
	event EventID
	state State[P]
	err   error
}

// dispatcher holds the pending jobs and both halves of the completion channel
type dispatcher[P any] struct {
	pending []job[P]
	order   Order
	mode    FailureMode
	runner  Runner
	logger  *slog.Logger

	tx sender[completion[P]]
	rx *receiver[completion[P]]

	// jobs spawned whose completion has not been drained yet
	outstanding int
	stopped     bool
}

func newDispatcher[P any](cfg *machineConfig) *dispatcher[P] {
	tx, rx := newChannel[completion[P]]()
	return &dispatcher[P]{
		order:  cfg.order,
		mode:   cfg.failures,
		runner: cfg.runner,
		logger: cfg.logger,
		tx:     tx,
		rx:     rx,
	}
}

func (d *dispatcher[P]) enqueue(j job[P]) {
	d.pending = append(d.pending, j)
	d.logger.Debug("job enqueued", "job_id", j.id, "event", j.event, "pending", len(d.pending))
}

// next pops the job to spawn next according to the configured order
func (d *dispatcher[P]) next() (job[P], bool) {
	var j job[P]
	n := len(d.pending)
	if n == 0 {
		return j, false
	}
	if d.order == OrderFIFO {
		j = d.pending[0]
		d.pending[0] = job[P]{}
		d.pending = d.pending[1:]
	} else {
		j = d.pending[n-1]
		d.pending[n-1] = job[P]{}
		d.pending = d.pending[:n-1]
	}
	return j, true
}

// spawnAll hands every pending job to the runner. ctx values reach the worker
// but its cancellation does not.
func (d *dispatcher[P]) spawnAll(ctx context.Context) {
	if d.stopped {
		return
	}
	for {
		j, ok := d.next()
		if !ok {
			return
		}
		d.outstanding++
		d.logger.Debug("spawning worker", "job_id", j.id, "event", j.event)
		d.runner.Go(newWorker(context.WithoutCancel(ctx), j, d.tx.clone(), d.mode, d.logger))
	}
}

// stop discards pending jobs and closes the receiver. Nothing is handed to
// the runner afterwards, so waiting on it cannot race with a new spawn.
func (d *dispatcher[P]) stop() {
	d.stopped = true
	clear(d.pending)
	d.pending = nil
	d.rx.close()
}

// tryDrain takes at most one completion without blocking
func (d *dispatcher[P]) tryDrain() (completion[P], bool) {
	c, ok := d.rx.tryRecv()
	if ok && d.outstanding > 0 {
		d.outstanding--
	}
	return c, ok
}

// newWorker builds the function a runner executes for one job. It only sees
// the job and its own sender.
func newWorker[P any](ctx context.Context, j job[P], tx sender[completion[P]], mode FailureMode, logger *slog.Logger) func() {
	return func() {
		start := time.Now()
		state, err := runJob(ctx, j)
		log := logger.With("job_id", j.id, "event", j.event, "duration", time.Since(start))

		if err != nil {
			if mode == FailureSilent {
				log.Error("async job failed, result dropped", "error", err)
				return
			}
			log.Debug("async job failed", "error", err)
		} else {
			log.Debug("async job completed", "state", state.Tag)
		}

		if sendErr := tx.send(completion[P]{id: j.id, event: j.event, state: state, err: err}); sendErr != nil {
			log.Warn("completion dropped", "error", sendErr)
		}
	}
}

// runJob runs the job and turns a panic into an error
func runJob[P any](ctx context.Context, j job[P]) (state State[P], err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("async job panicked: %v", r)
		}
	}()
	return j.run(ctx)
}
