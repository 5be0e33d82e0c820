package fsm

import (
	"context"
	"time"
)

// DefaultPollInterval is used by Await when interval is not positive
const DefaultPollInterval = 10 * time.Millisecond

// Await polls m.Settle until done accepts the returned state, Settle fails or
// ctx ends. The machine never blocks on its own; Await is the caller-side
// polling loop.
func Await[P any](ctx context.Context, m StateMachine[P], interval time.Duration, done func(State[P]) bool) (State[P], error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	state, err := m.Settle(ctx)
	if err != nil || done(state) {
		return state, err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-ticker.C:
			state, err = m.Settle(ctx)
			if err != nil || done(state) {
				return state, err
			}
		}
	}
}

// TagIs returns a predicate matching any of the given tags
func TagIs[P any](tags ...Tag) func(State[P]) bool {
	return func(s State[P]) bool {
		for _, t := range tags {
			if s.Tag == t {
				return true
			}
		}
		return false
	}
}
