package fsm

import "context"

// StateMachine is the contract every machine exposes, whether it is built
// from a Definition or written by hand.
type StateMachine[P any] interface {
	// Transition mutates the machine according to event and the current
	// state and returns the resulting state.
	Transition(ctx context.Context, event Event) (State[P], error)

	// Settle derives the authoritative state from the payload and, for async
	// machines, integrates at most one completed job. Calling it twice with
	// nothing new in between yields the same state.
	Settle(ctx context.Context) (State[P], error)

	State() State[P]
	Payload() P
	UpdatePayload(fn func(p *P))
}

var _ StateMachine[struct{}] = (*Machine[struct{}])(nil)
