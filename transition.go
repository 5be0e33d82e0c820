package fsm

// TaskFunc is the deferred unit of work of an async transition. It runs on a
// worker with a private payload snapshot and returns the next payload.
type TaskFunc[P any] func(ctx *Context[P]) (P, error)

// Transition defines a state change rule
type Transition[P any] struct {
	From   Tag                         // Source tag (or "*" for any state)
	Event  EventID                     // Triggering event
	To     Tag                         // Target tag; empty keeps the current tag
	Guard  func(ctx *Context[P]) bool  // Optional: must return true to take transition
	Action func(ctx *Context[P]) error // Optional: runs during transition, may mutate the payload

	// Async rules move to InFlight at once and to To when Task completes
	InFlight Tag
	Task     TaskFunc[P]
}

// IsAsync reports whether the rule dispatches background work
func (t *Transition[P]) IsAsync() bool {
	return t.Task != nil
}

// WildcardState matches any state in transition rules
const WildcardState Tag = "*"

// TransitionOption is a functional option for configuring a Transition
type TransitionOption[P any] func(*Transition[P])

// WithGuard sets a guard condition for the transition
func WithGuard[P any](fn func(*Context[P]) bool) TransitionOption[P] {
	return func(t *Transition[P]) {
		t.Guard = fn
	}
}

// WithGuards sets multiple guard conditions that must ALL pass (AND logic)
func WithGuards[P any](guards ...func(*Context[P]) bool) TransitionOption[P] {
	return func(t *Transition[P]) {
		t.Guard = func(ctx *Context[P]) bool {
			for _, g := range guards {
				if !g(ctx) {
					return false
				}
			}
			return true
		}
	}
}

// WithAction sets an action to execute during the transition
func WithAction[P any](fn func(*Context[P]) error) TransitionOption[P] {
	return func(t *Transition[P]) {
		t.Action = fn
	}
}
