package fsm

import (
	"errors"
	"fmt"
)

var (
	ErrNoTransition       = errors.New("no transition available")
	ErrTransitionRejected = errors.New("transition rejected by guards")
	ErrFinalState         = errors.New("machine is in a final state")
	ErrConditionLoop      = errors.New("settle conditions did not stabilize")
	ErrInvalidDefinition  = errors.New("invalid definition")
	ErrChannelClosed      = errors.New("completion channel closed")
	ErrStopped            = errors.New("machine stopped")
)

// Failure is the uniform error surface of the machine contracts. Cause is the
// underlying error when one is tracked and nil otherwise.
type Failure struct {
	Message string
	Cause   error
}

// NewFailure creates a Failure without a tracked cause
func NewFailure(format string, args ...any) *Failure {
	return &Failure{Message: fmt.Sprintf(format, args...)}
}

// WrapFailure creates a Failure carrying cause
func WrapFailure(cause error, format string, args ...any) *Failure {
	return &Failure{Message: fmt.Sprintf(format, args...), Cause: cause}
}

func (f *Failure) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("state failure: %s: %v", f.Message, f.Cause)
	}
	return "state failure: " + f.Message
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

// TransitionError reports a (state, event) pair no rule accepted
type TransitionError struct {
	State    Tag
	Event    EventID
	Rejected bool // a rule matched but every guard refused it
}

func (e *TransitionError) Error() string {
	if e.Rejected {
		return fmt.Sprintf("transition from state %q for event %q was rejected by guards", e.State, e.Event)
	}
	return fmt.Sprintf("no transition available from state %q for event %q", e.State, e.Event)
}

func (e *TransitionError) Is(target error) bool {
	if e.Rejected {
		return target == ErrTransitionRejected
	}
	return target == ErrNoTransition
}

// IsNoTransition reports whether err carries an unmatched (state, event) pair
func IsNoTransition(err error) bool {
	return errors.Is(err, ErrNoTransition)
}

// IsTransitionRejected reports whether err carries a guard rejection
func IsTransitionRejected(err error) bool {
	return errors.Is(err, ErrTransitionRejected)
}

// IsFailure reports whether err is or wraps a *Failure
func IsFailure(err error) bool {
	var f *Failure
	return errors.As(err, &f)
}
