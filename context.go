package fsm

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Context is passed to guards, actions, conditions, state hooks and async tasks.
//
// Inside an async task Machine is nil and Payload points at a private snapshot
// taken at dispatch time; workers never touch the machine.
type Context[P any] struct {
	context.Context

	Machine   *Machine[P]
	Event     *Event // nil during settle
	FromState Tag
	ToState   Tag
	Payload   *P
	JobID     uuid.UUID // zero outside async tasks
	Logger    *slog.Logger
}

// CurrentState returns the machine's current tag, or "" inside a task
func (c *Context[P]) CurrentState() Tag {
	if c.Machine == nil {
		return ""
	}
	return c.Machine.state.Tag
}

// InTask reports whether the context belongs to an async worker
func (c *Context[P]) InTask() bool {
	return c.JobID != uuid.Nil
}
