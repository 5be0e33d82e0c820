package fsm

import "fmt"

// State is the current tagged state: a tag wrapping the machine payload.
// Every tag wraps the same payload type.
type State[P any] struct {
	Tag     Tag
	Payload P
}

func (s State[P]) String() string {
	return fmt.Sprintf("%s(%+v)", s.Tag, s.Payload)
}

// StateDef declares a tag in a Definition
type StateDef[P any] struct {
	Tag  Tag
	Kind Kind

	OnEnter func(ctx *Context[P]) error
	OnExit  func(ctx *Context[P]) error

	// Condition is evaluated by Settle while this tag is current. It derives the
	// next tag purely from the payload; returning "" or the current tag keeps it.
	Condition func(ctx *Context[P]) Tag
}

// StateOption is a functional option for configuring a StateDef
type StateOption[P any] func(*StateDef[P])

// WithOnEnter sets the entry action for the state
func WithOnEnter[P any](fn func(*Context[P]) error) StateOption[P] {
	return func(s *StateDef[P]) {
		s.OnEnter = fn
	}
}

// WithOnExit sets the exit action for the state
func WithOnExit[P any](fn func(*Context[P]) error) StateOption[P] {
	return func(s *StateDef[P]) {
		s.OnExit = fn
	}
}

// WithCondition sets the settle condition for the state
func WithCondition[P any](fn func(*Context[P]) Tag) StateOption[P] {
	return func(s *StateDef[P]) {
		s.Condition = fn
	}
}
