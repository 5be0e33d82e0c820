package fsm

import (
	"context"
	"fmt"
)

// Definition holds the FSM structure before building a Machine
type Definition[P any] struct {
	states      map[Tag]*StateDef[P]
	transitions []Transition[P]
	initial     Tag
	payload     P
	clone       func(P) P
}

// NewDefinition creates a new FSM definition builder
func NewDefinition[P any]() *Definition[P] {
	return &Definition[P]{
		states:      make(map[Tag]*StateDef[P]),
		transitions: make([]Transition[P], 0),
	}
}

func (d *Definition[P]) addState(tag Tag, kind Kind, opts []StateOption[P]) *Definition[P] {
	s := &StateDef[P]{
		Tag:  tag,
		Kind: kind,
	}
	for _, opt := range opts {
		opt(s)
	}
	d.states[tag] = s
	return d
}

// State adds a settled state to the definition
func (d *Definition[P]) State(tag Tag, opts ...StateOption[P]) *Definition[P] {
	return d.addState(tag, KindSettled, opts)
}

// InFlightState adds a state that marks dispatched, not yet integrated work
func (d *Definition[P]) InFlightState(tag Tag, opts ...StateOption[P]) *Definition[P] {
	return d.addState(tag, KindInFlight, opts)
}

// FinalState adds a terminal state with no outgoing transitions
func (d *Definition[P]) FinalState(tag Tag, opts ...StateOption[P]) *Definition[P] {
	return d.addState(tag, KindFinal, opts)
}

// Transition adds a synchronous transition rule
func (d *Definition[P]) Transition(from Tag, event EventID, to Tag, opts ...TransitionOption[P]) *Definition[P] {
	t := Transition[P]{
		From:  from,
		Event: event,
		To:    to,
	}
	for _, opt := range opts {
		opt(&t)
	}
	d.transitions = append(d.transitions, t)
	return d
}

// AnyStateTransition adds a transition that can fire from any state
func (d *Definition[P]) AnyStateTransition(event EventID, to Tag, opts ...TransitionOption[P]) *Definition[P] {
	return d.Transition(WildcardState, event, to, opts...)
}

// Async adds an async transition rule: the machine moves to inFlight when the
// event is accepted and to done once task's result is drained by Settle.
func (d *Definition[P]) Async(from Tag, event EventID, inFlight, done Tag, task TaskFunc[P], opts ...TransitionOption[P]) *Definition[P] {
	t := Transition[P]{
		From:     from,
		Event:    event,
		To:       done,
		InFlight: inFlight,
		Task:     task,
	}
	for _, opt := range opts {
		opt(&t)
	}
	d.transitions = append(d.transitions, t)
	return d
}

// Initial sets the initial state and payload
func (d *Definition[P]) Initial(tag Tag, payload P) *Definition[P] {
	d.initial = tag
	d.payload = payload
	return d
}

// Clone sets the function used to copy payloads. Payloads holding slices or
// maps need a deep copy so snapshots handed to workers stay independent.
func (d *Definition[P]) Clone(fn func(P) P) *Definition[P] {
	d.clone = fn
	return d
}

// Validate checks the definition for errors
func (d *Definition[P]) Validate() error {
	if d.initial == "" {
		return fmt.Errorf("no initial state defined")
	}

	initial, ok := d.states[d.initial]
	if !ok {
		return fmt.Errorf("initial state %q not defined", d.initial)
	}
	if initial.Kind == KindInFlight {
		return fmt.Errorf("initial state %q cannot be in flight", d.initial)
	}

	for _, t := range d.transitions {
		if t.Event == "" {
			return fmt.Errorf("transition from %q has no event", t.From)
		}
		if t.From != WildcardState {
			from, ok := d.states[t.From]
			if !ok {
				return fmt.Errorf("transition from undefined state %q", t.From)
			}
			if from.Kind == KindFinal {
				return fmt.Errorf("transition out of final state %q", t.From)
			}
		}
		if t.To != "" {
			if _, ok := d.states[t.To]; !ok {
				return fmt.Errorf("transition to undefined state %q", t.To)
			}
		}
		if t.InFlight != "" || t.Task != nil {
			if err := d.validateAsync(t); err != nil {
				return err
			}
		}
	}

	return nil
}

func (d *Definition[P]) validateAsync(t Transition[P]) error {
	if t.Task == nil {
		return fmt.Errorf("async transition for event %q has no task", t.Event)
	}
	inFlight, ok := d.states[t.InFlight]
	if !ok {
		return fmt.Errorf("async transition for event %q uses undefined in-flight state %q", t.Event, t.InFlight)
	}
	if inFlight.Kind != KindInFlight {
		return fmt.Errorf("async transition for event %q: state %q is not an in-flight state", t.Event, t.InFlight)
	}
	if t.To == "" {
		return fmt.Errorf("async transition for event %q has no done state", t.Event)
	}
	if d.states[t.To].Kind == KindInFlight {
		return fmt.Errorf("async transition for event %q: done state %q is in flight", t.Event, t.To)
	}
	return nil
}

// Build creates a Machine from the definition and runs the initial state's
// entry action. A failing entry action fails the build.
func (d *Definition[P]) Build(opts ...MachineOption) (*Machine[P], error) {
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	cfg := defaultMachineConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.runner == nil {
		cfg.runner = NewGoRunner()
	}

	clone := d.clone
	if clone == nil {
		clone = func(p P) P { return p }
	}

	m := &Machine[P]{
		definition:          d,
		state:               State[P]{Tag: d.initial, Payload: clone(d.payload)},
		lastSettled:         d.initial,
		clone:               clone,
		logger:              cfg.logger,
		runner:              cfg.runner,
		ignoreUnmatched:     cfg.ignoreUnmatched,
		conditionSteps:      cfg.conditionSteps,
		stateChangeCallback: cfg.onStateChange,
		spawnOnSettle:       cfg.spawnOnSettle,
		dispatch:            newDispatcher[P](cfg),
	}

	if err := m.enterInitial(context.Background()); err != nil {
		return nil, err
	}

	return m, nil
}

func (d *Definition[P]) kindOf(tag Tag) Kind {
	if s, ok := d.states[tag]; ok {
		return s.Kind
	}
	return KindSettled
}
