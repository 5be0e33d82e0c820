package fsm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Machine is the runtime FSM instance. It implements StateMachine for both
// synchronous rules and async rules built with Definition.Async.
type Machine[P any] struct {
	definition  *Definition[P]
	state       State[P]
	lastSettled Tag // restored when a reported failure ends the in-flight cycle
	clone       func(P) P
	mu          sync.RWMutex

	logger              *slog.Logger
	runner              Runner
	ignoreUnmatched     bool
	conditionSteps      int
	spawnOnSettle       bool
	stateChangeCallback func(from, to Tag)

	dispatch *dispatcher[P]
}

// OnStateChange sets a callback invoked after each tag change.
// Call it before the machine is shared between goroutines.
func (m *Machine[P]) OnStateChange(fn func(from, to Tag)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateChangeCallback = fn
}

// Transition applies event to the current state.
//
// Synchronous rules run their action, move to the target tag and settle.
// Async rules run their action, switch to the in-flight tag and hand the job
// to the runner, then return the in-flight state at once. The result is
// drained by a later Settle.
func (m *Machine[P]) Transition(ctx context.Context, event Event) (State[P], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Debug("processing event", "event", event.ID, "state", m.state.Tag)

	if m.definition.kindOf(m.state.Tag) == KindFinal {
		return m.snapshot(), fmt.Errorf("%w: %q", ErrFinalState, m.state.Tag)
	}

	transitions := m.findTransitions(event.ID)
	if len(transitions) == 0 {
		m.logger.Debug("no transition found", "event", event.ID, "state", m.state.Tag)
		return m.unmatched(ctx, event, false)
	}

	// Try each transition until one's guard passes
	c := m.makeContext(ctx, &event)
	for _, t := range transitions {
		if t.Guard != nil && !t.Guard(c) {
			m.logger.Debug("guard rejected transition", "event", event.ID, "from", t.From, "to", t.To)
			continue
		}
		if t.IsAsync() {
			return m.dispatchTransition(ctx, t, event)
		}
		return m.executeTransition(ctx, t, event)
	}

	m.logger.Debug("all guards rejected", "event", event.ID, "state", m.state.Tag)
	return m.unmatched(ctx, event, true)
}

// CanTransition reports whether event would be accepted in the current state
func (m *Machine[P]) CanTransition(ctx context.Context, event Event) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.definition.kindOf(m.state.Tag) == KindFinal {
		return false
	}
	c := m.makeContext(ctx, &event)
	for _, t := range m.findTransitions(event.ID) {
		if t.Guard == nil || t.Guard(c) {
			return true
		}
	}
	return false
}

// Settle spawns every pending job, integrates at most one completed result
// without blocking and re-derives the tag from the payload through the
// current state's condition.
//
// Without new completions Settle is idempotent. A failed job (in the default
// FailureReport mode) is returned as a *Failure after the machine went back
// to the last settled tag.
func (m *Machine[P]) Settle(ctx context.Context) (State[P], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settle(ctx)
}

func (m *Machine[P]) settle(ctx context.Context) (State[P], error) {
	if ctx == nil {
		ctx = context.Background()
	}
	m.dispatch.spawnAll(ctx)

	var failure error
	if c, ok := m.dispatch.tryDrain(); ok {
		if c.err != nil {
			m.logger.Debug("draining failed job", "job_id", c.id, "event", c.event)
			failure = WrapFailure(c.err, "async job for event %q failed", c.event)
			// Other jobs still running keep the machine in flight
			if m.dispatch.outstanding == 0 {
				if err := m.changeTag(ctx, m.lastSettled, nil); err != nil {
					return m.snapshot(), err
				}
			}
		} else {
			m.logger.Debug("draining completed job", "job_id", c.id, "event", c.event, "state", c.state.Tag)
			prev := m.state.Payload
			m.state.Payload = c.state.Payload
			if err := m.changeTag(ctx, c.state.Tag, nil); err != nil {
				// Exit refused: the result never landed
				if m.state.Tag != c.state.Tag {
					m.state.Payload = prev
				}
				return m.snapshot(), err
			}
		}
	}

	if err := m.applyConditions(ctx); err != nil {
		return m.snapshot(), err
	}

	return m.snapshot(), failure
}

// State returns the current tagged state with a copy of the payload
func (m *Machine[P]) State() State[P] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot()
}

// CurrentState returns the current tag
func (m *Machine[P]) CurrentState() Tag {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Tag
}

// Payload returns a copy of the payload, whichever tag wraps it
func (m *Machine[P]) Payload() P {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clone(m.state.Payload)
}

// UpdatePayload mutates the payload in place, whichever tag wraps it.
// It does not settle.
func (m *Machine[P]) UpdatePayload(fn func(p *P)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.state.Payload)
}

// InFlight reports whether the current tag is an in-flight tag
func (m *Machine[P]) InFlight() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.definition.kindOf(m.state.Tag) == KindInFlight
}

// Settled reports whether s carries a tag that is not in flight. It has the
// shape Await expects.
func (m *Machine[P]) Settled(s State[P]) bool {
	return m.definition.kindOf(s.Tag) != KindInFlight
}

// Pending returns the number of dispatched jobs not yet handed to a worker
func (m *Machine[P]) Pending() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.dispatch.pending)
}

// Outstanding returns the number of spawned jobs whose result was not drained.
// Jobs that failed silently are never drained and stay counted.
func (m *Machine[P]) Outstanding() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dispatch.outstanding
}

// Wait blocks until every spawned worker returned, if the runner supports it.
// It does not cancel anything.
func (m *Machine[P]) Wait() error {
	if w, ok := m.runner.(Waiter); ok {
		return w.Wait()
	}
	return nil
}

// Stop closes the completion channel and waits for running workers. Results
// arriving afterwards are dropped, pending jobs are discarded and later async
// transitions fail with ErrStopped.
func (m *Machine[P]) Stop() error {
	m.mu.Lock()
	m.dispatch.stop()
	m.mu.Unlock()
	return m.Wait()
}

// findTransitions returns matching rules: current tag first, then wildcards
func (m *Machine[P]) findTransitions(event EventID) []*Transition[P] {
	var matches []*Transition[P]

	for i := range m.definition.transitions {
		t := &m.definition.transitions[i]
		if t.Event == event && t.From == m.state.Tag {
			matches = append(matches, t)
		}
	}

	for i := range m.definition.transitions {
		t := &m.definition.transitions[i]
		if t.Event == event && t.From == WildcardState {
			matches = append(matches, t)
		}
	}

	return matches
}

func (m *Machine[P]) unmatched(ctx context.Context, event Event, rejected bool) (State[P], error) {
	if m.ignoreUnmatched {
		return m.settle(ctx)
	}
	return m.snapshot(), &TransitionError{State: m.state.Tag, Event: event.ID, Rejected: rejected}
}

// executeTransition runs a synchronous rule and settles
func (m *Machine[P]) executeTransition(ctx context.Context, t *Transition[P], event Event) (State[P], error) {
	from := m.state.Tag
	to := t.To
	if to == "" {
		to = from
	}

	m.logger.Debug("executing transition", "from", from, "to", to, "event", event.ID)

	if t.Action != nil {
		c := m.makeContext(ctx, &event)
		c.FromState = from
		c.ToState = to
		if err := t.Action(c); err != nil {
			return m.snapshot(), WrapFailure(err, "transition action for event %q failed", event.ID)
		}
	}

	if err := m.changeTag(ctx, to, &event); err != nil {
		return m.snapshot(), err
	}

	return m.settle(ctx)
}

// dispatchTransition runs the rule's action, takes the payload snapshot, moves
// to the in-flight tag and spawns the job. It never drains.
func (m *Machine[P]) dispatchTransition(ctx context.Context, t *Transition[P], event Event) (State[P], error) {
	if m.dispatch.stopped {
		return m.snapshot(), fmt.Errorf("%w: event %q", ErrStopped, event.ID)
	}

	if t.Action != nil {
		c := m.makeContext(ctx, &event)
		c.FromState = m.state.Tag
		c.ToState = t.InFlight
		if err := t.Action(c); err != nil {
			return m.snapshot(), WrapFailure(err, "transition action for event %q failed", event.ID)
		}
	}

	snapshot := m.clone(m.state.Payload)
	id := uuid.New()
	from := m.state.Tag
	done := t.To
	task := t.Task
	logger := m.logger.With("job_id", id)

	j := job[P]{
		id:    id,
		event: event.ID,
		run: func(ctx context.Context) (State[P], error) {
			ev := event
			c := &Context[P]{
				Context:   ctx,
				Event:     &ev,
				FromState: from,
				ToState:   done,
				Payload:   &snapshot,
				JobID:     id,
				Logger:    logger,
			}
			next, err := task(c)
			if err != nil {
				return State[P]{}, err
			}
			return State[P]{Tag: done, Payload: next}, nil
		},
	}

	m.logger.Debug("dispatching async transition", "job_id", id, "event", event.ID, "from", from, "in_flight", t.InFlight)

	if err := m.changeTag(ctx, t.InFlight, &event); err != nil {
		return m.snapshot(), err
	}
	m.dispatch.enqueue(j)
	if !m.spawnOnSettle {
		m.dispatch.spawnAll(ctx)
	}

	return m.snapshot(), nil
}

// applyConditions follows the current state's condition until the tag is stable
func (m *Machine[P]) applyConditions(ctx context.Context) error {
	for range m.conditionSteps {
		def := m.definition.states[m.state.Tag]
		if def == nil || def.Condition == nil {
			return nil
		}
		next := def.Condition(m.makeContext(ctx, nil))
		if next == "" || next == m.state.Tag {
			return nil
		}
		if _, ok := m.definition.states[next]; !ok {
			return NewFailure("condition of state %q returned undefined state %q", m.state.Tag, next)
		}
		if err := m.changeTag(ctx, next, nil); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: still moving after %d steps at %q", ErrConditionLoop, m.conditionSteps, m.state.Tag)
}

// changeTag exits the current state and enters to, running hooks. Same-tag
// changes are no-ops.
func (m *Machine[P]) changeTag(ctx context.Context, to Tag, event *Event) error {
	from := m.state.Tag
	if from == to {
		return nil
	}

	if def := m.definition.states[from]; def != nil && def.OnExit != nil {
		c := m.makeContext(ctx, event)
		c.FromState = from
		c.ToState = to
		if err := def.OnExit(c); err != nil {
			return WrapFailure(err, "exit action failed for %q", from)
		}
	}

	m.logger.Debug("entering state", "state", to, "from", from)
	m.state.Tag = to
	if m.definition.kindOf(to) != KindInFlight {
		m.lastSettled = to
	}

	if def := m.definition.states[to]; def != nil && def.OnEnter != nil {
		c := m.makeContext(ctx, event)
		c.FromState = from
		c.ToState = to
		if err := def.OnEnter(c); err != nil {
			return WrapFailure(err, "entry action failed for %q", to)
		}
	}

	if m.stateChangeCallback != nil {
		m.stateChangeCallback(from, to)
	}

	return nil
}

// enterInitial runs the initial state's entry action
func (m *Machine[P]) enterInitial(ctx context.Context) error {
	def := m.definition.states[m.state.Tag]
	if def == nil || def.OnEnter == nil {
		return nil
	}
	c := m.makeContext(ctx, nil)
	c.ToState = m.state.Tag
	if err := def.OnEnter(c); err != nil {
		return WrapFailure(err, "entry action failed for initial state %q", m.state.Tag)
	}
	return nil
}

func (m *Machine[P]) snapshot() State[P] {
	return State[P]{Tag: m.state.Tag, Payload: m.clone(m.state.Payload)}
}

// makeContext creates a context for callbacks running under the machine lock
func (m *Machine[P]) makeContext(ctx context.Context, event *Event) *Context[P] {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Context[P]{
		Context: ctx,
		Machine: m,
		Event:   event,
		Payload: &m.state.Payload,
		Logger:  m.logger,
	}
}
