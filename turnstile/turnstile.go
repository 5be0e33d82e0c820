// Package turnstile is a coin-operated turnstile driven by a synchronous
// machine. It unlocks once the inserted coins sum to a multiple of ten and the
// button is pressed.
package turnstile

import (
	"fmt"
	"math"
	"slices"

	fsm "github.com/silverspectro/async-finite-state-machine"
)

const (
	Locked   fsm.Tag = "locked"
	Unlocked fsm.Tag = "unlocked"

	EventInsertCoin  fsm.EventID = "insert_coin"
	EventPressButton fsm.EventID = "press_button"
	EventOpen        fsm.EventID = "open"
)

// Coins is the turnstile payload, shared by both tags
type Coins struct {
	Coins         []float64
	ButtonPressed bool
}

// Sum returns the total value inserted so far
func (c Coins) Sum() float64 {
	var sum float64
	for _, v := range c.Coins {
		sum += v
	}
	return sum
}

// Clone returns a copy that shares no memory with c
func (c Coins) Clone() Coins {
	return Coins{Coins: slices.Clone(c.Coins), ButtonPressed: c.ButtonPressed}
}

// InsertCoin builds an insert_coin event
func InsertCoin(value float64) fsm.Event { return fsm.NewEvent(EventInsertCoin, value) }

// PressButton builds a press_button event
func PressButton(pressed bool) fsm.Event { return fsm.NewEvent(EventPressButton, pressed) }

// Open builds an open event
func Open() fsm.Event { return fsm.NewEvent(EventOpen) }

// Definition returns the turnstile rules starting locked with no coins
func Definition() *fsm.Definition[Coins] {
	return fsm.NewDefinition[Coins]().
		State(Locked, fsm.WithCondition(unlockWhenPaid)).
		State(Unlocked).
		AnyStateTransition(EventInsertCoin, "", fsm.WithAction(insertCoin)).
		AnyStateTransition(EventPressButton, "", fsm.WithAction(pressButton)).
		Transition(Unlocked, EventOpen, Locked, fsm.WithAction(releaseButton)).
		Transition(Locked, EventOpen, "").
		Initial(Locked, Coins{}).
		Clone(Coins.Clone)
}

// New builds a locked turnstile
func New(opts ...fsm.MachineOption) (*fsm.Machine[Coins], error) {
	return Definition().Build(opts...)
}

func unlockWhenPaid(c *fsm.Context[Coins]) fsm.Tag {
	if math.Mod(c.Payload.Sum(), 10) == 0 && c.Payload.ButtonPressed {
		return Unlocked
	}
	return ""
}

func insertCoin(c *fsm.Context[Coins]) error {
	value, ok := c.Event.Payload.(float64)
	if !ok {
		return fmt.Errorf("insert_coin expects a float64 value, got %T", c.Event.Payload)
	}
	c.Payload.Coins = append(c.Payload.Coins, value)
	return nil
}

func pressButton(c *fsm.Context[Coins]) error {
	pressed, ok := c.Event.Payload.(bool)
	if !ok {
		return fmt.Errorf("press_button expects a bool value, got %T", c.Event.Payload)
	}
	c.Payload.ButtonPressed = pressed
	return nil
}

func releaseButton(c *fsm.Context[Coins]) error {
	c.Payload.ButtonPressed = false
	return nil
}
