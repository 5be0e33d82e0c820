package fsm

import "log/slog"

// Tag is the name of a state tag
type Tag string

// EventID is a unique identifier for an event type
type EventID string

// Kind classifies how a tag behaves
type Kind int

const (
	// KindSettled marks an authoritative state with no work pending
	KindSettled Kind = iota
	// KindInFlight marks a state whose async work was dispatched but not yet integrated
	KindInFlight
	// KindFinal is a settled state with no transitions out
	KindFinal
)

func (k Kind) String() string {
	switch k {
	case KindSettled:
		return "settled"
	case KindInFlight:
		return "in_flight"
	case KindFinal:
		return "final"
	default:
		return "unknown"
	}
}

// Order defines in which order pending jobs are handed to workers
type Order int

const (
	// OrderLIFO spawns the most recently dispatched job first
	OrderLIFO Order = iota
	// OrderFIFO spawns jobs in dispatch order
	OrderFIFO
)

// FailureMode defines what happens when an async job fails
type FailureMode int

const (
	// FailureReport sends the failure over the completion channel; Settle reverts
	// the in-flight tag and returns the failure.
	FailureReport FailureMode = iota
	// FailureSilent only logs the failure inside the worker. The machine stays in
	// flight and Settle never sees the error.
	FailureSilent
)

// Logger is the default logger used when none is provided
var Logger = slog.Default()
