package fsm

import "log/slog"

// machineConfig collects the options applied by Build
type machineConfig struct {
	logger          *slog.Logger
	runner          Runner
	order           Order
	failures        FailureMode
	ignoreUnmatched bool
	conditionSteps  int
	spawnOnSettle   bool
	onStateChange   func(from, to Tag)
}

func defaultMachineConfig() *machineConfig {
	return &machineConfig{
		logger:         Logger,
		order:          OrderLIFO,
		failures:       FailureReport,
		conditionSteps: 16,
	}
}

// MachineOption is a functional option for configuring a Machine
type MachineOption func(*machineConfig)

// WithLogger sets the logger for the machine
func WithLogger(logger *slog.Logger) MachineOption {
	return func(c *machineConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRunner sets the runner workers are handed to.
// Defaults to a fresh GoRunner per machine.
func WithRunner(r Runner) MachineOption {
	return func(c *machineConfig) {
		c.runner = r
	}
}

// WithPoolSize runs workers on a Pool bounded to size concurrent jobs
func WithPoolSize(size int) MachineOption {
	return func(c *machineConfig) {
		c.runner = NewPool(size)
	}
}

// WithOrder sets the order in which a batch of pending jobs is spawned. Only
// a machine built WithSpawnOnSettle accumulates more than one pending job.
func WithOrder(o Order) MachineOption {
	return func(c *machineConfig) {
		c.order = o
	}
}

// WithFailureMode sets how failed async jobs are handled
func WithFailureMode(mode FailureMode) MachineOption {
	return func(c *machineConfig) {
		c.failures = mode
	}
}

// WithSilentFailures keeps failed jobs off the completion channel: the error is
// logged by the worker and the machine stays in flight.
func WithSilentFailures() MachineOption {
	return WithFailureMode(FailureSilent)
}

// WithIgnoreUnmatched turns unmatched or guard-rejected events into no-ops
// instead of errors
func WithIgnoreUnmatched() MachineOption {
	return func(c *machineConfig) {
		c.ignoreUnmatched = true
	}
}

// WithConditionSteps bounds how many condition hops one Settle may take
func WithConditionSteps(n int) MachineOption {
	return func(c *machineConfig) {
		if n > 0 {
			c.conditionSteps = n
		}
	}
}

// WithStateChangeCallback sets a callback invoked after each tag change
func WithStateChangeCallback(fn func(from, to Tag)) MachineOption {
	return func(c *machineConfig) {
		c.onStateChange = fn
	}
}

// WithSpawnOnSettle keeps dispatched jobs pending until the next Settle,
// which spawns them as a batch in the configured Order. By default
// Transition spawns each job as soon as it is dispatched.
func WithSpawnOnSettle() MachineOption {
	return func(c *machineConfig) {
		c.spawnOnSettle = true
	}
}
