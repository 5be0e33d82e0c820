package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	fsm "github.com/silverspectro/async-finite-state-machine"
	"github.com/silverspectro/async-finite-state-machine/turnstile"
)

type turnstileCommand struct {
	Args struct {
		Events []string `positional-arg-name:"event" description:"coin:<value>, press:<true|false> or open"`
	} `positional-args:"yes" required:"yes"`
}

func (c *turnstileCommand) Execute([]string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	events := make([]fsm.Event, 0, len(c.Args.Events))
	for _, arg := range c.Args.Events {
		ev, err := parseTurnstileEvent(arg)
		if err != nil {
			return err
		}
		events = append(events, ev)
	}

	m, err := turnstile.New(cfg.MachineOptions(log)...)
	if err != nil {
		return err
	}

	ctx := context.Background()
	fmt.Println(m.State())
	for i, ev := range events {
		s, err := m.Transition(ctx, ev)
		if err != nil {
			return fmt.Errorf("event %d (%s): %w", i, c.Args.Events[i], err)
		}
		fmt.Printf("%-12s %s\n", c.Args.Events[i], s)
	}
	return nil
}

func parseTurnstileEvent(arg string) (fsm.Event, error) {
	name, value, _ := strings.Cut(arg, ":")
	switch name {
	case "coin":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fsm.Event{}, fmt.Errorf("coin value %q: %w", value, err)
		}
		return turnstile.InsertCoin(v), nil
	case "press":
		pressed := true
		if value != "" {
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fsm.Event{}, fmt.Errorf("press value %q: %w", value, err)
			}
			pressed = b
		}
		return turnstile.PressButton(pressed), nil
	case "open":
		return turnstile.Open(), nil
	default:
		return fsm.Event{}, fmt.Errorf("unknown turnstile event %q", arg)
	}
}
