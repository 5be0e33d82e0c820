package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	fsm "github.com/silverspectro/async-finite-state-machine"
	"github.com/silverspectro/async-finite-state-machine/users"
)

type fetchCommand struct {
	URL     string        `long:"url" description:"users API base URL, overrides FSM_USERS_URL"`
	Timeout time.Duration `long:"timeout" default:"10s" description:"give up when the machine has not settled by then"`
	Args    struct {
		IDs []string `positional-arg-name:"id" description:"user ids to fetch; all users when omitted"`
	} `positional-args:"yes"`
}

func (c *fetchCommand) Execute([]string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	if c.URL != "" {
		cfg.UsersURL = c.URL
	}

	m, err := users.NewMachine(users.NewClient(cfg.UsersURL), cfg.MachineOptions(log)...)
	if err != nil {
		return err
	}
	defer m.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	events := []fsm.Event{users.FetchAll()}
	if len(c.Args.IDs) > 0 {
		events = events[:0]
		for _, id := range c.Args.IDs {
			events = append(events, users.FetchUser(id))
		}
	}

	// One fetch at a time so each upsert builds on the previous result
	var state fsm.State[users.Directory]
	for _, ev := range events {
		state, err = m.Transition(ctx, ev)
		if err != nil {
			return err
		}
		log.Debug("dispatched", "event", ev.ID, "state", state.Tag)

		state, err = fsm.Await(ctx, m, cfg.PollInterval, m.Settled)
		if err != nil {
			return err
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		State fsm.Tag         `json:"state"`
		Data  users.Directory `json:"data"`
	}{state.Tag, state.Payload})
}
