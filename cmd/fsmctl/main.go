// Command fsmctl drives the example machines: it serves the users fixture,
// fetches users through the async machine and feeds events to a turnstile.
package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/jessevdk/go-flags"

	fsm "github.com/silverspectro/async-finite-state-machine"
	"github.com/silverspectro/async-finite-state-machine/internal/config"
)

type options struct {
	EnvFiles []string `long:"env-file" description:"dotenv file to load before reading FSM_* variables (repeatable)"`

	Serve     serveCommand     `command:"serve" description:"serve the users fixture over HTTP"`
	Fetch     fetchCommand     `command:"fetch" description:"fetch users through the async machine and print the settled state"`
	Turnstile turnstileCommand `command:"turnstile" description:"feed events to a turnstile and print each resulting state"`
}

var opts options

// setup loads the configuration and installs the configured logger as the
// package default for fsm machines
func setup() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(opts.EnvFiles...)
	if err != nil {
		return config.Config{}, nil, err
	}
	log := cfg.Logger()
	fsm.Logger = log
	return cfg, log, nil
}

func main() {
	// flags.Default prints parse and command errors itself
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
