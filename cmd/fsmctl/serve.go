package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/silverspectro/async-finite-state-machine/users"
)

type serveCommand struct {
	Fixture string `long:"fixture" description:"fixture file, overrides FSM_FIXTURE"`
	Addr    string `long:"addr" description:"listen address, overrides FSM_ADDR"`
}

func (c *serveCommand) Execute([]string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	if c.Fixture != "" {
		cfg.Fixture = c.Fixture
	}
	if c.Addr != "" {
		cfg.Addr = c.Addr
	}

	dir, err := users.LoadFixtureFile(cfg.Fixture)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           users.NewRouter(dir, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("serving users fixture", "addr", cfg.Addr, "fixture", cfg.Fixture, "users", len(dir.Users))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
