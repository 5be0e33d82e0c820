// Package config loads fsmctl settings from the environment. A .env file in
// the working directory, or the files passed to Load, is read first.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	fsm "github.com/silverspectro/async-finite-state-machine"
	"github.com/silverspectro/async-finite-state-machine/internal/logger"
)

var ErrParsingConfig = errors.New("failed to parse environment variables into config")

type Config struct {
	Addr           string        `env:"FSM_ADDR" envDefault:"127.0.0.1:3333"`
	UsersURL       string        `env:"FSM_USERS_URL" envDefault:"http://localhost:3333"`
	Fixture        string        `env:"FSM_FIXTURE" envDefault:"users/testdata/db.json"`
	PollInterval   time.Duration `env:"FSM_POLL_INTERVAL" envDefault:"10ms"`
	Workers        int           `env:"FSM_WORKERS" envDefault:"0"`
	Order          string        `env:"FSM_ORDER" envDefault:"lifo"`
	SilentFailures bool          `env:"FSM_SILENT_FAILURES" envDefault:"false"`
	LogLevel       string        `env:"FSM_LOG_LEVEL" envDefault:"info"`
	LogFormat      string        `env:"FSM_LOG_FORMAT" envDefault:"text"`
}

// Load reads the given dotenv files (or ./.env when it exists) and parses
// the environment into a Config. Variables already set win over file values.
func Load(files ...string) (Config, error) {
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return Config{}, fmt.Errorf("load env files: %w", err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values env tags cannot express
func (c Config) Validate() error {
	if _, err := c.FSMOrder(); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("FSM_WORKERS must not be negative, got %d", c.Workers)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("FSM_POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := logger.ParseFormat(c.LogFormat); err != nil {
		return err
	}
	return nil
}

// FSMOrder maps FSM_ORDER ("lifo" or "fifo") to a spawn order
func (c Config) FSMOrder() (fsm.Order, error) {
	switch strings.ToLower(c.Order) {
	case "", "lifo":
		return fsm.OrderLIFO, nil
	case "fifo":
		return fsm.OrderFIFO, nil
	default:
		return fsm.OrderLIFO, fmt.Errorf("FSM_ORDER must be lifo or fifo, got %q", c.Order)
	}
}

// Logger builds the logger described by FSM_LOG_LEVEL and FSM_LOG_FORMAT
func (c Config) Logger() *slog.Logger {
	level, _ := logger.ParseLevel(c.LogLevel)
	format, _ := logger.ParseFormat(c.LogFormat)
	return logger.New(logger.WithLevel(level), logger.WithFormat(format))
}

// MachineOptions turns the worker and failure settings into machine options
func (c Config) MachineOptions(l *slog.Logger) []fsm.MachineOption {
	order, _ := c.FSMOrder()
	opts := []fsm.MachineOption{
		fsm.WithLogger(l),
		fsm.WithOrder(order),
	}
	if c.Workers > 0 {
		opts = append(opts, fsm.WithPoolSize(c.Workers))
	}
	if c.SilentFailures {
		opts = append(opts, fsm.WithSilentFailures())
	}
	return opts
}
