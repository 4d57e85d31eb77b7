// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds every PLAYLEDGER_* setting. Zero values are never used
// directly; Load applies the envDefault tags.
type Config struct {
	StoreDriver string `env:"PLAYLEDGER_STORE" envDefault:"sqlite"`
	DBPath      string `env:"PLAYLEDGER_DB" envDefault:"./playledger.db"`
	PostgresDSN string `env:"PLAYLEDGER_POSTGRES_DSN"`

	// RedisAddr enables the Redis leaderboard mirror when set.
	RedisAddr   string `env:"PLAYLEDGER_REDIS_ADDR"`
	RedisPrefix string `env:"PLAYLEDGER_REDIS_PREFIX" envDefault:"playledger"`

	RetryMaxTries        uint          `env:"PLAYLEDGER_RETRY_MAX_TRIES" envDefault:"4"`
	RetryInitialInterval time.Duration `env:"PLAYLEDGER_RETRY_INITIAL_INTERVAL" envDefault:"100ms"`
	RetryMaxInterval     time.Duration `env:"PLAYLEDGER_RETRY_MAX_INTERVAL" envDefault:"2s"`
	CallTimeout          time.Duration `env:"PLAYLEDGER_CALL_TIMEOUT" envDefault:"5s"`
	CheckpointInterval   time.Duration `env:"PLAYLEDGER_CHECKPOINT_INTERVAL" envDefault:"30s"`

	LineReward int    `env:"PLAYLEDGER_LINE_REWARD" envDefault:"10"`
	LogLevel   string `env:"PLAYLEDGER_LOG_LEVEL" envDefault:"info"`

	OTelEndpoint string `env:"PLAYLEDGER_OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"PLAYLEDGER_OTEL_ENABLED" envDefault:"true"`
}

// Load reads dotenvPath into the environment when the file exists, then
// parses the environment. Variables already set take precedence over the
// file. An empty dotenvPath skips the file.
func Load(dotenvPath string) (Config, error) {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", dotenvPath, err)
		}
	}

	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.DBPath) == "" {
			return errors.New("PLAYLEDGER_DB must not be empty")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return errors.New("PLAYLEDGER_POSTGRES_DSN is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.RetryMaxTries == 0 {
		return errors.New("PLAYLEDGER_RETRY_MAX_TRIES must be at least 1")
	}
	if c.LineReward < 0 {
		return errors.New("PLAYLEDGER_LINE_REWARD must not be negative")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return 0, fmt.Errorf("log level %q: %w", name, err)
	}
	return l, nil
}
