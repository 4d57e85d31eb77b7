package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/playledger/internal/config"
	"github.com/roach88/playledger/internal/errs"
	"github.com/roach88/playledger/internal/leaderboard"
	"github.com/roach88/playledger/internal/record"
	"github.com/roach88/playledger/internal/store"
	"github.com/roach88/playledger/internal/store/postgres"
	"github.com/roach88/playledger/internal/syncer"
	"github.com/roach88/playledger/internal/telemetry"
)

const serviceName = "playledger"

// ledgerStore is what the CLI needs from either store driver.
type ledgerStore interface {
	syncer.Store
	leaderboard.Source
	DuplicateKeys(ctx context.Context) ([]record.Key, error)
	Close() error
}

// backend is the wired coordinator for one command invocation.
type backend struct {
	cfg    config.Config
	log    *slog.Logger
	store  ledgerStore
	ranker leaderboard.Ranker
	coord  *syncer.Coordinator

	closers []func(context.Context) error
}

// openBackend loads configuration, installs logging and tracing, opens the
// configured store and builds the coordinator.
func openBackend(ctx context.Context, opts *RootOptions, stderr io.Writer) (*backend, error) {
	cfg, err := config.Load(opts.EnvFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if opts.Database != "" {
		cfg.StoreDriver = config.DriverSQLite
		cfg.DBPath = opts.Database
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	if opts.Verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	b := &backend{cfg: cfg, log: log}

	shutdown, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		log.Warn("tracing disabled", "error", err)
	}
	b.closers = append(b.closers, shutdown)

	if err := b.openStore(ctx); err != nil {
		b.Close(ctx)
		return nil, err
	}

	b.ranker = leaderboard.NewSQLRanker(b.store)
	if cfg.RedisAddr != "" {
		rdb, err := leaderboard.DialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			b.Close(ctx)
			return nil, WrapExitError(ExitCommandError, "failed to connect to redis", err)
		}
		b.closers = append(b.closers, func(context.Context) error { return rdb.Close() })
		b.ranker = leaderboard.NewRedisRanker(rdb, cfg.RedisPrefix)
	}

	b.coord = syncer.New(b.store,
		syncer.WithLogger(log),
		syncer.WithPublisher(b.ranker),
		syncer.WithCallTimeout(cfg.CallTimeout),
		syncer.WithRetryPolicy(syncer.RetryPolicy{
			MaxTries:        cfg.RetryMaxTries,
			InitialInterval: cfg.RetryInitialInterval,
			MaxInterval:     cfg.RetryMaxInterval,
		}),
	)
	return b, nil
}

func (b *backend) openStore(ctx context.Context) error {
	switch b.cfg.StoreDriver {
	case config.DriverPostgres:
		b.log.Debug("opening postgres store")
		s, err := postgres.Open(ctx, b.cfg.PostgresDSN)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open postgres store", err)
		}
		b.store = s
	default:
		b.log.Debug("opening sqlite store", "path", b.cfg.DBPath)
		s, err := store.Open(b.cfg.DBPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		b.store = s
	}
	b.closers = append(b.closers, func(context.Context) error { return b.store.Close() })
	return nil
}

// Close releases everything in reverse order of acquisition.
func (b *backend) Close(ctx context.Context) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](ctx); err != nil {
			b.log.Error("close failed", "error", err)
		}
	}
	b.closers = nil
}

// domainExit maps a coordinator error to an exit error.
func domainExit(message string, err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	switch {
	case errs.IsValidation(err):
		return WrapExitError(ExitCommandError, message, err)
	case errs.IsTransient(err):
		return WrapExitError(ExitStoreError, message, err)
	default:
		return WrapExitError(ExitFailure, message, err)
	}
}

// keyFlags holds the --player and --module flags shared by most commands.
type keyFlags struct {
	Player string
	Module string
}

func (k keyFlags) validate() error {
	if k.Player == "" {
		return NewExitError(ExitCommandError, "--player is required")
	}
	if k.Module == "" {
		return NewExitError(ExitCommandError, "--module is required")
	}
	return nil
}

func formatter(opts *RootOptions, w, errW io.Writer) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: w, ErrWriter: errW, Verbose: opts.Verbose}
}

func describeRecord(rec *record.CanonicalRecord) string {
	if rec == nil {
		return "no record"
	}
	state := "in progress"
	if rec.Completed {
		state = "completed"
	}
	return fmt.Sprintf("%s/%s %s: score %d in %ds, history %v / %v",
		rec.PlayerID, rec.ModuleID, state, rec.CurrentScore, rec.CurrentTime, rec.ScoreHistory, rec.TimeHistory)
}
