package syncer

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/playledger/internal/errs"
	"github.com/roach88/playledger/internal/record"
)

const tracerName = "github.com/roach88/playledger/internal/syncer"

// Coordinator orchestrates reads and writes of canonical records.
//
// Thread-safety: a Coordinator is safe for concurrent use. Concurrent callers
// for the same key are reconciled through the store, not through locks.
type Coordinator struct {
	store       Store
	log         *slog.Logger
	clock       Clock
	policy      RetryPolicy
	callTimeout time.Duration
	publisher   Publisher
	tracer      trace.Tracer
	inflight    singleflight.Group
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// WithClock sets the clock used to stamp repair writes.
func WithClock(clk Clock) Option {
	return func(c *Coordinator) { c.clock = clk }
}

// WithRetryPolicy bounds retries of store calls.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Coordinator) { c.policy = p }
}

// WithCallTimeout bounds every individual store call.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// WithPublisher sends finalized records to p. Publish failures are logged
// and never fail the finalize.
func WithPublisher(p Publisher) Option {
	return func(c *Coordinator) { c.publisher = p }
}

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Coordinator) { c.tracer = tp.Tracer(tracerName) }
}

// New returns a Coordinator over store.
func New(store Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       store,
		log:         slog.Default(),
		clock:       systemClock{},
		policy:      DefaultRetryPolicy(),
		callTimeout: DefaultCallTimeout,
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadCanonical returns the canonical record for the key, or nil when none
// exists. More than one row, or any invalid row, triggers a cleanup pass
// first.
func (c *Coordinator) LoadCanonical(ctx context.Context, playerID, moduleID string) (rec *record.CanonicalRecord, err error) {
	ctx, span := c.startSpan(ctx, "syncer.LoadCanonical", playerID, moduleID)
	defer func() { endSpan(span, err) }()

	if err := validateKey("syncer.load", playerID, moduleID); err != nil {
		return nil, err
	}
	return c.load(ctx, playerID, moduleID)
}

func (c *Coordinator) load(ctx context.Context, playerID, moduleID string) (*record.CanonicalRecord, error) {
	rows, err := c.selectRows(ctx, playerID, moduleID)
	if err != nil {
		return nil, err
	}

	dirty := len(rows) > 1
	for _, r := range rows {
		if record.ClassifyRow(r, playerID, moduleID) != nil {
			dirty = true
			break
		}
	}
	if dirty {
		report, err := c.cleanupRows(ctx, playerID, moduleID, rows)
		if err != nil {
			return nil, err
		}
		return report.Survivor, nil
	}
	if len(rows) == 0 {
		return nil, nil
	}
	rec := rows[0].ToCanonical()
	return &rec, nil
}

// Reset deletes every row for the key. This is the explicit player-data
// reset; it returns the number of rows removed.
func (c *Coordinator) Reset(ctx context.Context, playerID, moduleID string) (n int, err error) {
	ctx, span := c.startSpan(ctx, "syncer.Reset", playerID, moduleID)
	defer func() { endSpan(span, err) }()

	if err := validateKey("syncer.reset", playerID, moduleID); err != nil {
		return 0, err
	}
	rows, err := c.selectRows(ctx, playerID, moduleID)
	if err != nil {
		return 0, err
	}
	if len(rows) > 0 {
		if err := c.deleteRows(ctx, rowIDs(rows)); err != nil {
			return 0, err
		}
	}
	if c.publisher != nil {
		if err := c.publisher.Remove(ctx, playerID, moduleID); err != nil {
			c.log.Warn("leaderboard remove failed",
				slog.String("player_id", playerID),
				slog.String("module_id", moduleID),
				slog.Any("error", err))
		}
	}
	c.log.Info("progress reset",
		slog.String("player_id", playerID),
		slog.String("module_id", moduleID),
		slog.Int("rows", len(rows)))
	return len(rows), nil
}

func (c *Coordinator) selectRows(ctx context.Context, playerID, moduleID string) ([]record.Row, error) {
	return retryCall(ctx, c, "store.select", func(ctx context.Context) ([]record.Row, error) {
		return c.store.Select(ctx, playerID, moduleID)
	})
}

func (c *Coordinator) insertRow(ctx context.Context, row record.Row) (string, error) {
	return retryCall(ctx, c, "store.insert", func(ctx context.Context) (string, error) {
		return c.store.InsertRow(ctx, row)
	})
}

func (c *Coordinator) updateRow(ctx context.Context, id string, f record.RowFields) error {
	return retryDo(ctx, c, "store.update", func(ctx context.Context) error {
		return c.store.UpdateRow(ctx, id, f)
	})
}

func (c *Coordinator) deleteRows(ctx context.Context, ids []string) error {
	return retryDo(ctx, c, "store.delete", func(ctx context.Context) error {
		return c.store.DeleteRows(ctx, ids)
	})
}

func (c *Coordinator) startSpan(ctx context.Context, name, playerID, moduleID string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("playledger.player_id", playerID),
		attribute.String("playledger.module_id", moduleID),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func validateKey(op, playerID, moduleID string) error {
	if strings.TrimSpace(playerID) == "" {
		return errs.Validation(op, "player id is required")
	}
	if strings.TrimSpace(moduleID) == "" {
		return errs.Validation(op, "module id is required")
	}
	return nil
}

func rowIDs(rows []record.Row) []string {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	slices.Sort(ids)
	return ids
}
