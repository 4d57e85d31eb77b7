package syncer

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/roach88/playledger/internal/errs"
	"github.com/roach88/playledger/internal/history"
	"github.com/roach88/playledger/internal/record"
)

// Outcome describes what a write did.
type Outcome string

const (
	OutcomeInserted  Outcome = "inserted"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeSkipped   Outcome = "skipped"
)

// Skip reasons reported in Result.Reason.
const (
	ReasonEmptyAttempt = "empty attempt"
	ReasonCompleted    = "record already completed"
	ReasonLowerScore   = "canonical score is higher"
)

// Result is the outcome of a checkpoint or finalize.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`

	// Record is the canonical record after the write, or the existing one
	// when the write was skipped. Nil when nothing exists for the key.
	Record *record.CanonicalRecord `json:"record,omitempty"`

	// Cleanup is the report of the cleanup pass that ends a finalize.
	Cleanup *CleanupReport `json:"cleanup,omitempty"`

	// Shared is set when the call was coalesced with an identical
	// concurrent one.
	Shared bool `json:"shared,omitempty"`
}

// Checkpoint saves in-progress state. History is never touched.
//
// A completed attempt is handed to Finalize. An empty attempt is skipped.
// Once the canonical record is completed, checkpoints are ignored; a
// checkpoint scoring strictly lower than the canonical current score is
// ignored too, so a late autosave never regresses a better result.
func (c *Coordinator) Checkpoint(ctx context.Context, playerID, moduleID string, a record.AttemptRecord) (res Result, err error) {
	if a.Completed {
		return c.Finalize(ctx, playerID, moduleID, a)
	}
	ctx, span := c.startSpan(ctx, "syncer.Checkpoint", playerID, moduleID)
	defer func() { endSpan(span, err) }()

	if err := checkAttempt("syncer.checkpoint", playerID, moduleID, a); err != nil {
		return Result{}, err
	}
	if a.Empty() {
		return Result{Outcome: OutcomeSkipped, Reason: ReasonEmptyAttempt}, nil
	}
	return c.coalesce(ctx, "checkpoint", a, func(ctx context.Context) (Result, error) {
		return c.write(ctx, a)
	})
}

// Finalize records a completed attempt into history, then runs a cleanup pass
// so the single-row invariant holds even if a racing writer inserted a row.
//
// Finalizing the same attempt twice is a no-op the second time: the history
// dedupes by score and the cleanup removes any duplicate row.
func (c *Coordinator) Finalize(ctx context.Context, playerID, moduleID string, a record.AttemptRecord) (res Result, err error) {
	ctx, span := c.startSpan(ctx, "syncer.Finalize", playerID, moduleID)
	defer func() { endSpan(span, err) }()

	a.Completed = true
	if err := checkAttempt("syncer.finalize", playerID, moduleID, a); err != nil {
		return Result{}, err
	}
	if a.Empty() {
		return Result{}, errs.Validation("syncer.finalize", "cannot finalize an attempt with zero score and zero time")
	}

	return c.coalesce(ctx, "finalize", a, func(ctx context.Context) (Result, error) {
		res, err := c.write(ctx, a)
		if err != nil {
			return Result{}, err
		}

		report, err := c.CleanupDuplicates(ctx, playerID, moduleID)
		if err != nil {
			// The write landed; the next finalize repairs what this one could not.
			c.log.Warn("cleanup after finalize failed",
				slog.String("player_id", playerID),
				slog.String("module_id", moduleID),
				slog.Any("error", err))
		} else {
			res.Cleanup = &report
			if report.Survivor != nil {
				res.Record = report.Survivor
			}
		}

		if c.publisher != nil && res.Record != nil {
			if err := c.publisher.Publish(ctx, *res.Record); err != nil {
				c.log.Warn("leaderboard publish failed",
					slog.String("player_id", playerID),
					slog.String("module_id", moduleID),
					slog.Any("error", err))
			}
		}
		return res, nil
	})
}

// coalesce runs fn once for concurrent calls carrying the same attempt.
// The shared call runs detached from any one caller's cancellation, bounded by
// the per-call timeouts and retry budget; each caller still stops waiting when
// its own context ends.
func (c *Coordinator) coalesce(ctx context.Context, kind string, a record.AttemptRecord, fn func(context.Context) (Result, error)) (Result, error) {
	fp, err := a.Fingerprint()
	if err != nil {
		return Result{}, errs.Validation("syncer."+kind, "fingerprint attempt: %v", err)
	}
	shared := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(kind+":"+fp, func() (any, error) {
		return fn(shared)
	})
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		res := r.Val.(Result)
		res.Shared = r.Shared
		return res, nil
	}
}

// write is the load → reconcile → write loop shared by checkpoint and
// finalize. A target row that disappears between load and update sends the
// loop back to a fresh load, at most policy.MaxTries times.
func (c *Coordinator) write(ctx context.Context, a record.AttemptRecord) (Result, error) {
	attempts := max(int(c.policy.MaxTries), 1)
	var lastErr error
	for i := 0; i < attempts; i++ {
		existing, err := c.load(ctx, a.PlayerID, a.ModuleID)
		if err != nil {
			return Result{}, err
		}

		if !a.Completed && existing != nil {
			if existing.Completed {
				return Result{Outcome: OutcomeSkipped, Reason: ReasonCompleted, Record: existing}, nil
			}
			if existing.CurrentScore > a.Score {
				return Result{Outcome: OutcomeSkipped, Reason: ReasonLowerScore, Record: existing}, nil
			}
		}

		next := history.Reconcile(existing, a)
		if err := next.CheckInvariants(); err != nil {
			// Reconcile preserves the invariants for any valid input, so this
			// only fires on a corrupted existing record.
			return Result{}, err
		}

		if existing == nil {
			id, err := c.insertRow(ctx, next.ToRow())
			if err != nil {
				return Result{}, err
			}
			next.ID = id
			c.logWrite(OutcomeInserted, a, next)
			return Result{Outcome: OutcomeInserted, Record: &next}, nil
		}

		if sameRecord(*existing, next) {
			return Result{Outcome: OutcomeUnchanged, Record: existing}, nil
		}

		err = c.updateRow(ctx, existing.ID, next.Fields())
		if errs.IsNotFound(err) {
			lastErr = err
			c.log.Debug("write conflict, reloading",
				slog.String("player_id", a.PlayerID),
				slog.String("module_id", a.ModuleID),
				slog.String("row_id", existing.ID))
			continue
		}
		if err != nil {
			return Result{}, err
		}
		c.logWrite(OutcomeUpdated, a, next)
		return Result{Outcome: OutcomeUpdated, Record: &next}, nil
	}
	return Result{}, errs.Transient("syncer.write", lastErr)
}

func (c *Coordinator) logWrite(o Outcome, a record.AttemptRecord, rec record.CanonicalRecord) {
	c.log.Debug("progress written",
		slog.String("outcome", string(o)),
		slog.String("player_id", a.PlayerID),
		slog.String("module_id", a.ModuleID),
		slog.Bool("completed", a.Completed),
		slog.Int("score", a.Score),
		slog.Int("current_score", rec.CurrentScore),
		slog.Any("score_history", rec.ScoreHistory))
}

func checkAttempt(op, playerID, moduleID string, a record.AttemptRecord) error {
	if err := validateKey(op, playerID, moduleID); err != nil {
		return err
	}
	if a.PlayerID != playerID || a.ModuleID != moduleID {
		return errs.Validation(op, "attempt for (%s, %s) submitted under (%s, %s)", a.PlayerID, a.ModuleID, playerID, moduleID)
	}
	return a.Validate()
}

func sameRecord(a, b record.CanonicalRecord) bool {
	return sameHistory(a, b) &&
		bytes.Equal(a.Progress, b.Progress) &&
		a.UpdatedAt.Equal(b.UpdatedAt)
}
