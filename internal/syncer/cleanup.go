package syncer

import (
	"context"
	"log/slog"
	"slices"

	"github.com/roach88/playledger/internal/errs"
	"github.com/roach88/playledger/internal/history"
	"github.com/roach88/playledger/internal/record"
)

// CleanupReport describes one cleanup of a key.
type CleanupReport struct {
	PlayerID string `json:"player_id"`
	ModuleID string `json:"module_id"`

	// Scanned is the number of rows found by the first read.
	Scanned int `json:"scanned"`

	// Invalid holds ids of rows deleted because they failed classification.
	Invalid []string `json:"invalid,omitempty"`

	// Duplicates holds ids of valid rows that lost to the survivor.
	Duplicates []string `json:"duplicates,omitempty"`

	// Passes is 1, or 2 when the verification read found rows again.
	Passes int `json:"passes"`

	// Anomaly is set when more than one row persisted after the second pass.
	Anomaly bool `json:"anomaly,omitempty"`

	// Survivor is the canonical record left for the key, nil if none.
	Survivor *record.CanonicalRecord `json:"survivor,omitempty"`
}

// Removed returns the number of rows deleted.
func (r CleanupReport) Removed() int {
	return len(r.Invalid) + len(r.Duplicates)
}

// CleanupDuplicates collapses the rows for a key to at most one.
//
// Invalid rows are deleted. Among valid rows the best one survives (highest
// score, then latest update, then lowest id) and the history and completion of
// the others are folded into it before they are deleted in a single call. A verification
// read follows; if a racing writer left more than one row, one more
// keep-best pass runs and a persisting anomaly is logged, never looped on.
func (c *Coordinator) CleanupDuplicates(ctx context.Context, playerID, moduleID string) (report CleanupReport, err error) {
	ctx, span := c.startSpan(ctx, "syncer.CleanupDuplicates", playerID, moduleID)
	defer func() { endSpan(span, err) }()

	if err := validateKey("syncer.cleanup", playerID, moduleID); err != nil {
		return CleanupReport{}, err
	}
	rows, err := c.selectRows(ctx, playerID, moduleID)
	if err != nil {
		return CleanupReport{}, err
	}
	return c.cleanupRows(ctx, playerID, moduleID, rows)
}

func (c *Coordinator) cleanupRows(ctx context.Context, playerID, moduleID string, rows []record.Row) (CleanupReport, error) {
	report := CleanupReport{PlayerID: playerID, ModuleID: moduleID, Scanned: len(rows)}

	for pass := 1; pass <= 2; pass++ {
		report.Passes = pass
		survivor, err := c.keepBest(ctx, playerID, moduleID, rows, &report)
		if err != nil {
			return report, err
		}
		report.Survivor = survivor

		rows, err = c.selectRows(ctx, playerID, moduleID)
		if err != nil {
			return report, err
		}
		if settled(rows, playerID, moduleID) {
			if len(rows) == 1 {
				rec := rows[0].ToCanonical()
				report.Survivor = &rec
			}
			c.logCleanup(report)
			return report, nil
		}
	}

	report.Anomaly = true
	c.log.Error("duplicate rows persist after cleanup",
		slog.String("player_id", playerID),
		slog.String("module_id", moduleID),
		slog.Int("rows", len(rows)),
		slog.Any("error", errs.InvariantViolation("syncer.cleanup", "%d rows remain for (%s, %s)", len(rows), playerID, moduleID)))
	return report, nil
}

// keepBest runs one classify, fold and delete pass over rows.
func (c *Coordinator) keepBest(ctx context.Context, playerID, moduleID string, rows []record.Row, report *CleanupReport) (*record.CanonicalRecord, error) {
	var valid []record.Row
	var doomed []string
	for _, r := range rows {
		if err := record.ClassifyRow(r, playerID, moduleID); err != nil {
			c.log.Info("deleting invalid row",
				slog.String("row_id", r.ID),
				slog.Any("reason", err))
			report.Invalid = append(report.Invalid, r.ID)
			doomed = append(doomed, r.ID)
			continue
		}
		valid = append(valid, r)
	}

	invalid := len(doomed)
	vanished := false
	var survivor *record.CanonicalRecord
	if len(valid) > 0 {
		slices.SortStableFunc(valid, func(a, b record.Row) int {
			switch {
			case record.Better(a, b):
				return -1
			case record.Better(b, a):
				return 1
			}
			return 0
		})
		best := valid[0].ToCanonical()
		losers := valid[1:]
		for _, l := range losers {
			report.Duplicates = append(report.Duplicates, l.ID)
			doomed = append(doomed, l.ID)
		}

		// A finalized loser must not take its history or completion with it.
		// Folding pins the current score to the best history entry, which
		// drops a live checkpoint score above it.
		if len(losers) > 0 {
			others := make([]record.CanonicalRecord, len(losers))
			for i, l := range losers {
				others[i] = l.ToCanonical()
			}
			folded := history.Fold(best, others...)
			if !sameHistory(best, folded) {
				folded.UpdatedAt = c.clock.Now()
				err := c.updateRow(ctx, folded.ID, folded.Fields())
				switch {
				case errs.IsNotFound(err):
					// The survivor vanished under us. Keep the losers
					// for the next pass to choose from.
					report.Duplicates = report.Duplicates[:len(report.Duplicates)-len(losers)]
					doomed = doomed[:invalid]
					vanished = true
				case err != nil:
					return nil, err
				default:
					best = folded
				}
			}
		}
		if !vanished {
			survivor = &best
		}
	}

	if len(doomed) > 0 {
		if err := c.deleteRows(ctx, doomed); err != nil {
			return nil, err
		}
	}
	return survivor, nil
}

func (c *Coordinator) logCleanup(r CleanupReport) {
	if r.Removed() == 0 {
		return
	}
	c.log.Info("cleaned up rows",
		slog.String("player_id", r.PlayerID),
		slog.String("module_id", r.ModuleID),
		slog.Int("invalid", len(r.Invalid)),
		slog.Int("duplicates", len(r.Duplicates)),
		slog.Int("passes", r.Passes))
}

// settled reports whether rows satisfy the single-row invariant: at most one
// row, and that row valid.
func settled(rows []record.Row, playerID, moduleID string) bool {
	switch len(rows) {
	case 0:
		return true
	case 1:
		return record.ClassifyRow(rows[0], playerID, moduleID) == nil
	}
	return false
}

func sameHistory(a, b record.CanonicalRecord) bool {
	return a.CurrentScore == b.CurrentScore &&
		a.CurrentTime == b.CurrentTime &&
		a.Completed == b.Completed &&
		slices.Equal(a.ScoreHistory, b.ScoreHistory) &&
		slices.Equal(a.TimeHistory, b.TimeHistory)
}
