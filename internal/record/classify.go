package record

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/playledger/internal/errs"
)

// ClassifyRow checks a persisted row against the expected key.
// Returns nil for a valid row or an errs.CodeInvalidRow error naming the defect.
//
// Invalid rows are:
//   - rows whose columns failed to decode
//   - rows missing id, player or module
//   - rows for a different (player, module) key
//   - rows with zero score AND zero time
//   - rows with a malformed progress snapshot
//   - rows whose histories are misaligned, exceed the limit, are not
//     strictly descending or disagree with the current score
func ClassifyRow(r Row, playerID, moduleID string) error {
	switch {
	case r.DecodeErr != nil:
		return errs.InvalidRow(r.ID, fmt.Sprintf("undecodable column: %v", r.DecodeErr))
	case strings.TrimSpace(r.ID) == "":
		return errs.InvalidRow(r.ID, "missing id")
	case strings.TrimSpace(r.PlayerID) == "" || strings.TrimSpace(r.ModuleID) == "":
		return errs.InvalidRow(r.ID, "missing player or module")
	case r.PlayerID != playerID || r.ModuleID != moduleID:
		return errs.InvalidRow(r.ID, fmt.Sprintf("key (%s, %s) does not match (%s, %s)", r.PlayerID, r.ModuleID, playerID, moduleID))
	case r.Score == 0 && r.Time == 0:
		return errs.InvalidRow(r.ID, "zero score and zero time")
	case r.Score < 0 || r.Time < 0:
		return errs.InvalidRow(r.ID, "negative score or time")
	case len(r.ScoreHistory) != len(r.TimeHistory):
		return errs.InvalidRow(r.ID, "score and time histories are misaligned")
	case len(r.ScoreHistory) > HistoryLimit:
		return errs.InvalidRow(r.ID, "history exceeds limit")
	}
	if err := r.ToCanonical().CheckInvariants(); err != nil {
		var e *errs.Error
		if errors.As(err, &e) {
			return errs.InvalidRow(r.ID, e.Message)
		}
		return errs.InvalidRow(r.ID, err.Error())
	}
	if err := validateProgress(r.Progress); err != nil {
		return errs.InvalidRow(r.ID, err.Error())
	}
	return nil
}

// Better reports whether row a should survive over row b when both are valid:
// higher score first, then the most recently updated, then the lowest id so
// the choice is deterministic.
func Better(a, b Row) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID < b.ID
}
