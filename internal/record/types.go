package record

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/roach88/playledger/internal/errs"
)

// HistoryLimit is the number of best attempts kept per (player, module).
const HistoryLimit = 3

// AttemptRecord is produced whenever a session is checkpointed or finalized.
// It is an input to reconciliation and is never mutated after creation.
type AttemptRecord struct {
	PlayerID       string          `json:"player_id"`
	ModuleID       string          `json:"module_id"`
	Score          int             `json:"score"`
	ElapsedSeconds int             `json:"elapsed_seconds"`
	Completed      bool            `json:"completed"`
	Progress       json.RawMessage `json:"progress"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Empty reports whether the attempt carries no score and no elapsed time.
// Such attempts would produce rows the store boundary classifies as invalid.
func (a AttemptRecord) Empty() bool {
	return a.Score == 0 && a.ElapsedSeconds == 0
}

// Validate checks the attempt's shape. Failures are validation errors.
func (a AttemptRecord) Validate() error {
	const op = "record.attempt"
	switch {
	case strings.TrimSpace(a.PlayerID) == "":
		return errs.Validation(op, "player id is required")
	case strings.TrimSpace(a.ModuleID) == "":
		return errs.Validation(op, "module id is required")
	case a.Score < 0:
		return errs.Validation(op, "score must be non-negative, got %d", a.Score)
	case a.ElapsedSeconds < 0:
		return errs.Validation(op, "elapsed seconds must be non-negative, got %d", a.ElapsedSeconds)
	}
	if err := validateProgress(a.Progress); err != nil {
		return errs.Validation(op, "%s", err.Error())
	}
	return nil
}

// CanonicalRecord is the single authoritative record per (player, module).
//
// INVARIANTS:
//   - CurrentScore == ScoreHistory[0] whenever ScoreHistory is non-empty.
//   - len(ScoreHistory) == len(TimeHistory) <= HistoryLimit.
//   - ScoreHistory is strictly descending (hence duplicate-free).
type CanonicalRecord struct {
	ID           string          `json:"id"`
	PlayerID     string          `json:"player_id"`
	ModuleID     string          `json:"module_id"`
	CurrentScore int             `json:"current_score"`
	CurrentTime  int             `json:"current_time"`
	ScoreHistory []int           `json:"score_history"`
	TimeHistory  []int           `json:"time_history"`
	Completed    bool            `json:"completed"`
	Progress     json.RawMessage `json:"progress"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// CheckInvariants verifies the history invariants.
func (c CanonicalRecord) CheckInvariants() error {
	const op = "record.canonical"
	if len(c.ScoreHistory) != len(c.TimeHistory) {
		return errs.InvariantViolation(op, "score history length %d != time history length %d", len(c.ScoreHistory), len(c.TimeHistory))
	}
	if len(c.ScoreHistory) > HistoryLimit {
		return errs.InvariantViolation(op, "history length %d exceeds limit %d", len(c.ScoreHistory), HistoryLimit)
	}
	for i := 1; i < len(c.ScoreHistory); i++ {
		if c.ScoreHistory[i] >= c.ScoreHistory[i-1] {
			return errs.InvariantViolation(op, "score history %v is not strictly descending", c.ScoreHistory)
		}
	}
	if len(c.ScoreHistory) > 0 && c.CurrentScore != c.ScoreHistory[0] {
		return errs.InvariantViolation(op, "current score %d != best history score %d", c.CurrentScore, c.ScoreHistory[0])
	}
	return nil
}

// Clone returns a deep copy.
func (c CanonicalRecord) Clone() CanonicalRecord {
	c.ScoreHistory = slices.Clone(c.ScoreHistory)
	c.TimeHistory = slices.Clone(c.TimeHistory)
	c.Progress = slices.Clone(c.Progress)
	return c
}

// Row is the store's logical row schema.
type Row struct {
	ID           string
	PlayerID     string
	ModuleID     string
	Score        int
	Time         int
	ScoreHistory []int
	TimeHistory  []int
	Progress     json.RawMessage
	IsCompleted  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// DecodeErr is set by a store when a column could not be decoded into
	// its typed field. Such rows always classify as invalid.
	DecodeErr error
}

// RowFields holds the mutable columns written by UpdateRow.
type RowFields struct {
	Score        int
	Time         int
	ScoreHistory []int
	TimeHistory  []int
	Progress     json.RawMessage
	IsCompleted  bool
	UpdatedAt    time.Time
}

// ToRow converts a canonical record into its row form.
func (c CanonicalRecord) ToRow() Row {
	return Row{
		ID:           c.ID,
		PlayerID:     c.PlayerID,
		ModuleID:     c.ModuleID,
		Score:        c.CurrentScore,
		Time:         c.CurrentTime,
		ScoreHistory: slices.Clone(c.ScoreHistory),
		TimeHistory:  slices.Clone(c.TimeHistory),
		Progress:     slices.Clone(c.Progress),
		IsCompleted:  c.Completed,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// Fields returns the mutable columns of the record.
func (c CanonicalRecord) Fields() RowFields {
	return RowFields{
		Score:        c.CurrentScore,
		Time:         c.CurrentTime,
		ScoreHistory: slices.Clone(c.ScoreHistory),
		TimeHistory:  slices.Clone(c.TimeHistory),
		Progress:     slices.Clone(c.Progress),
		IsCompleted:  c.Completed,
		UpdatedAt:    c.UpdatedAt,
	}
}

// ToCanonical converts a row to a canonical record without validation.
// Use ClassifyRow first at the store boundary.
func (r Row) ToCanonical() CanonicalRecord {
	return CanonicalRecord{
		ID:           r.ID,
		PlayerID:     r.PlayerID,
		ModuleID:     r.ModuleID,
		CurrentScore: r.Score,
		CurrentTime:  r.Time,
		ScoreHistory: slices.Clone(r.ScoreHistory),
		TimeHistory:  slices.Clone(r.TimeHistory),
		Completed:    r.IsCompleted,
		Progress:     slices.Clone(r.Progress),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func validateProgress(p json.RawMessage) error {
	if len(p) == 0 {
		return errProgress("progress snapshot is required")
	}
	if !json.Valid(p) {
		return errProgress("progress snapshot is not valid JSON")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(p, &obj); err != nil || obj == nil {
		return errProgress("progress snapshot must be a JSON object")
	}
	return nil
}

type errProgress string

func (e errProgress) Error() string { return string(e) }

// Key identifies a (player, module) pair.
type Key struct {
	PlayerID string `json:"player_id"`
	ModuleID string `json:"module_id"`
}

// Standing is one leaderboard line: a player's best finalized result for a
// module.
type Standing struct {
	PlayerID  string    `json:"player_id"`
	ModuleID  string    `json:"module_id"`
	Score     int       `json:"score"`
	Time      int       `json:"time"`
	UpdatedAt time.Time `json:"updated_at"`
}
