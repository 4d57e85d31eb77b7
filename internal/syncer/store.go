package syncer

import (
	"context"
	"time"

	"github.com/roach88/playledger/internal/record"
)

// Store is the row persistence the coordinator needs. Each call is atomic on
// its own; nothing is assumed about sequences of calls.
type Store interface {
	// Select returns every row for the key, possibly none.
	Select(ctx context.Context, playerID, moduleID string) ([]record.Row, error)
	// InsertRow stores a new row and returns its id.
	InsertRow(ctx context.Context, row record.Row) (string, error)
	// UpdateRow overwrites the mutable columns of a row. Returns an error
	// matching errs.ErrRowNotFound when the row no longer exists.
	UpdateRow(ctx context.Context, id string, fields record.RowFields) error
	// DeleteRows removes rows by id in one call.
	DeleteRows(ctx context.Context, ids []string) error
}

// Publisher receives finalized records, typically a leaderboard.
type Publisher interface {
	Publish(ctx context.Context, rec record.CanonicalRecord) error
	Remove(ctx context.Context, playerID, moduleID string) error
}

// Clock supplies timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
