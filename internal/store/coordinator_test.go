package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/playledger/internal/record"
	"github.com/roach88/playledger/internal/syncer"
)

var _ syncer.Store = (*Store)(nil)

func TestCoordinatorOverSQLite(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	c := syncer.New(s, syncer.WithLogger(slog.New(slog.DiscardHandler)))

	// A racing client left two rows behind.
	_, err := s.InsertRow(ctx, createTestRow("p1", "m1", 650, 70))
	require.NoError(t, err)
	_, err = s.InsertRow(ctx, createTestRow("p1", "m1", 850, 60))
	require.NoError(t, err)

	for i, score := range []int{750, 950, 700, 900} {
		a := record.AttemptRecord{
			PlayerID:       "p1",
			ModuleID:       "m1",
			Score:          score,
			ElapsedSeconds: 100 + i,
			Completed:      true,
			Progress:       json.RawMessage(`{"attempt":` + jsonInt(i) + `}`),
			Timestamp:      t0.Add(time.Duration(i+1) * time.Minute),
		}
		_, err := c.Finalize(ctx, "p1", "m1", a)
		require.NoError(t, err)
	}

	rows, err := s.Select(ctx, "p1", "m1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []int{950, 900, 850}, rows[0].ScoreHistory)
	assert.Equal(t, []int{101, 103, 60}, rows[0].TimeHistory)
	assert.Equal(t, 950, rows[0].Score)
	assert.Equal(t, `{"attempt":3}`, string(rows[0].Progress))

	keys, err := s.DuplicateKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}
