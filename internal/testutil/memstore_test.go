package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/playledger/internal/errs"
	"github.com/roach88/playledger/internal/record"
)

func row(player, module string, score int) record.Row {
	return record.Row{
		PlayerID:     player,
		ModuleID:     module,
		Score:        score,
		Time:         1,
		ScoreHistory: []int{score},
		TimeHistory:  []int{1},
		Progress:     json.RawMessage(`{}`),
		IsCompleted:  true,
	}
}

func TestMemStore_CRUD(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()

	id, err := m.InsertRow(ctx, row("p1", "m1", 10))
	require.NoError(t, err)
	assert.Equal(t, "row-1", id)
	_, err = m.InsertRow(ctx, row("p2", "m1", 20))
	require.NoError(t, err)

	rows, err := m.Select(ctx, "p1", "m1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 10, rows[0].Score)

	require.NoError(t, m.UpdateRow(ctx, id, record.RowFields{Score: 30, ScoreHistory: []int{30}, TimeHistory: []int{2}}))
	rows, _ = m.Select(ctx, "p1", "m1")
	assert.Equal(t, 30, rows[0].Score)

	require.NoError(t, m.DeleteRows(ctx, []string{id, "missing"}))
	rows, _ = m.Select(ctx, "p1", "m1")
	assert.Empty(t, rows)
	assert.Len(t, m.Rows(), 1)

	err = m.UpdateRow(ctx, id, record.RowFields{})
	assert.True(t, errs.IsNotFound(err))
}

func TestMemStore_InsertDuplicateID(t *testing.T) {
	m := NewMemStore()
	m.Seed(record.Row{ID: "x"})
	_, err := m.InsertRow(context.Background(), record.Row{ID: "x"})
	assert.Error(t, err)
}

func TestMemStore_GeneratedIDsSkipSeeded(t *testing.T) {
	m := NewMemStore()
	m.Seed(record.Row{ID: "row-1"})
	ids := m.Seed(record.Row{})
	assert.Equal(t, []string{"row-2"}, ids)
}

func TestMemStore_FaultsAreConsumedInOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	boom := errors.New("boom")
	m.Fail(OpSelect, boom, context.DeadlineExceeded)

	_, err := m.Select(ctx, "p", "m")
	assert.ErrorIs(t, err, boom)
	_, err = m.Select(ctx, "p", "m")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	_, err = m.Select(ctx, "p", "m")
	assert.NoError(t, err)
	assert.Equal(t, 3, m.Calls(OpSelect))
}

func TestMemStore_HookRunsOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	m.Before(OpUpdate, func() { m.Seed(row("p1", "m1", 5)) })

	_ = m.UpdateRow(ctx, "nope", record.RowFields{})
	_ = m.UpdateRow(ctx, "nope", record.RowFields{})
	assert.Len(t, m.Rows(), 1)
}

func TestMemStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemStore().Select(ctx, "p", "m")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemStore_ReturnsCopies(t *testing.T) {
	m := NewMemStore()
	m.Seed(row("p1", "m1", 10))
	rows, _ := m.Select(context.Background(), "p1", "m1")
	rows[0].ScoreHistory[0] = 99
	assert.Equal(t, 10, m.Rows()[0].ScoreHistory[0])
}
