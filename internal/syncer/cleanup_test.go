package syncer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/playledger/internal/record"
	"github.com/roach88/playledger/internal/testutil"
)

func TestCleanupDuplicates_LeavesOneMaxRow(t *testing.T) {
	sets := [][]int{
		{7},
		{3, 9},
		{5, 1, 4},
		{2, 8, 8, 6},
		{10, 40, 30, 20, 50},
	}
	for _, scores := range sets {
		t.Run(fmt.Sprint(scores), func(t *testing.T) {
			m := testutil.NewMemStore()
			best := 0
			for i, s := range scores {
				m.Seed(finalRow(fmt.Sprintf("r%d", i), s, t0.Add(time.Duration(i)*time.Second)))
				best = max(best, s)
			}
			c := newTestCoordinator(t, m)

			report, err := c.CleanupDuplicates(context.Background(), "p1", "m1")
			require.NoError(t, err)

			rows := m.Rows()
			require.Len(t, rows, 1)
			assert.Equal(t, best, rows[0].Score)
			assert.Equal(t, len(scores)-1, report.Removed())
			assert.Equal(t, 1, report.Passes)
			assert.False(t, report.Anomaly)
			require.NotNil(t, report.Survivor)
			assert.Equal(t, rows[0].ID, report.Survivor.ID)
		})
	}
}

func TestCleanupDuplicates_TieGoesToLatestUpdate(t *testing.T) {
	m := testutil.NewMemStore()
	m.Seed(
		finalRow("early", 50, t0),
		finalRow("late", 50, t0.Add(time.Minute)),
		finalRow("low", 20, t0.Add(time.Hour)),
	)
	c := newTestCoordinator(t, m)

	report, err := c.CleanupDuplicates(context.Background(), "p1", "m1")
	require.NoError(t, err)

	rows := m.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "late", rows[0].ID)
	assert.Equal(t, []int{50, 20}, rows[0].ScoreHistory, "losers' history is folded in")
	assert.Equal(t, []string{"early", "low"}, report.Duplicates)
}

func TestCleanupDuplicates_CheckpointSurvivorKeepsFinalizedHistory(t *testing.T) {
	m := testutil.NewMemStore()
	live := finalRow("live", 90, t0)
	live.ScoreHistory, live.TimeHistory, live.IsCompleted = nil, nil, false
	m.Seed(live, finalRow("done", 40, t0))
	c := newTestCoordinator(t, m)

	report, err := c.CleanupDuplicates(context.Background(), "p1", "m1")
	require.NoError(t, err)

	rows := m.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "live", rows[0].ID)
	assert.True(t, rows[0].IsCompleted, "completion is sticky across folding")
	assert.Equal(t, []int{40}, rows[0].ScoreHistory)
	assert.Equal(t, []int{10}, rows[0].TimeHistory)
	assert.Equal(t, 40, rows[0].Score, "current score is pinned to the best history entry")
	assert.Equal(t, 1, m.Calls(testutil.OpUpdate))
	require.NotNil(t, report.Survivor)
	assert.True(t, report.Survivor.Completed)
}

func TestCleanupDuplicates_CheckpointsOnlyAreNotRewritten(t *testing.T) {
	m := testutil.NewMemStore()
	a := finalRow("a", 90, t0)
	a.ScoreHistory, a.TimeHistory, a.IsCompleted = nil, nil, false
	b := finalRow("b", 30, t0)
	b.ScoreHistory, b.TimeHistory, b.IsCompleted = nil, nil, false
	m.Seed(a, b)
	c := newTestCoordinator(t, m)

	_, err := c.CleanupDuplicates(context.Background(), "p1", "m1")
	require.NoError(t, err)

	rows := m.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "a", rows[0].ID)
	assert.Equal(t, 90, rows[0].Score)
	assert.False(t, rows[0].IsCompleted)
	assert.Zero(t, m.Calls(testutil.OpUpdate))
}

func TestFinalize_RacingCheckpointRowDoesNotLoseAttempt(t *testing.T) {
	ctx := context.Background()
	m := testutil.NewMemStore()
	m.Before(testutil.OpInsert, func() {
		other := finalRow("tab2", 90, t0)
		other.ScoreHistory, other.TimeHistory, other.IsCompleted = nil, nil, false
		m.Seed(other)
	})
	c := newTestCoordinator(t, m)

	res, err := c.Finalize(ctx, "p1", "m1", attemptAt(40, 30, true, t0.Add(time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeInserted, res.Outcome)

	rows := m.Rows()
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsCompleted)
	assert.Equal(t, []int{40}, rows[0].ScoreHistory)
	assert.Equal(t, []int{30}, rows[0].TimeHistory)
	assert.Equal(t, 40, rows[0].Score)

	rec, err := c.LoadCanonical(ctx, "p1", "m1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Completed)
	assert.Equal(t, []int{40}, rec.ScoreHistory)
}

func TestCleanupDuplicates_AllInvalid(t *testing.T) {
	m := testutil.NewMemStore()
	wrongKey := finalRow("other", 10, t0)
	wrongKey.PlayerID = "p2"
	empty := finalRow("empty", 0, t0)
	empty.Time = 0
	misaligned := finalRow("misaligned", 10, t0)
	misaligned.TimeHistory = nil
	m.Seed(empty, misaligned)
	c := newTestCoordinator(t, m)

	report, err := c.CleanupDuplicates(context.Background(), "p1", "m1")
	require.NoError(t, err)

	assert.Empty(t, m.Rows())
	assert.ElementsMatch(t, []string{"empty", "misaligned"}, report.Invalid)
	assert.Nil(t, report.Survivor)
	assert.Equal(t, 1, m.Calls(testutil.OpDelete), "one bulk delete")

	// Rows under other keys are never touched.
	m.Seed(wrongKey)
	_, err = c.CleanupDuplicates(context.Background(), "p1", "m1")
	require.NoError(t, err)
	assert.Len(t, m.Rows(), 1)
}

func TestCleanupDuplicates_SingleBulkDelete(t *testing.T) {
	m := testutil.NewMemStore()
	bad := finalRow("bad", 0, t0)
	bad.Time = 0
	m.Seed(finalRow("a", 1, t0), finalRow("b", 2, t0), finalRow("c", 3, t0), bad)
	c := newTestCoordinator(t, m)

	report, err := c.CleanupDuplicates(context.Background(), "p1", "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Calls(testutil.OpDelete))
	assert.Equal(t, 4, report.Scanned)
	assert.Equal(t, 3, report.Removed())
}

func TestCleanupDuplicates_RaceGetsSecondPass(t *testing.T) {
	m := testutil.NewMemStore()
	m.Seed(finalRow("a", 10, t0), finalRow("b", 20, t0))
	// A racing writer inserts a row while the first pass deletes.
	m.Before(testutil.OpDelete, func() {
		m.Seed(finalRow("racer", 15, t0.Add(time.Second)))
	})
	c := newTestCoordinator(t, m)

	report, err := c.CleanupDuplicates(context.Background(), "p1", "m1")
	require.NoError(t, err)

	assert.Equal(t, 2, report.Passes)
	assert.False(t, report.Anomaly)
	rows := m.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "b", rows[0].ID)
	assert.Equal(t, []string{"a", "racer"}, report.Duplicates)
}

func TestCleanupDuplicates_PersistentAnomalyIsReported(t *testing.T) {
	m := testutil.NewMemStore()
	m.Seed(finalRow("a", 10, t0), finalRow("b", 20, t0))
	m.Before(testutil.OpDelete, func() { m.Seed(finalRow("racer-1", 5, t0)) })
	m.Before(testutil.OpDelete, func() { m.Seed(finalRow("racer-2", 5, t0)) })
	c := newTestCoordinator(t, m)

	report, err := c.CleanupDuplicates(context.Background(), "p1", "m1")
	require.NoError(t, err, "anomalies are logged, not returned")

	assert.True(t, report.Anomaly)
	assert.Equal(t, 2, report.Passes)
	assert.Len(t, m.Rows(), 2)
	assert.Equal(t, 2, m.Calls(testutil.OpDelete), "never loops beyond two passes")

	// The next cleanup heals it.
	report, err = c.CleanupDuplicates(context.Background(), "p1", "m1")
	require.NoError(t, err)
	assert.False(t, report.Anomaly)
	assert.Len(t, m.Rows(), 1)
}

func TestCleanupDuplicates_SurvivorVanishing(t *testing.T) {
	m := testutil.NewMemStore()
	m.Seed(finalRow("a", 10, t0), finalRow("b", 20, t0))
	m.Before(testutil.OpUpdate, func() {
		_ = m.DeleteRows(context.Background(), []string{"b"})
	})
	c := newTestCoordinator(t, m)

	report, err := c.CleanupDuplicates(context.Background(), "p1", "m1")
	require.NoError(t, err)

	rows := m.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "a", rows[0].ID, "the loser is kept when the survivor disappears")
	require.NotNil(t, report.Survivor)
	assert.Equal(t, "a", report.Survivor.ID)
}

func TestCleanupDuplicates_RequiresKey(t *testing.T) {
	c := newTestCoordinator(t, testutil.NewMemStore())
	_, err := c.CleanupDuplicates(context.Background(), "p1", " ")
	assert.Error(t, err)
}

func TestSettled(t *testing.T) {
	assert.True(t, settled(nil, "p1", "m1"))
	assert.True(t, settled([]record.Row{finalRow("a", 1, t0)}, "p1", "m1"))
	assert.False(t, settled([]record.Row{finalRow("a", 1, t0), finalRow("b", 1, t0)}, "p1", "m1"))
	bad := finalRow("a", 0, t0)
	bad.Time = 0
	assert.False(t, settled([]record.Row{bad}, "p1", "m1"))
}
