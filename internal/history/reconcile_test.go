package history

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/playledger/internal/record"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func attempt(score, secs int, completed bool) record.AttemptRecord {
	return record.AttemptRecord{
		PlayerID:       "p1",
		ModuleID:       "m1",
		Score:          score,
		ElapsedSeconds: secs,
		Completed:      completed,
		Progress:       json.RawMessage(`{"score":` + itoa(score) + `}`),
		Timestamp:      t0,
	}
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestMerge(t *testing.T) {
	got := Merge(
		Pair{Score: 10, Time: 5},
		Pair{Score: 30, Time: 9},
		Pair{Score: 10, Time: 1},
		Pair{Score: 20, Time: 4},
		Pair{Score: 5, Time: 2},
	)
	assert.Equal(t, []Pair{{30, 9}, {20, 4}, {10, 5}}, got, "first occurrence of a repeated score keeps its time")

	assert.Empty(t, Merge())
}

func TestPairsAndSplit(t *testing.T) {
	p := Pairs([]int{3, 2, 1}, []int{7, 8})
	assert.Equal(t, []Pair{{3, 7}, {2, 8}}, p)

	scores, times := Split(nil)
	assert.NotNil(t, scores)
	assert.NotNil(t, times)
	assert.Empty(t, scores)
}

func TestReconcile_FirstFinalize(t *testing.T) {
	got := Reconcile(nil, attempt(40, 95, true))

	assert.Equal(t, "p1", got.PlayerID)
	assert.Equal(t, "m1", got.ModuleID)
	assert.Equal(t, []int{40}, got.ScoreHistory)
	assert.Equal(t, []int{95}, got.TimeHistory)
	assert.Equal(t, 40, got.CurrentScore)
	assert.Equal(t, 95, got.CurrentTime)
	assert.True(t, got.Completed)
	assert.Equal(t, t0, got.CreatedAt)
	assert.Equal(t, t0, got.UpdatedAt)
	require.NoError(t, got.CheckInvariants())
}

func TestReconcile_Idempotent(t *testing.T) {
	for _, a := range []record.AttemptRecord{attempt(40, 95, true), attempt(20, 30, false)} {
		once := Reconcile(nil, a)
		twice := Reconcile(&once, a)
		assert.Equal(t, once, twice)
	}
}

func TestReconcile_TopThree(t *testing.T) {
	scores := []int{650, 850, 750, 950, 700, 900}
	var cur *record.CanonicalRecord
	for i, s := range scores {
		next := Reconcile(cur, attempt(s, 100+i, true))
		require.NoError(t, next.CheckInvariants())
		cur = &next
	}

	assert.Equal(t, []int{950, 900, 850}, cur.ScoreHistory)
	assert.Equal(t, []int{103, 105, 101}, cur.TimeHistory)
	assert.Equal(t, 950, cur.CurrentScore)
	assert.Equal(t, 103, cur.CurrentTime)
}

func TestReconcile_DuplicatePairDoesNotGrow(t *testing.T) {
	first := Reconcile(nil, attempt(500, 60, true))
	second := Reconcile(&first, attempt(500, 60, true))
	assert.Len(t, second.ScoreHistory, 1)

	// Same score, different time: the earlier time is kept.
	third := Reconcile(&second, attempt(500, 45, true))
	assert.Equal(t, []int{500}, third.ScoreHistory)
	assert.Equal(t, []int{60}, third.TimeHistory)
}

func TestReconcile_WorseFinalizeKeepsBest(t *testing.T) {
	cur := Reconcile(nil, attempt(900, 50, true))
	for _, s := range []int{800, 700} {
		next := Reconcile(&cur, attempt(s, 40, true))
		cur = next
	}

	worse := attempt(100, 10, true)
	worse.Progress = json.RawMessage(`{"latest":true}`)
	worse.Timestamp = t0.Add(time.Minute)
	got := Reconcile(&cur, worse)

	assert.Equal(t, []int{900, 800, 700}, got.ScoreHistory)
	assert.Equal(t, 900, got.CurrentScore)
	assert.Equal(t, 50, got.CurrentTime)
	assert.JSONEq(t, `{"latest":true}`, string(got.Progress), "progress always follows the attempt")
	assert.Equal(t, t0.Add(time.Minute), got.UpdatedAt)
}

func TestReconcile_CheckpointLeavesHistory(t *testing.T) {
	fresh := Reconcile(nil, attempt(30, 12, false))
	assert.Empty(t, fresh.ScoreHistory)
	assert.Empty(t, fresh.TimeHistory)
	assert.Equal(t, 30, fresh.CurrentScore)
	assert.Equal(t, 12, fresh.CurrentTime)
	assert.False(t, fresh.Completed)

	progressed := Reconcile(&fresh, attempt(50, 20, false))
	assert.Equal(t, 50, progressed.CurrentScore)
	assert.Empty(t, progressed.ScoreHistory)

	done := Reconcile(&progressed, attempt(80, 40, true))
	assert.Equal(t, []int{80}, done.ScoreHistory)

	again := Reconcile(&done, attempt(20, 5, false))
	assert.Equal(t, []int{80}, again.ScoreHistory)
	assert.Equal(t, 80, again.CurrentScore, "current score stays pinned to the best entry")
	assert.Equal(t, 40, again.CurrentTime)
	assert.True(t, again.Completed, "completion is sticky")
	require.NoError(t, again.CheckInvariants())
}

func TestReconcile_DoesNotMutateExisting(t *testing.T) {
	base := Reconcile(nil, attempt(10, 1, true))
	snapshot := base.Clone()
	_ = Reconcile(&base, attempt(20, 2, true))
	assert.Equal(t, snapshot, base)
}

func TestFold(t *testing.T) {
	survivor := record.CanonicalRecord{
		ID: "a", CurrentScore: 90, CurrentTime: 9,
		ScoreHistory: []int{90, 40}, TimeHistory: []int{9, 4},
	}
	loser := record.CanonicalRecord{
		ID: "b", CurrentScore: 60, CurrentTime: 6, Completed: true,
		ScoreHistory: []int{60, 40, 10}, TimeHistory: []int{6, 1, 1},
	}

	got := Fold(survivor, loser)
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, []int{90, 60, 40}, got.ScoreHistory)
	assert.Equal(t, []int{9, 6, 4}, got.TimeHistory, "survivor's pair wins a repeated score")
	assert.True(t, got.Completed)
	require.NoError(t, got.CheckInvariants())

	plain := Fold(record.CanonicalRecord{ID: "x", CurrentScore: 7, CurrentTime: 3})
	assert.Equal(t, 7, plain.CurrentScore, "no history leaves current values alone")
}
