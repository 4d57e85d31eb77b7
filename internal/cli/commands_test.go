package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/playledger/internal/record"
	"github.com/roach88/playledger/internal/store"
)

var smallDeck = filepath.Join("..", "content", "testdata", "small.cue")

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

// runCLI executes the CLI against db with a clean PLAYLEDGER_* environment.
func runCLI(t *testing.T, db string, args ...string) (stdout, stderr string, code int) {
	t.Helper()
	t.Setenv("PLAYLEDGER_STORE", "sqlite")
	t.Setenv("PLAYLEDGER_REDIS_ADDR", "")
	t.Setenv("PLAYLEDGER_OTEL_ENDPOINT", "")
	t.Setenv("PLAYLEDGER_LOG_LEVEL", "warn")

	var out, errOut bytes.Buffer
	full := append([]string{"--db", db, "--env-file", ""}, args...)
	code = Execute(full, &out, &errOut)
	return out.String(), errOut.String(), code
}

func decodeData(t *testing.T, stdout string, v any) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal([]byte(stdout), &env), stdout)
	require.Equal(t, "ok", env.Status, stdout)
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func tempDB(t *testing.T) string {
	return filepath.Join(t.TempDir(), "ledger.db")
}

func TestSubmitAndShow(t *testing.T) {
	db := tempDB(t)

	out, _, code := runCLI(t, db, "submit", "--player", "p1", "--module", "m1", "--score", "750", "--time", "100", "--completed")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "inserted")

	for _, args := range [][]string{{"950", "101"}, {"700", "102"}} {
		out, _, code = runCLI(t, db, "submit", "--player", "p1", "--module", "m1", "--score", args[0], "--time", args[1], "--completed")
		require.Equal(t, ExitSuccess, code)
		assert.Contains(t, out, "updated")
	}

	out, _, code = runCLI(t, db, "--format", "json", "show", "--player", "p1", "--module", "m1")
	require.Equal(t, ExitSuccess, code)
	var rec record.CanonicalRecord
	decodeData(t, out, &rec)
	assert.Equal(t, 950, rec.CurrentScore)
	assert.Equal(t, []int{950, 750, 700}, rec.ScoreHistory)
	assert.Equal(t, []int{101, 100, 102}, rec.TimeHistory)
	assert.True(t, rec.Completed)
}

func TestSubmit_Checkpoints(t *testing.T) {
	db := tempDB(t)

	out, _, code := runCLI(t, db, "submit", "--player", "p1", "--module", "m1")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "skipped (empty attempt)")

	out, _, code = runCLI(t, db, "submit", "--player", "p1", "--module", "m1", "--score", "40", "--time", "30")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "inserted")
	assert.Contains(t, out, "in progress")

	out, _, code = runCLI(t, db, "submit", "--player", "p1", "--module", "m1", "--score", "20", "--time", "35")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "skipped (canonical score is higher)")
}

func TestSubmit_Errors(t *testing.T) {
	db := tempDB(t)

	_, stderr, code := runCLI(t, db, "submit", "--module", "m1", "--score", "1")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "--player is required")

	_, stderr, code = runCLI(t, db, "submit", "--player", "p1", "--module", "m1", "--score=-1")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "non-negative")

	_, _, code = runCLI(t, db, "submit", "--player", "p1", "--module", "m1", "--completed")
	assert.Equal(t, ExitCommandError, code, "an empty finalize is invalid")

	out, _, code := runCLI(t, db, "--format", "json", "submit", "--player", "p1", "--module", "m1", "--progress", "[")
	assert.Equal(t, ExitCommandError, code)
	var env envelope
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	assert.Equal(t, "error", env.Status)
	assert.Equal(t, "E_COMMAND", env.Error.Code)
}

func TestShow_NoRecord(t *testing.T) {
	out, _, code := runCLI(t, tempDB(t), "show", "--player", "nobody", "--module", "m1")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "no record")
}

func TestReset(t *testing.T) {
	db := tempDB(t)
	_, _, code := runCLI(t, db, "submit", "--player", "p1", "--module", "m1", "--score", "10", "--time", "5", "--completed")
	require.Equal(t, ExitSuccess, code)

	out, _, code := runCLI(t, db, "reset", "--player", "p1", "--module", "m1")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "deleted 1 rows")

	out, _, _ = runCLI(t, db, "show", "--player", "p1", "--module", "m1")
	assert.Contains(t, out, "no record")
}

func seedDuplicates(t *testing.T, db string) {
	t.Helper()
	s, err := store.Open(db)
	require.NoError(t, err)
	defer s.Close()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, score := range []int{650, 850} {
		_, err := s.InsertRow(context.Background(), record.Row{
			PlayerID:     "p1",
			ModuleID:     "m1",
			Score:        score,
			Time:         60 + i,
			ScoreHistory: []int{score},
			TimeHistory:  []int{60 + i},
			Progress:     json.RawMessage(`{}`),
			IsCompleted:  true,
			CreatedAt:    at.Add(time.Duration(i) * time.Minute),
			UpdatedAt:    at.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
}

func TestCleanup(t *testing.T) {
	db := tempDB(t)
	seedDuplicates(t, db)

	out, _, code := runCLI(t, db, "cleanup", "--player", "p1", "--module", "m1")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "p1/m1: scanned 2, removed 1 (0 invalid), passes 1")
	assert.Contains(t, out, "history [850 650]")
}

func TestRepair(t *testing.T) {
	db := tempDB(t)
	seedDuplicates(t, db)

	out, _, code := runCLI(t, db, "--format", "json", "repair")
	require.Equal(t, ExitSuccess, code)
	var reports []struct {
		PlayerID   string   `json:"player_id"`
		Duplicates []string `json:"duplicates"`
	}
	decodeData(t, out, &reports)
	require.Len(t, reports, 1)
	assert.Equal(t, "p1", reports[0].PlayerID)
	assert.Len(t, reports[0].Duplicates, 1)

	out, _, code = runCLI(t, db, "repair")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "No duplicate rows found.")
}

func TestLeaderboard(t *testing.T) {
	db := tempDB(t)
	for _, r := range [][]string{{"alice", "90", "50"}, {"bob", "120", "80"}, {"carol", "90", "40"}} {
		_, _, code := runCLI(t, db, "submit", "--player", r[0], "--module", "m1", "--score", r[1], "--time", r[2], "--completed")
		require.Equal(t, ExitSuccess, code)
	}
	_, _, code := runCLI(t, db, "submit", "--player", "erin", "--module", "m1", "--score", "999", "--time", "1")
	require.Equal(t, ExitSuccess, code)

	out, _, code := runCLI(t, db, "leaderboard", "m1")
	require.Equal(t, ExitSuccess, code)
	bob, carol, alice := strings.Index(out, "bob"), strings.Index(out, "carol"), strings.Index(out, "alice")
	assert.True(t, bob < carol && carol < alice, out)
	assert.NotContains(t, out, "erin", "checkpoints are not ranked")

	out, _, code = runCLI(t, db, "--format", "json", "leaderboard", "m1", "--limit", "1")
	require.Equal(t, ExitSuccess, code)
	var standings []record.Standing
	decodeData(t, out, &standings)
	require.Len(t, standings, 1)
	assert.Equal(t, "bob", standings[0].PlayerID)

	out, _, _ = runCLI(t, db, "leaderboard", "empty-module")
	assert.Contains(t, out, "No completed results.")
}

func TestPlay_CompletesAndFinalizes(t *testing.T) {
	db := tempDB(t)

	out, _, code := runCLI(t, db, "--format", "json", "play", smallDeck, "--player", "p1", "--prompts", "0,1,2,3")
	require.Equal(t, ExitSuccess, code, out)

	var summary PlaySummary
	decodeData(t, out, &summary)
	assert.True(t, summary.Session.Complete)
	assert.Equal(t, 4, summary.Accepted)
	assert.Zero(t, summary.Rejected)
	assert.Equal(t, 20, summary.Session.ElapsedSeconds)
	require.NotNil(t, summary.Result)
	require.NotNil(t, summary.Result.Record)
	assert.True(t, summary.Result.Record.Completed)
	assert.Equal(t, "warmup", summary.Result.Record.ModuleID)
	assert.Equal(t, []int{summary.Session.Score}, summary.Result.Record.ScoreHistory)
}

func TestPlay_CheckpointThenResume(t *testing.T) {
	db := tempDB(t)

	out, _, code := runCLI(t, db, "play", smallDeck, "--player", "p1", "--moves", "2", "--prompts", "0,1,2,3")
	require.Equal(t, ExitSuccess, code, out)
	assert.Contains(t, out, "Board in progress")

	out, _, code = runCLI(t, db, "--format", "json", "show", "--player", "p1", "--module", "warmup")
	require.Equal(t, ExitSuccess, code)
	var rec record.CanonicalRecord
	decodeData(t, out, &rec)
	assert.False(t, rec.Completed)
	assert.Equal(t, 10, rec.CurrentTime)
	assert.Empty(t, rec.ScoreHistory, "checkpoints never touch history")

	out, _, code = runCLI(t, db, "--format", "json", "play", smallDeck, "--player", "p1", "--resume", "--prompts", "2,3")
	require.Equal(t, ExitSuccess, code, out)
	var summary PlaySummary
	decodeData(t, out, &summary)
	assert.True(t, summary.Resumed)
	assert.Equal(t, 2, summary.Accepted)
	assert.Equal(t, 20, summary.Session.ElapsedSeconds)
	assert.True(t, summary.Result.Record.Completed)
}

func TestPlay_WrongCellsAndFinish(t *testing.T) {
	db := tempDB(t)

	out, _, code := runCLI(t, db, "--format", "json", "play", smallDeck, "--player", "p1", "--prompts", "0,1,2,3", "--cells", "3,0", "--finish")
	require.Equal(t, ExitSuccess, code, out)
	var summary PlaySummary
	decodeData(t, out, &summary)
	assert.Equal(t, 1, summary.Rejected)
	assert.Equal(t, 1, summary.Accepted)
	assert.False(t, summary.Session.Complete)
	assert.True(t, summary.Result.Record.Completed, "--finish banks the run")
}

func TestPlay_BadDeck(t *testing.T) {
	_, stderr, code := runCLI(t, tempDB(t), "play", filepath.Join("..", "content", "testdata", "bad_side.cue"), "--player", "p1")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "failed to load deck")
}
