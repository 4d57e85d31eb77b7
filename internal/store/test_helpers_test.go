package store

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/playledger/internal/record"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRow creates a completed row with a one-entry history.
func createTestRow(player, module string, score, secs int) record.Row {
	return record.Row{
		PlayerID:     player,
		ModuleID:     module,
		Score:        score,
		Time:         secs,
		ScoreHistory: []int{score},
		TimeHistory:  []int{secs},
		Progress:     json.RawMessage(`{"score":` + jsonInt(score) + `}`),
		IsCompleted:  true,
		CreatedAt:    t0,
		UpdatedAt:    t0,
	}
}

func jsonInt(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}
