package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/roach88/playledger/internal/record"
	"github.com/roach88/playledger/internal/testutil"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestCoordinator returns a coordinator with fast retries and a silent logger.
func newTestCoordinator(t *testing.T, store Store, opts ...Option) *Coordinator {
	t.Helper()
	base := []Option{
		WithLogger(slog.New(slog.DiscardHandler)),
		WithClock(testutil.NewDeterministicClock(t0.Add(time.Hour), time.Second)),
		WithRetryPolicy(RetryPolicy{MaxTries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}),
		WithCallTimeout(time.Second),
	}
	return New(store, append(base, opts...)...)
}

func attemptAt(score, secs int, completed bool, ts time.Time) record.AttemptRecord {
	return record.AttemptRecord{
		PlayerID:       "p1",
		ModuleID:       "m1",
		Score:          score,
		ElapsedSeconds: secs,
		Completed:      completed,
		Progress:       json.RawMessage(fmt.Sprintf(`{"score":%d}`, score)),
		Timestamp:      ts,
	}
}

func finalRow(id string, score int, updated time.Time) record.Row {
	return record.Row{
		ID:           id,
		PlayerID:     "p1",
		ModuleID:     "m1",
		Score:        score,
		Time:         10,
		ScoreHistory: []int{score},
		TimeHistory:  []int{10},
		Progress:     json.RawMessage(`{}`),
		IsCompleted:  true,
		CreatedAt:    updated,
		UpdatedAt:    updated,
	}
}

// fakePublisher records leaderboard calls.
type fakePublisher struct {
	mu        sync.Mutex
	published []record.CanonicalRecord
	removed   []string
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, rec record.CanonicalRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, rec)
	return p.err
}

func (p *fakePublisher) Remove(_ context.Context, playerID, moduleID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, playerID+"/"+moduleID)
	return p.err
}

// blockingStore wraps a store and blocks Select until the call context ends.
type blockingStore struct {
	Store
}

func (b blockingStore) Select(ctx context.Context, _, _ string) ([]record.Row, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
