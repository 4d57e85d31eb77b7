package leaderboard

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/playledger/internal/record"
)

// newTestRedisRanker connects to PLAYLEDGER_TEST_REDIS_ADDR under a fresh
// key prefix. Tests skip when the variable is unset.
func newTestRedisRanker(t *testing.T) *RedisRanker {
	t.Helper()
	addr := os.Getenv("PLAYLEDGER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PLAYLEDGER_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb, err := DialRedis(ctx, addr)
	require.NoError(t, err)

	r := NewRedisRanker(rdb, "playledger-test-"+uuid.NewString())
	t.Cleanup(func() {
		iter := rdb.Scan(ctx, 0, r.prefix+":*", 100).Iterator()
		for iter.Next(ctx) {
			rdb.Del(ctx, iter.Val())
		}
		rdb.Close()
	})
	return r
}

func completed(player string, score, secs int) record.CanonicalRecord {
	return record.CanonicalRecord{
		PlayerID:     player,
		ModuleID:     "m1",
		CurrentScore: score,
		CurrentTime:  secs,
		ScoreHistory: []int{score},
		TimeHistory:  []int{secs},
		Completed:    true,
		UpdatedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRedisRanker_PublishTopRemove(t *testing.T) {
	ctx := context.Background()
	r := newTestRedisRanker(t)

	for _, rec := range []record.CanonicalRecord{
		completed("alice", 90, 50),
		completed("bob", 120, 80),
		completed("carol", 90, 40),
	} {
		require.NoError(t, r.Publish(ctx, rec))
	}
	inProgress := completed("erin", 999, 1)
	inProgress.Completed = false
	require.NoError(t, r.Publish(ctx, inProgress))

	top, err := r.Top(ctx, "m1", 0)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, "bob", top[0].PlayerID)
	assert.Equal(t, "carol", top[1].PlayerID)
	assert.Equal(t, 40, top[1].Time)
	assert.Equal(t, "alice", top[2].PlayerID)

	// A later publish replaces the player's entry.
	require.NoError(t, r.Publish(ctx, completed("alice", 200, 70)))
	top, err = r.Top(ctx, "m1", 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "alice", top[0].PlayerID)
	assert.Equal(t, 200, top[0].Score)

	require.NoError(t, r.Remove(ctx, "alice", "m1"))
	top, err = r.Top(ctx, "m1", 0)
	require.NoError(t, err)
	assert.Len(t, top, 2)
}

func TestRedisRanker_EmptyBoard(t *testing.T) {
	top, err := newTestRedisRanker(t).Top(context.Background(), "nothing", 10)
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestDialRedis_RequiresAddress(t *testing.T) {
	_, err := DialRedis(context.Background(), "  ")
	assert.Error(t, err)
}

func TestPackScore_OrdersAndRoundTrips(t *testing.T) {
	assert.Greater(t, packScore(91, 500), packScore(90, 1))
	assert.Greater(t, packScore(90, 40), packScore(90, 50), "faster time ranks higher")

	score, secs := unpackScore(packScore(950, 103))
	assert.Equal(t, 950, score)
	assert.Equal(t, 103, secs)

	_, secs = unpackScore(packScore(10, maxEncodedTime+500))
	assert.Equal(t, maxEncodedTime, secs, "slow times clamp to the slowest slot")
}

func TestPackScore_PrecisionLimit(t *testing.T) {
	score, secs := unpackScore(packScore(maxEncodedScore, 7))
	assert.Equal(t, maxEncodedScore, score)
	assert.Equal(t, 7, secs, "the largest score still keeps an exact time")

	assert.Greater(t, packScore(maxEncodedScore, 7), packScore(maxEncodedScore-1, 7))
	assert.Equal(t, packScore(maxEncodedScore, 7), packScore(1<<40, 7), "larger scores clamp instead of losing the time bits")

	score, secs = unpackScore(packScore(1<<40, 7))
	assert.Equal(t, maxEncodedScore, score)
	assert.Equal(t, 7, secs)
}
