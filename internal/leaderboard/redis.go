package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/playledger/internal/record"
)

// timeBits is the width reserved for the inverted time in a sorted-set
// score. A float64 holds 53 bits exactly, which leaves 33 for the score.
const timeBits = 20

const (
	maxEncodedTime  = 1<<timeBits - 1
	maxEncodedScore = 1<<(53-timeBits) - 1
)

// RedisRanker mirrors finalized records into Redis. Each module has a sorted
// set keyed by player whose score packs the best score and the inverted time,
// and a hash holding the exact time and update instant.
type RedisRanker struct {
	rdb    *redis.Client
	prefix string
}

// DialRedis connects to addr, which is either host:port or a redis:// URL.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis address required")
	}
	opts := &redis.Options{Addr: addr}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// NewRedisRanker returns a ranker whose keys start with prefix.
// An empty prefix defaults to "playledger".
func NewRedisRanker(rdb *redis.Client, prefix string) *RedisRanker {
	if prefix == "" {
		prefix = "playledger"
	}
	return &RedisRanker{rdb: rdb, prefix: prefix}
}

type entryMeta struct {
	Score     int   `json:"score"`
	Time      int   `json:"time"`
	UpdatedAt int64 `json:"updated_at"`
}

// Publish records the current best of a completed record. Records that were
// never completed are ignored.
func (r *RedisRanker) Publish(ctx context.Context, rec record.CanonicalRecord) error {
	if !rec.Completed || len(rec.ScoreHistory) == 0 {
		return nil
	}
	m := entryMeta{Score: rec.CurrentScore, Time: rec.CurrentTime}
	if !rec.UpdatedAt.IsZero() {
		m.UpdatedAt = rec.UpdatedAt.UnixNano()
	}
	meta, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("publish %s/%s: %w", rec.PlayerID, rec.ModuleID, err)
	}
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, r.boardKey(rec.ModuleID), redis.Z{
			Score:  packScore(rec.CurrentScore, rec.CurrentTime),
			Member: rec.PlayerID,
		})
		p.HSet(ctx, r.metaKey(rec.ModuleID), rec.PlayerID, meta)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish %s/%s: %w", rec.PlayerID, rec.ModuleID, err)
	}
	return nil
}

// Remove drops a player from a module's board.
func (r *RedisRanker) Remove(ctx context.Context, playerID, moduleID string) error {
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, r.boardKey(moduleID), playerID)
		p.HDel(ctx, r.metaKey(moduleID), playerID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove %s/%s: %w", playerID, moduleID, err)
	}
	return nil
}

// Top returns up to limit standings, best first.
func (r *RedisRanker) Top(ctx context.Context, moduleID string, limit int) ([]record.Standing, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	zs, err := r.rdb.ZRevRangeWithScores(ctx, r.boardKey(moduleID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("top %s: %w", moduleID, err)
	}
	out := make([]record.Standing, 0, len(zs))
	if len(zs) == 0 {
		return out, nil
	}

	players := make([]string, len(zs))
	for i, z := range zs {
		players[i], _ = z.Member.(string)
	}
	metas, err := r.rdb.HMGet(ctx, r.metaKey(moduleID), players...).Result()
	if err != nil {
		return nil, fmt.Errorf("top %s: %w", moduleID, err)
	}

	for i, z := range zs {
		score, t := unpackScore(z.Score)
		st := record.Standing{PlayerID: players[i], ModuleID: moduleID, Score: score, Time: t}
		if raw, ok := metas[i].(string); ok {
			var m entryMeta
			if err := json.Unmarshal([]byte(raw), &m); err == nil {
				st.Time = m.Time
				if m.Score > 0 {
					st.Score = m.Score
				}
				if m.UpdatedAt != 0 {
					st.UpdatedAt = time.Unix(0, m.UpdatedAt).UTC()
				}
			}
		}
		out = append(out, st)
	}
	SortStandings(out)
	return out, nil
}

func (r *RedisRanker) boardKey(moduleID string) string {
	return r.prefix + ":board:" + moduleID
}

func (r *RedisRanker) metaKey(moduleID string) string {
	return r.prefix + ":board:" + moduleID + ":meta"
}

// packScore orders by score, then by faster time. Times past the reserved
// width all sort as the slowest, and scores past maxEncodedScore tie at the
// top; the exact values live in the meta hash.
func packScore(score, secs int) float64 {
	score = min(max(score, 0), maxEncodedScore)
	if secs < 0 {
		secs = 0
	}
	if secs > maxEncodedTime {
		secs = maxEncodedTime
	}
	return float64(int64(score)<<timeBits | int64(maxEncodedTime-secs))
}

func unpackScore(f float64) (score, secs int) {
	n := int64(f)
	return int(n >> timeBits), maxEncodedTime - int(n&maxEncodedTime)
}
