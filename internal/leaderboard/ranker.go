// Package leaderboard ranks players by their best completed attempt.
//
// Two rankers are provided. SQLRanker reads standings straight from the row
// store. RedisRanker mirrors finalized records into a sorted set per module
// so reads never touch the row store. Both satisfy syncer.Publisher and can be
// handed to the coordinator with syncer.WithPublisher.
package leaderboard

import (
	"cmp"
	"context"
	"slices"

	"github.com/roach88/playledger/internal/record"
)

// Ranker publishes finalized records and answers top-N queries.
type Ranker interface {
	Publish(ctx context.Context, rec record.CanonicalRecord) error
	Remove(ctx context.Context, playerID, moduleID string) error
	Top(ctx context.Context, moduleID string, limit int) ([]record.Standing, error)
}

// Source is a store that can compute standings itself.
type Source interface {
	Leaderboard(ctx context.Context, moduleID string, limit int) ([]record.Standing, error)
}

// SQLRanker answers from the row store. Publish and Remove are no-ops since
// the store already holds every finalized record.
type SQLRanker struct {
	src Source
}

// NewSQLRanker returns a ranker reading from src.
func NewSQLRanker(src Source) *SQLRanker {
	return &SQLRanker{src: src}
}

func (r *SQLRanker) Publish(context.Context, record.CanonicalRecord) error { return nil }

func (r *SQLRanker) Remove(context.Context, string, string) error { return nil }

// Top returns up to limit standings, best first. A non-positive limit
// returns every player.
func (r *SQLRanker) Top(ctx context.Context, moduleID string, limit int) ([]record.Standing, error) {
	return r.src.Leaderboard(ctx, moduleID, limit)
}

// SortStandings orders standings best first: higher score, then faster
// time, then player id.
func SortStandings(s []record.Standing) {
	slices.SortStableFunc(s, func(a, b record.Standing) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Time, b.Time); c != 0 {
			return c
		}
		return cmp.Compare(a.PlayerID, b.PlayerID)
	})
}
