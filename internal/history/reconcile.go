// Package history computes the next canonical record from the persisted one
// and a new attempt. It is the only place that decides which scores are kept.
//
// Every write path in the module goes through Reconcile (single records) or
// Merge (folding duplicate rows), so "keep the best" has exactly one meaning.
package history

import (
	"slices"

	"github.com/roach88/playledger/internal/record"
)

// Pair is one leaderboard entry: a score and the time it took.
type Pair struct {
	Score int
	Time  int
}

// Pairs zips index-aligned score and time histories. Extra entries on the
// longer side are ignored.
func Pairs(scores, times []int) []Pair {
	n := min(len(scores), len(times))
	out := make([]Pair, n)
	for i := 0; i < n; i++ {
		out[i] = Pair{Score: scores[i], Time: times[i]}
	}
	return out
}

// Merge dedupes pairs by score (earliest occurrence wins), sorts them by score
// descending and keeps the top record.HistoryLimit.
func Merge(pairs ...Pair) []Pair {
	seen := make(map[int]struct{}, len(pairs))
	out := make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		if _, dup := seen[p.Score]; dup {
			continue
		}
		seen[p.Score] = struct{}{}
		out = append(out, p)
	}
	slices.SortStableFunc(out, func(a, b Pair) int {
		return b.Score - a.Score
	})
	if len(out) > record.HistoryLimit {
		out = out[:record.HistoryLimit]
	}
	return out
}

// Split unzips pairs into index-aligned score and time histories.
// Empty input yields empty, non-nil slices.
func Split(pairs []Pair) (scores, times []int) {
	scores = make([]int, len(pairs))
	times = make([]int, len(pairs))
	for i, p := range pairs {
		scores[i] = p.Score
		times[i] = p.Time
	}
	return scores, times
}

// Reconcile computes the canonical record that results from applying attempt
// a on top of existing (nil when the key has no record yet).
//
// Completed attempts enter the top-K history; the current score and time
// always track the best entry, not the latest. Checkpoints leave the history
// alone and carry the live values, except that a record with history keeps its
// current score pinned to the best entry. The progress snapshot always comes
// from the attempt, and completion is sticky.
//
// Reconcile is pure and idempotent: applying the same attempt twice yields
// the same record as applying it once.
func Reconcile(existing *record.CanonicalRecord, a record.AttemptRecord) record.CanonicalRecord {
	var next record.CanonicalRecord
	if existing != nil {
		next = existing.Clone()
	} else {
		next = record.CanonicalRecord{
			PlayerID:     a.PlayerID,
			ModuleID:     a.ModuleID,
			ScoreHistory: []int{},
			TimeHistory:  []int{},
			CreatedAt:    a.Timestamp,
		}
	}
	if next.ScoreHistory == nil {
		next.ScoreHistory = []int{}
	}
	if next.TimeHistory == nil {
		next.TimeHistory = []int{}
	}

	if a.Completed {
		pairs := append(Pairs(next.ScoreHistory, next.TimeHistory), Pair{Score: a.Score, Time: a.ElapsedSeconds})
		next.ScoreHistory, next.TimeHistory = Split(Merge(pairs...))
		next.CurrentScore = next.ScoreHistory[0]
		next.CurrentTime = next.TimeHistory[0]
	} else if len(next.ScoreHistory) > 0 {
		next.CurrentScore = next.ScoreHistory[0]
		next.CurrentTime = next.TimeHistory[0]
	} else {
		next.CurrentScore = a.Score
		next.CurrentTime = a.ElapsedSeconds
	}

	next.Completed = next.Completed || a.Completed
	next.Progress = slices.Clone(a.Progress)
	if a.Timestamp.After(next.UpdatedAt) {
		next.UpdatedAt = a.Timestamp
	}
	return next
}

// Fold merges the histories of several canonical records into survivor.
// Used when duplicate rows are collapsed: survivor keeps its id, progress and
// timestamps; history pairs from every record pass through Merge with the
// survivor's pairs first; completion is the OR of all records.
func Fold(survivor record.CanonicalRecord, others ...record.CanonicalRecord) record.CanonicalRecord {
	out := survivor.Clone()
	pairs := Pairs(out.ScoreHistory, out.TimeHistory)
	for _, o := range others {
		pairs = append(pairs, Pairs(o.ScoreHistory, o.TimeHistory)...)
		out.Completed = out.Completed || o.Completed
	}
	merged := Merge(pairs...)
	out.ScoreHistory, out.TimeHistory = Split(merged)
	if len(merged) > 0 {
		out.CurrentScore = merged[0].Score
		out.CurrentTime = merged[0].Time
	}
	return out
}
