package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/playledger/internal/record"
)

// Select returns every row for the key, ordered by created_at then id.
// Returns an empty slice (not nil) when the key has no rows.
//
// Columns that fail to decode do not fail the query; the row comes back with
// DecodeErr set so the caller can classify and delete it.
func (s *Store) Select(ctx context.Context, playerID, moduleID string) ([]record.Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, player_id, module_id, score, time, score_history, time_history,
		       progress, is_completed, created_at, updated_at
		FROM progress_rows
		WHERE player_id = ? AND module_id = ?
		ORDER BY created_at ASC, id COLLATE BINARY ASC
	`, playerID, moduleID)
	if err != nil {
		return nil, fmt.Errorf("select rows: %w", err)
	}
	defer rows.Close()

	out := []record.Row{}
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Leaderboard returns each player's best completed result for a module,
// best first: higher score, then faster time, then player id.
// A non-positive limit returns every player.
func (s *Store) Leaderboard(ctx context.Context, moduleID string, limit int) ([]record.Standing, error) {
	if limit <= 0 {
		limit = -1
	}
	// SQLite resolves bare columns in a MAX() aggregate from the row holding
	// the maximum, so time and updated_at belong to the best row.
	rows, err := s.db.QueryContext(ctx, `
		SELECT player_id, MAX(score) AS best, time, updated_at
		FROM progress_rows
		WHERE module_id = ? AND is_completed = 1
		GROUP BY player_id
		ORDER BY best DESC, time ASC, player_id COLLATE BINARY ASC
		LIMIT ?
	`, moduleID, limit)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	out := []record.Standing{}
	for rows.Next() {
		st := record.Standing{ModuleID: moduleID}
		var updated int64
		if err := rows.Scan(&st.PlayerID, &st.Score, &st.Time, &updated); err != nil {
			return nil, fmt.Errorf("scan leaderboard: %w", err)
		}
		st.UpdatedAt = fromNanos(updated)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leaderboard: %w", err)
	}
	return out, nil
}

// DuplicateKeys returns every key holding more than one row.
func (s *Store) DuplicateKeys(ctx context.Context) ([]record.Key, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT player_id, module_id
		FROM progress_rows
		GROUP BY player_id, module_id
		HAVING COUNT(*) > 1
		ORDER BY player_id COLLATE BINARY ASC, module_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query duplicate keys: %w", err)
	}
	defer rows.Close()

	out := []record.Key{}
	for rows.Next() {
		var k record.Key
		if err := rows.Scan(&k.PlayerID, &k.ModuleID); err != nil {
			return nil, fmt.Errorf("scan duplicate key: %w", err)
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate duplicate keys: %w", err)
	}
	return out, nil
}

// scanRow reads one progress row. Decoding problems in JSON columns are
// attached to the row rather than returned.
func scanRow(rows *sql.Rows) (record.Row, error) {
	var (
		r                         record.Row
		scoreHistory, timeHistory string
		progress                  string
		completed                 bool
		created, updated          int64
	)
	err := rows.Scan(
		&r.ID,
		&r.PlayerID,
		&r.ModuleID,
		&r.Score,
		&r.Time,
		&scoreHistory,
		&timeHistory,
		&progress,
		&completed,
		&created,
		&updated,
	)
	if err != nil {
		return record.Row{}, fmt.Errorf("scan row: %w", err)
	}

	r.IsCompleted = completed
	r.CreatedAt = fromNanos(created)
	r.UpdatedAt = fromNanos(updated)
	r.Progress = json.RawMessage(progress)

	var decodeErrs []error
	if r.ScoreHistory, err = unmarshalHistory(scoreHistory); err != nil {
		decodeErrs = append(decodeErrs, fmt.Errorf("score_history: %w", err))
	}
	if r.TimeHistory, err = unmarshalHistory(timeHistory); err != nil {
		decodeErrs = append(decodeErrs, fmt.Errorf("time_history: %w", err))
	}
	r.DecodeErr = errors.Join(decodeErrs...)
	return r, nil
}
