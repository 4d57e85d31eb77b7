package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/roach88/playledger/internal/errs"
	"github.com/roach88/playledger/internal/record"
)

const rowColumns = `id, player_id, module_id, score, time, score_history, time_history,
	progress, is_completed, created_at, updated_at`

// Select returns every row for the key, ordered by created_at then id.
func (s *Store) Select(ctx context.Context, playerID, moduleID string) ([]record.Row, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+rowColumns+`
		FROM progress_rows
		WHERE player_id = $1 AND module_id = $2
		ORDER BY created_at ASC, id COLLATE "C" ASC
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

// InsertRow inserts a row, generating a UUIDv7 id when row.ID is empty.
func (s *Store) InsertRow(ctx context.Context, row record.Row) (string, error) {
	if row.ID == "" {
		row.ID = s.newID()
	}
	enc, err := encode(row.ScoreHistory, row.TimeHistory, row.Progress)
	if err != nil {
		return "", fmt.Errorf("insert row: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO progress_rows (`+rowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		row.ID, row.PlayerID, row.ModuleID, row.Score, row.Time,
		enc.scoreHistory, enc.timeHistory, enc.progress, row.IsCompleted,
		toNanos(row.CreatedAt), toNanos(row.UpdatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("insert row: %w", err)
	}
	return row.ID, nil
}

// UpdateRow overwrites the mutable columns of a row.
// Returns an error matching errs.ErrRowNotFound when no row has the id.
func (s *Store) UpdateRow(ctx context.Context, id string, f record.RowFields) error {
	enc, err := encode(f.ScoreHistory, f.TimeHistory, f.Progress)
	if err != nil {
		return fmt.Errorf("update row %s: %w", id, err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE progress_rows
		SET score = $1, time = $2, score_history = $3, time_history = $4,
		    progress = $5, is_completed = $6, updated_at = $7
		WHERE id = $8
	`,
		f.Score, f.Time, enc.scoreHistory, enc.timeHistory, enc.progress,
		f.IsCompleted, toNanos(f.UpdatedAt), id,
	)
	if err != nil {
		return fmt.Errorf("update row %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update row %s: %w", id, errs.ErrRowNotFound)
	}
	return nil
}

// DeleteRows removes rows by id in one statement. Unknown ids are ignored.
func (s *Store) DeleteRows(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM progress_rows WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("delete rows: %w", err)
	}
	return nil
}

// Leaderboard returns each player's best completed result for a module,
// best first. A non-positive limit returns every player.
func (s *Store) Leaderboard(ctx context.Context, moduleID string, limit int) ([]record.Standing, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT player_id, score, time, updated_at FROM (
			SELECT DISTINCT ON (player_id) player_id, score, time, updated_at
			FROM progress_rows
			WHERE module_id = $1 AND is_completed
			ORDER BY player_id, score DESC, time ASC
		) best
		ORDER BY score DESC, time ASC, player_id COLLATE "C" ASC
		LIMIT $2
	`, moduleID, lim)
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
	rows, err := s.pool.Query(ctx, `
		SELECT player_id, module_id
		FROM progress_rows
		GROUP BY player_id, module_id
		HAVING COUNT(*) > 1
		ORDER BY player_id COLLATE "C", module_id COLLATE "C"
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

func scanRow(rows pgx.Rows) (record.Row, error) {
	var (
		r                         record.Row
		scoreHistory, timeHistory string
		progress                  string
		created, updated          int64
	)
	err := rows.Scan(
		&r.ID, &r.PlayerID, &r.ModuleID, &r.Score, &r.Time,
		&scoreHistory, &timeHistory, &progress, &r.IsCompleted,
		&created, &updated,
	)
	if err != nil {
		return record.Row{}, fmt.Errorf("scan row: %w", err)
	}
	r.CreatedAt = fromNanos(created)
	r.UpdatedAt = fromNanos(updated)
	r.Progress = json.RawMessage(progress)

	var decodeErrs []error
	if r.ScoreHistory, err = decodeHistory(scoreHistory); err != nil {
		decodeErrs = append(decodeErrs, fmt.Errorf("score_history: %w", err))
	}
	if r.TimeHistory, err = decodeHistory(timeHistory); err != nil {
		decodeErrs = append(decodeErrs, fmt.Errorf("time_history: %w", err))
	}
	r.DecodeErr = errors.Join(decodeErrs...)
	return r, nil
}

type encoded struct {
	scoreHistory, timeHistory, progress string
}

func encode(scores, times []int, progress json.RawMessage) (encoded, error) {
	var (
		e   encoded
		err error
	)
	if e.scoreHistory, err = encodeHistory(scores); err != nil {
		return e, err
	}
	if e.timeHistory, err = encodeHistory(times); err != nil {
		return e, err
	}
	if len(progress) == 0 {
		e.progress = "{}"
		return e, nil
	}
	p, err := record.CanonicalizeJSON(progress)
	if err != nil {
		return e, fmt.Errorf("marshal progress: %w", err)
	}
	e.progress = string(p)
	return e, nil
}

func encodeHistory(h []int) (string, error) {
	if h == nil {
		h = []int{}
	}
	data, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("marshal history: %w", err)
	}
	return string(data), nil
}

func decodeHistory(data string) ([]int, error) {
	h := []int{}
	if data == "" {
		return h, nil
	}
	if err := json.Unmarshal([]byte(data), &h); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	if h == nil {
		h = []int{}
	}
	return h, nil
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
