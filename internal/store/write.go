package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/playledger/internal/errs"
	"github.com/roach88/playledger/internal/record"
)

// InsertRow inserts a new progress row and returns its id.
// An empty row.ID is replaced by a fresh UUIDv7.
//
// No uniqueness is enforced on (player_id, module_id); a racing insert for
// the same key produces a second row for the coordinator to clean up.
func (s *Store) InsertRow(ctx context.Context, row record.Row) (string, error) {
	if row.ID == "" {
		row.ID = s.newID()
	}

	scoreHistory, err := marshalHistory(row.ScoreHistory)
	if err != nil {
		return "", fmt.Errorf("insert row: %w", err)
	}
	timeHistory, err := marshalHistory(row.TimeHistory)
	if err != nil {
		return "", fmt.Errorf("insert row: %w", err)
	}
	progress, err := marshalProgress(row.Progress)
	if err != nil {
		return "", fmt.Errorf("insert row: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO progress_rows
		(id, player_id, module_id, score, time, score_history, time_history, progress, is_completed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		row.ID,
		row.PlayerID,
		row.ModuleID,
		row.Score,
		row.Time,
		scoreHistory,
		timeHistory,
		progress,
		row.IsCompleted,
		toNanos(row.CreatedAt),
		toNanos(row.UpdatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("insert row: %w", err)
	}

	return row.ID, nil
}

// UpdateRow overwrites the mutable columns of a row.
// Returns an error matching errs.ErrRowNotFound when no row has the id.
func (s *Store) UpdateRow(ctx context.Context, id string, f record.RowFields) error {
	scoreHistory, err := marshalHistory(f.ScoreHistory)
	if err != nil {
		return fmt.Errorf("update row %s: %w", id, err)
	}
	timeHistory, err := marshalHistory(f.TimeHistory)
	if err != nil {
		return fmt.Errorf("update row %s: %w", id, err)
	}
	progress, err := marshalProgress(f.Progress)
	if err != nil {
		return fmt.Errorf("update row %s: %w", id, err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE progress_rows
		SET score = ?, time = ?, score_history = ?, time_history = ?,
		    progress = ?, is_completed = ?, updated_at = ?
		WHERE id = ?
	`,
		f.Score,
		f.Time,
		scoreHistory,
		timeHistory,
		progress,
		f.IsCompleted,
		toNanos(f.UpdatedAt),
		id,
	)
	if err != nil {
		return fmt.Errorf("update row %s: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update row %s: rows affected: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("update row %s: %w", id, errs.ErrRowNotFound)
	}
	return nil
}

// DeleteRows removes rows by id in a single transaction.
// Unknown ids are ignored.
func (s *Store) DeleteRows(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete rows: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM progress_rows WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("delete rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete rows: commit: %w", err)
	}
	return nil
}
