package board

import (
	"slices"

	"github.com/roach88/playledger/internal/errs"
)

// Snapshot is the structural progress of a session: enough to resume it
// against the same content after a reload.
type Snapshot struct {
	SessionID      string  `json:"session_id"`
	Side           int     `json:"side"`
	Selected       []int   `json:"selected"`
	CompletedLines [][]int `json:"completed_lines"`
	Score          int     `json:"score"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	Complete       bool    `json:"complete"`
}

// Snapshot captures the session's progress. Slices are copies.
func (s *Session) Snapshot() Snapshot {
	selected := []int{}
	for _, c := range s.Cells {
		if c.Selected {
			selected = append(selected, c.Index)
		}
	}
	lines := make([][]int, len(s.CompletedLines))
	for i, p := range s.CompletedLines {
		lines[i] = slices.Clone([]int(p))
	}
	side := 0
	for side*side < len(s.Cells) {
		side++
	}
	return Snapshot{
		SessionID:      s.ID,
		Side:           side,
		Selected:       selected,
		CompletedLines: lines,
		Score:          s.Score,
		ElapsedSeconds: s.ElapsedSeconds,
		Complete:       s.IsComplete,
	}
}

// Resume rebuilds a session from content items and a snapshot.
// Completed lines are recomputed from the selected cells rather than trusted,
// and the score is derived from them, so a tampered snapshot cannot claim
// lines or points it never earned.
func (e *Engine) Resume(items []Payload, snap Snapshot) (*Session, error) {
	if snap.Side != e.geometry.Side() {
		return nil, errs.Validation("board.resume", "snapshot side %d does not match board side %d", snap.Side, e.geometry.Side())
	}
	want := e.geometry.CellCount()
	if len(items) != want {
		return nil, errs.Validation("board.resume", "board needs exactly %d content items, got %d", want, len(items))
	}

	s := &Session{
		ID:             snap.SessionID,
		Cells:          make([]Cell, want),
		ElapsedSeconds: snap.ElapsedSeconds,
		completedKeys:  make(map[string]struct{}),
	}
	if s.ID == "" {
		s.ID = e.ids.Generate()
	}
	for i, it := range items {
		s.Cells[i] = Cell{Index: i, Payload: it}
	}
	for _, idx := range snap.Selected {
		if idx < 0 || idx >= want {
			return nil, errs.Validation("board.resume", "selected cell %d out of range [0,%d)", idx, want)
		}
		s.Cells[idx].Selected = true
	}

	// Replay the snapshot's line order first so CompletedLines keeps it,
	// then pick up anything the selection implies but the snapshot missed.
	for _, line := range snap.CompletedLines {
		p := LinePattern(line)
		if !e.isPattern(p) || !allSelected(s, p) {
			continue
		}
		if _, dup := s.completedKeys[p.Key()]; dup {
			continue
		}
		s.completedKeys[p.Key()] = struct{}{}
		s.CompletedLines = append(s.CompletedLines, slices.Clone(p))
	}
	e.scanLines(s)
	s.Score = e.lineReward * len(s.CompletedLines)
	e.updateCompletion(s)
	e.nextPrompt(s)
	return s, nil
}

func (e *Engine) isPattern(p LinePattern) bool {
	key := p.Key()
	for _, q := range e.geometry.patterns {
		if q.Key() == key && len(q) == len(p) {
			return true
		}
	}
	return false
}
