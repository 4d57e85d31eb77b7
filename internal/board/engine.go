package board

import (
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/playledger/internal/errs"
)

// DefaultLineReward is the score awarded per newly completed line.
const DefaultLineReward = 10

// Payload is the immutable content of a cell.
type Payload struct {
	Term       string `json:"term" yaml:"term"`
	Definition string `json:"definition" yaml:"definition"`
}

// Cell is one square of the board. Selected is its only mutable field.
type Cell struct {
	Index    int
	Payload  Payload
	Selected bool
}

// Session is the volatile in-memory state of one game.
type Session struct {
	ID             string
	Cells          []Cell
	CompletedLines []LinePattern
	Score          int
	ElapsedSeconds int
	CurrentPrompt  string
	IsComplete     bool

	completedKeys map[string]struct{}
}

// RejectReason explains why a selection was refused.
type RejectReason string

const (
	RejectNone            RejectReason = ""
	RejectSessionComplete RejectReason = "session_complete"
	RejectOutOfRange      RejectReason = "out_of_range"
	RejectAlreadySelected RejectReason = "already_selected"
	RejectMismatch        RejectReason = "prompt_mismatch"
)

// SelectResult reports the outcome of SelectCell.
type SelectResult struct {
	Accepted   bool
	Reason     RejectReason
	NewLines   []LinePattern
	ScoreDelta int
}

// Engine applies board rules to sessions. An Engine is bound to one geometry
// and may drive any number of sessions; it keeps no per-session state.
type Engine struct {
	geometry   Geometry
	lineReward int
	pick       Picker
	ids        IDGenerator
}

// Option configures an Engine.
type Option func(*Engine)

// WithLineReward sets the score awarded per newly completed line.
func WithLineReward(reward int) Option {
	return func(e *Engine) {
		e.lineReward = reward
	}
}

// WithPicker overrides prompt selection. Defaults to RandomPicker.
func WithPicker(p Picker) Option {
	return func(e *Engine) {
		e.pick = p
	}
}

// WithIDGenerator overrides session id generation. Defaults to UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// New creates an Engine for a side×side board.
func New(side int, opts ...Option) (*Engine, error) {
	g, err := NewGeometry(side)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		geometry:   g,
		lineReward: DefaultLineReward,
		pick:       RandomPicker,
		ids:        UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Geometry returns the engine's board geometry.
func (e *Engine) Geometry() Geometry { return e.geometry }

// Initialize builds a new session from exactly side² content items.
// If freeCell is non-nil that cell starts selected.
func (e *Engine) Initialize(items []Payload, freeCell *int) (*Session, error) {
	want := e.geometry.CellCount()
	if len(items) != want {
		return nil, errs.Validation("board.initialize", "board needs exactly %d content items, got %d", want, len(items))
	}
	for i, it := range items {
		if normalize(it.Definition) == "" {
			return nil, errs.Validation("board.initialize", "item %d has an empty definition", i)
		}
	}
	if freeCell != nil && (*freeCell < 0 || *freeCell >= want) {
		return nil, errs.Validation("board.initialize", "free cell %d out of range [0,%d)", *freeCell, want)
	}

	s := &Session{
		ID:            e.ids.Generate(),
		Cells:         make([]Cell, want),
		completedKeys: make(map[string]struct{}),
	}
	for i, it := range items {
		s.Cells[i] = Cell{Index: i, Payload: it}
	}

	if freeCell != nil {
		s.Cells[*freeCell].Selected = true
		// Only reachable on a 1×1 board, but the scan keeps the rules uniform.
		s.Score += e.lineReward * len(e.scanLines(s))
		e.updateCompletion(s)
	}

	e.nextPrompt(s)
	return s, nil
}

// SelectCell attempts to select the cell at idx against the current prompt.
// Rejections leave the session untouched.
func (e *Engine) SelectCell(s *Session, idx int) SelectResult {
	switch {
	case s.IsComplete:
		return SelectResult{Reason: RejectSessionComplete}
	case idx < 0 || idx >= len(s.Cells):
		return SelectResult{Reason: RejectOutOfRange}
	case s.Cells[idx].Selected:
		return SelectResult{Reason: RejectAlreadySelected}
	case s.CurrentPrompt == "" || normalize(s.Cells[idx].Payload.Definition) != normalize(s.CurrentPrompt):
		return SelectResult{Reason: RejectMismatch}
	}

	s.Cells[idx].Selected = true
	e.nextPrompt(s)

	lines := e.scanLines(s)
	delta := e.lineReward * len(lines)
	s.Score += delta
	e.updateCompletion(s)

	return SelectResult{Accepted: true, NewLines: lines, ScoreDelta: delta}
}

// Tick advances the session clock. Completed sessions stop counting.
func (e *Engine) Tick(s *Session, seconds int) {
	if s.IsComplete || seconds <= 0 {
		return
	}
	s.ElapsedSeconds += seconds
}

// PromptCell returns the index of an unselected cell matching the prompt, or -1.
func (e *Engine) PromptCell(s *Session) int {
	if s.CurrentPrompt == "" {
		return -1
	}
	want := normalize(s.CurrentPrompt)
	for _, c := range s.Cells {
		if !c.Selected && normalize(c.Payload.Definition) == want {
			return c.Index
		}
	}
	return -1
}

// scanLines records and returns the patterns completed for the first time.
func (e *Engine) scanLines(s *Session) []LinePattern {
	if s.completedKeys == nil {
		s.completedKeys = make(map[string]struct{}, len(s.CompletedLines))
		for _, p := range s.CompletedLines {
			s.completedKeys[p.Key()] = struct{}{}
		}
	}

	var fresh []LinePattern
	for _, p := range e.geometry.patterns {
		if !allSelected(s, p) {
			continue
		}
		key := p.Key()
		if _, done := s.completedKeys[key]; done {
			continue
		}
		s.completedKeys[key] = struct{}{}
		line := slices.Clone(p)
		s.CompletedLines = append(s.CompletedLines, line)
		fresh = append(fresh, line)
	}
	return fresh
}

func (e *Engine) updateCompletion(s *Session) {
	if len(s.CompletedLines) >= e.geometry.PatternCount() {
		s.IsComplete = true
	}
}

// nextPrompt samples the next definition from the unselected cells.
// An exhausted board clears the prompt without marking completion.
func (e *Engine) nextPrompt(s *Session) {
	var candidates []int
	for _, c := range s.Cells {
		if !c.Selected {
			candidates = append(candidates, c.Index)
		}
	}
	if len(candidates) == 0 {
		s.CurrentPrompt = ""
		return
	}
	s.CurrentPrompt = s.Cells[e.pick(candidates)].Payload.Definition
}

func allSelected(s *Session, p LinePattern) bool {
	for _, idx := range p {
		if !s.Cells[idx].Selected {
			return false
		}
	}
	return true
}

// normalize collapses internal whitespace, trims the ends and applies NFC.
// Case is preserved: prompt matching is case-sensitive.
func normalize(text string) string {
	return strings.Join(strings.Fields(norm.NFC.String(text)), " ")
}
