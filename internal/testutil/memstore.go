package testutil

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/playledger/internal/errs"
	"github.com/roach88/playledger/internal/record"
)

// Op names a store operation for fault injection and call counting.
type Op string

const (
	OpSelect Op = "select"
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// MemStore is an in-memory row store with fault injection.
//
// It satisfies the coordinator's Store interface. Rows are returned in
// insertion order. Queued faults are consumed one per call; hooks run once,
// outside the lock, before the next call of their op executes, which lets
// tests interleave a competing writer between a load and a write.
//
// Thread-safety: All methods are safe for concurrent use.
type MemStore struct {
	mu     sync.Mutex
	rows   map[string]record.Row
	order  []string
	nextID int
	faults map[Op][]error
	hooks  map[Op][]func()
	calls  map[Op]int
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		rows:   make(map[string]record.Row),
		faults: make(map[Op][]error),
		hooks:  make(map[Op][]func()),
		calls:  make(map[Op]int),
	}
}

// Fail queues errors returned by the next calls of op, one per call.
func (m *MemStore) Fail(op Op, errors ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[op] = append(m.faults[op], errors...)
}

// Before registers fn to run once before the next call of op.
func (m *MemStore) Before(op Op, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[op] = append(m.hooks[op], fn)
}

// Calls returns how many times op was invoked, faulted calls included.
func (m *MemStore) Calls(op Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Seed stores rows verbatim, bypassing faults and hooks. Rows without an id
// get a generated one. Returns the ids in order.
func (m *MemStore) Seed(rows ...record.Row) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, m.put(r))
	}
	return ids
}

// Rows returns every stored row in insertion order.
func (m *MemStore) Rows() []record.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]record.Row, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, cloneRow(m.rows[id]))
	}
	return out
}

// Select returns every row for the key.
func (m *MemStore) Select(ctx context.Context, playerID, moduleID string) ([]record.Row, error) {
	if err := m.enter(ctx, OpSelect); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []record.Row
	for _, id := range m.order {
		r := m.rows[id]
		if r.PlayerID == playerID && r.ModuleID == moduleID {
			out = append(out, cloneRow(r))
		}
	}
	return out, nil
}

// InsertRow stores a new row and returns its id.
func (m *MemStore) InsertRow(ctx context.Context, row record.Row) (string, error) {
	if err := m.enter(ctx, OpInsert); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rows[row.ID]; row.ID != "" && exists {
		return "", fmt.Errorf("insert row: id %q already exists", row.ID)
	}
	return m.put(row), nil
}

// UpdateRow overwrites the mutable columns of a row.
// Returns errs.ErrRowNotFound when the row is gone.
func (m *MemStore) UpdateRow(ctx context.Context, id string, f record.RowFields) error {
	if err := m.enter(ctx, OpUpdate); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return fmt.Errorf("update row %s: %w", id, errs.ErrRowNotFound)
	}
	r.Score = f.Score
	r.Time = f.Time
	r.ScoreHistory = slices.Clone(f.ScoreHistory)
	r.TimeHistory = slices.Clone(f.TimeHistory)
	r.Progress = slices.Clone(f.Progress)
	r.IsCompleted = f.IsCompleted
	r.UpdatedAt = f.UpdatedAt
	m.rows[id] = r
	return nil
}

// DeleteRows removes rows by id. Unknown ids are ignored.
func (m *MemStore) DeleteRows(ctx context.Context, ids []string) error {
	if err := m.enter(ctx, OpDelete); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.rows, id)
	}
	m.order = slices.DeleteFunc(m.order, func(id string) bool {
		_, ok := m.rows[id]
		return !ok
	})
	return nil
}

// enter counts the call, runs a pending hook and pops a queued fault.
func (m *MemStore) enter(ctx context.Context, op Op) error {
	m.mu.Lock()
	m.calls[op]++
	var hook func()
	if hs := m.hooks[op]; len(hs) > 0 {
		hook, m.hooks[op] = hs[0], hs[1:]
	}
	var fault error
	if fs := m.faults[op]; len(fs) > 0 {
		fault, m.faults[op] = fs[0], fs[1:]
	}
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	if fault != nil {
		return fault
	}
	return ctx.Err()
}

// put stores r under the lock held by the caller.
func (m *MemStore) put(r record.Row) string {
	for r.ID == "" {
		m.nextID++
		if id := fmt.Sprintf("row-%d", m.nextID); m.rows[id].ID == "" {
			r.ID = id
		}
	}
	if _, exists := m.rows[r.ID]; !exists {
		m.order = append(m.order, r.ID)
	}
	m.rows[r.ID] = cloneRow(r)
	return r.ID
}

func cloneRow(r record.Row) record.Row {
	r.ScoreHistory = slices.Clone(r.ScoreHistory)
	r.TimeHistory = slices.Clone(r.TimeHistory)
	r.Progress = slices.Clone(r.Progress)
	return r
}
