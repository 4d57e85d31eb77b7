package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/playledger/internal/record"
)

// DefaultCheckpointInterval is how often an Autosaver writes during play.
const DefaultCheckpointInterval = 30 * time.Second

// Saver is the write side of a Coordinator.
type Saver interface {
	Checkpoint(ctx context.Context, playerID, moduleID string, a record.AttemptRecord) (Result, error)
	Finalize(ctx context.Context, playerID, moduleID string, a record.AttemptRecord) (Result, error)
}

// Autosaver checkpoints one play session periodically.
//
// Offers are coalesced: only the most recent pending attempt is kept, so a
// slow store sees at most one write per interval. Checkpoint failures are
// logged and never surface to the game loop; the attempt stays pending
// unless a newer one replaced it meanwhile. Flush finalizes.
type Autosaver struct {
	saver    Saver
	playerID string
	moduleID string
	interval time.Duration
	log      *slog.Logger

	mu        sync.Mutex
	pending   *record.AttemptRecord
	coalesced int
}

// NewAutosaver returns an Autosaver for one (player, module) session.
// A non-positive interval selects DefaultCheckpointInterval.
func NewAutosaver(s Saver, playerID, moduleID string, interval time.Duration, log *slog.Logger) *Autosaver {
	if interval <= 0 {
		interval = DefaultCheckpointInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Autosaver{
		saver:    s,
		playerID: playerID,
		moduleID: moduleID,
		interval: interval,
		log:      log,
	}
}

// Offer queues a checkpoint, replacing any pending one.
func (a *Autosaver) Offer(att record.AttemptRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending != nil {
		a.coalesced++
	}
	a.pending = &att
}

// Pending reports whether a checkpoint is waiting to be written.
func (a *Autosaver) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending != nil
}

// Coalesced returns how many offers were replaced before being written.
func (a *Autosaver) Coalesced() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.coalesced
}

// SaveNow writes the pending checkpoint, if any.
func (a *Autosaver) SaveNow(ctx context.Context) error {
	a.mu.Lock()
	att := a.pending
	a.pending = nil
	a.mu.Unlock()
	if att == nil {
		return nil
	}

	res, err := a.saver.Checkpoint(ctx, a.playerID, a.moduleID, *att)
	if err != nil {
		a.mu.Lock()
		if a.pending == nil {
			a.pending = att
		}
		a.mu.Unlock()
		a.log.Warn("checkpoint failed",
			slog.String("player_id", a.playerID),
			slog.String("module_id", a.moduleID),
			slog.Any("error", err))
		return err
	}
	a.log.Debug("checkpoint saved",
		slog.String("player_id", a.playerID),
		slog.String("module_id", a.moduleID),
		slog.String("outcome", string(res.Outcome)))
	return nil
}

// Run writes pending checkpoints every interval until ctx is done.
func (a *Autosaver) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = a.SaveNow(ctx)
		}
	}
}

// Flush drops any pending checkpoint and finalizes final.
func (a *Autosaver) Flush(ctx context.Context, final record.AttemptRecord) (Result, error) {
	a.mu.Lock()
	a.pending = nil
	a.mu.Unlock()
	return a.saver.Finalize(ctx, a.playerID, a.moduleID, final)
}
