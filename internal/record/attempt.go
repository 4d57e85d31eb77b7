package record

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/roach88/playledger/internal/board"
)

// DomainAttempt prefixes attempt fingerprints. The version suffix leaves
// room for a future change of algorithm.
const DomainAttempt = "playledger/attempt/v1"

// Checkpoint snapshots an in-progress session. The resulting attempt never
// touches score history.
func Checkpoint(s *board.Session, playerID, moduleID string, now time.Time) (AttemptRecord, error) {
	return build(s, playerID, moduleID, false, now)
}

// Finalize snapshots a session whose attempt is over, either because the board
// was completed or because the player banked the run. The resulting attempt is
// reconciled into score history.
func Finalize(s *board.Session, playerID, moduleID string, now time.Time) (AttemptRecord, error) {
	return build(s, playerID, moduleID, true, now)
}

func build(s *board.Session, playerID, moduleID string, completed bool, now time.Time) (AttemptRecord, error) {
	progress, err := MarshalCanonical(s.Snapshot())
	if err != nil {
		return AttemptRecord{}, fmt.Errorf("build attempt: %w", err)
	}
	a := AttemptRecord{
		PlayerID:       playerID,
		ModuleID:       moduleID,
		Score:          s.Score,
		ElapsedSeconds: s.ElapsedSeconds,
		Completed:      completed,
		Progress:       progress,
		Timestamp:      now.UTC(),
	}
	if err := a.Validate(); err != nil {
		return AttemptRecord{}, err
	}
	return a, nil
}

// Fingerprint is a content address for the attempt's logical identity:
// who, where, what score, how long, whether final, and the progress bytes.
// The timestamp is excluded so a retried submission of the same attempt
// shares a fingerprint with the original.
//
// Format: hex(SHA256(domain + 0x00 + canonical JSON)).
func (a AttemptRecord) Fingerprint() (string, error) {
	progress, err := CanonicalizeJSON(a.Progress)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	obj := map[string]any{
		"player_id":       a.PlayerID,
		"module_id":       a.ModuleID,
		"score":           a.Score,
		"elapsed_seconds": a.ElapsedSeconds,
		"completed":       a.Completed,
		"progress":        string(progress),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(DomainAttempt))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}
