package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/playledger/internal/record"
)

// marshalHistory converts a history slice to JSON TEXT. nil becomes "[]".
func marshalHistory(h []int) (string, error) {
	if h == nil {
		h = []int{}
	}
	data, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("marshal history: %w", err)
	}
	return string(data), nil
}

// unmarshalHistory parses JSON TEXT into a history slice.
func unmarshalHistory(data string) ([]int, error) {
	if data == "" {
		return []int{}, nil
	}
	var h []int
	if err := json.Unmarshal([]byte(data), &h); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	if h == nil {
		h = []int{}
	}
	return h, nil
}

// marshalProgress stores the snapshot as canonical JSON so identical
// snapshots are byte-identical on disk.
func marshalProgress(p json.RawMessage) (string, error) {
	if len(p) == 0 {
		return "{}", nil
	}
	data, err := record.CanonicalizeJSON(p)
	if err != nil {
		return "", fmt.Errorf("marshal progress: %w", err)
	}
	return string(data), nil
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
