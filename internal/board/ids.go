package board

import (
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator generates session identifiers.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 session ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined session ids in order.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id.
// Panics once all ids have been consumed, which catches tests that start
// more sessions than they declared.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// Picker chooses the next prompt. It receives the indexes of the unselected
// cells (never empty, ascending) and returns the chosen cell index.
type Picker func(candidates []int) int

// RandomPicker samples uniformly from the candidates.
func RandomPicker(candidates []int) int {
	return candidates[rand.IntN(len(candidates))]
}

// ScriptedPicker returns a Picker that offers the given cell indexes in order,
// skipping any that are no longer candidates. When the script runs out it
// falls back to the lowest candidate.
//
// Used by tests and scenario replays to steer which cell the player answers.
func ScriptedPicker(order ...int) Picker {
	var mu sync.Mutex
	next := 0
	return func(candidates []int) int {
		mu.Lock()
		defer mu.Unlock()
		for next < len(order) {
			want := order[next]
			for _, c := range candidates {
				if c == want {
					return want
				}
			}
			next++
		}
		return candidates[0]
	}
}
