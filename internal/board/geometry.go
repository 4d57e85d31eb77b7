package board

import (
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/playledger/internal/errs"
)

// MaxSide bounds the board side to keep pattern scans trivially cheap.
const MaxSide = 9

// LinePattern is an ordered sequence of cell indexes forming one winning line.
type LinePattern []int

// Key returns a canonical identity for the pattern's index set.
// Two patterns with the same indexes in any order share a key.
func (p LinePattern) Key() string {
	sorted := slices.Clone(p)
	slices.Sort(sorted)
	parts := make([]string, len(sorted))
	for i, idx := range sorted {
		parts[i] = strconv.Itoa(idx)
	}
	return strings.Join(parts, ",")
}

// Geometry describes a square board and its precomputed line patterns.
// It is immutable after construction.
type Geometry struct {
	side     int
	patterns []LinePattern
}

// NewGeometry builds the row, column and diagonal patterns for a side×side board.
func NewGeometry(side int) (Geometry, error) {
	if side < 1 || side > MaxSide {
		return Geometry{}, errs.Validation("board.geometry", "side must be between 1 and %d, got %d", MaxSide, side)
	}

	patterns := make([]LinePattern, 0, 2*side+2)
	for r := 0; r < side; r++ {
		row := make(LinePattern, side)
		for c := 0; c < side; c++ {
			row[c] = r*side + c
		}
		patterns = append(patterns, row)
	}
	for c := 0; c < side; c++ {
		col := make(LinePattern, side)
		for r := 0; r < side; r++ {
			col[r] = r*side + c
		}
		patterns = append(patterns, col)
	}

	// On a 1×1 board every pattern is the same single cell; keep one.
	if side > 1 {
		diag := make(LinePattern, side)
		anti := make(LinePattern, side)
		for i := 0; i < side; i++ {
			diag[i] = i*side + i
			anti[i] = i*side + (side - 1 - i)
		}
		patterns = append(patterns, diag, anti)
	} else {
		patterns = patterns[:1]
	}

	return Geometry{side: side, patterns: patterns}, nil
}

// Side returns the board side length.
func (g Geometry) Side() int { return g.side }

// CellCount returns the number of cells (side²).
func (g Geometry) CellCount() int { return g.side * g.side }

// Patterns returns a copy of the line patterns.
func (g Geometry) Patterns() []LinePattern {
	out := make([]LinePattern, len(g.patterns))
	for i, p := range g.patterns {
		out[i] = slices.Clone(p)
	}
	return out
}

// PatternCount returns the total number of line patterns.
func (g Geometry) PatternCount() int { return len(g.patterns) }
