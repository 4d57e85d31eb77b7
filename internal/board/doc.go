// Package board implements the bingo-style win-detection state machine.
//
// A board is an N×N grid of cells, each carrying a Term/Definition payload.
// The engine shows one definition at a time (the prompt); the player selects
// the cell whose definition matches. Every accepted selection rescans the
// board's line patterns (rows, columns, both diagonals) and awards a fixed
// reward for each pattern completed for the first time.
//
// INVARIANTS:
//   - Selected is the only mutable field of a Cell.
//   - A line pattern is recorded as completed at most once per session,
//     compared by index-set equality, never by reference.
//   - A session is complete only when every line pattern has been completed.
//     Selecting every cell is not, by itself, a win.
//
// The engine performs no I/O. Invalid moves return a rejection reason instead
// of an error; the only error path is Initialize with malformed content.
package board
