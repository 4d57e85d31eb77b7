// Package harness runs YAML scenarios against the real coordinator.
//
// A scenario names a player, a module and optionally a deck. Its flow drives
// a board session (start, answer, select, tick) and the persistence layer
// (checkpoint, finalize, submit, autosave, cleanup, reset). Rows can be seeded
// directly into the store first, which is how racing writers and corrupt rows
// are simulated.
//
// Each scenario runs against a fresh in-memory SQLite store with a
// deterministic clock and session ids, so the trace it produces is
// reproducible and can be compared against a golden file:
//
//	result, err := harness.Run(scenario)
//	harness.AssertGolden(t, scenario.Name, result)
//
// Golden files live in testdata/golden/{name}.golden. Regenerate them with:
//
//	go test ./internal/harness -update
package harness
