// Package store provides SQLite-backed persistence for progress rows.
//
// A row is one persisted canonical record for a (player, module) pair. The
// store implements the four row operations the coordinator needs (Select,
// InsertRow, UpdateRow, DeleteRows) plus the read queries behind the CLI
// (Leaderboard, DuplicateKeys).
//
// The store never interprets rows. It does not enforce one row per key and
// does not validate histories; decoding failures are reported on the row
// (record.Row.DecodeErr) so the caller can classify and repair them.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - Timestamps are unix nanoseconds (INTEGER), UTC
//   - Histories are JSON arrays (TEXT), progress is canonical JSON (TEXT)
package store
