// Package postgres is the PostgreSQL backend for progress rows.
//
// It exposes the same operations as the SQLite store and uses the same
// column encoding: unix-nanosecond timestamps, JSON TEXT histories and
// canonical JSON progress. Connections come from a pgxpool.Pool.
package postgres
