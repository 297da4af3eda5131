// Package storage keeps an append-only journal of monitor events and their
// delivery outcomes, for the history command and after-the-fact audits.
//
// The journal is never read back into the monitor: detection state always
// starts fresh on restart.
//
// Drivers:
//   - file: JSON Lines, one entry per line
//   - sqlite: a single table in a SQLite database (modernc.org/sqlite, no cgo)
package storage
