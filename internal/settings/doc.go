// Package settings is the shell's persistent key-value settings store.
//
// Drivers:
//   - "file": one JSON document, rewritten atomically on every change
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//   - "memory": process-local, for tests and ephemeral runs
//
// Values are strings at the storage layer; Settings adds typed accessors
// with defaults.
package settings
