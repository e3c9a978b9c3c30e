// Package sqlite provides a SQLite-based contact sink and progress store.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. A single Store implements both
// driven.Sink and driven.ProgressStore over one database connection.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
// Contacts are unique per (run_id, entity_id, partition_id); identifiers and
// origins are stored as JSON arrays.
//
// # Data Location
//
// By default, the database is stored at ~/.devtrawl/data/devtrawl.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode.
package sqlite
