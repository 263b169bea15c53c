// Package sqlite provides a SQLite-based implementation of the document
// store and change queue ports.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. Both ports share one database:
//
//   - DocumentStore: serialised documents keyed by content/<type>/<id>.json
//   - ChangeQueue: an outbox of change notifications written in the same
//     transaction as each document mutation
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.knowledge/data/knowledge.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode.
package sqlite
