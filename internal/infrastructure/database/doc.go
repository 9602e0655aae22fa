// Package database provides SQLite connectivity for FieldComm Core.
//
// This package manages:
//   - Connection lifecycle with WAL mode and busy timeout
//   - Embedded SQL schema migrations
//   - Health checks for readiness probes
//
// SQLite is used for durable pipeline state: device registration records
// and batch operation progress. The single-writer connection pool matches
// SQLite's locking model.
package database
