// Package store is the SQLite run ledger.
//
// Every pinefarm run is recorded with its dataset, theory, provider, output
// folder and final status, together with the version map that was written
// into the grid metadata. Runs are listed in insertion order using a logical
// sequence number, never wall time.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
package store
