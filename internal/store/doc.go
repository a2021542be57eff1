// Package store is a SQLite journal of scheduler activity.
//
// Each process run records one row in runs, then appends a row to
// executions for every finished action (exit actions included) and a row to
// snapshots for every periodic world-state dump. The journal is an audit
// trail: nothing in the scheduler reads it back, and a restarted process
// starts from fresh state.
//
// # Ordering
//
// Rows are ordered by their AUTOINCREMENT seq, which follows insertion
// order. Timestamps are stored as unix nanoseconds and never used for
// ordering.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
