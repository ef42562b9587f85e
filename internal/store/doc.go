// Package store provides SQLite-backed durable storage for agentflow threads.
//
// Two tables:
//   - checkpoints: the latest WorkflowState per thread, private fields included
//   - history: append-only flow-log events and NAV snapshots per thread
//
// # Critical Patterns
//
// Logical time:
//   - Checkpoints carry the engine's seq; a save with a seq not greater than
//     the stored one is rejected with ErrStaleCheckpoint
//   - History rows get a per-(thread, category) seq on insert
//
// Idempotent history:
//   - UNIQUE(thread_id, category, id) with ON CONFLICT DO NOTHING
//   - Ids are content-addressed (ir.FlowEventID, ir.NavSnapshotID), so a tick
//     replayed after a crash appends nothing new
//
// Deterministic reads:
//   - History queries use ORDER BY seq ASC, id COLLATE BINARY ASC
//
// Retention:
//   - After each append a category keeps only its newest N rows, with N taken
//     from the store's history.Limits
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
