// Package store provides SQLite-backed durable storage for fiscal documents.
//
// The store is the single source of truth for document state. Nothing else
// caches status: the reconciliation engine, workflows, and CLI all read and
// write through it, so a freshly opened view always sees the latest
// reconciled state.
//
// Concurrency model: status changes are single conditional UPDATE statements
// keyed by (id, current status). Two racing channels (a webhook delivery and
// a poll response) may both decide the same transition; whichever lands
// second simply matches zero rows. No locks are taken and no writer ever
// overwrites a transition it did not predicate on.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
package store
