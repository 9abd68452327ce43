// Package store provides SQLite-backed durable storage for biblemarker.
//
// The store is the persistence layer consumed by the entity stores in
// internal/state. Per entity type it exposes:
//   - GetAll: every record, ordered by created_at ASC, id ASC
//   - Save: upsert by id
//   - Delete: remove by id (missing ids are not an error)
//
// SaveStudies writes a batch of studies in one transaction so that the
// single-active-study invariant is committed all-or-nothing.
//
// Snapshots hold the small persisted subset of each in-memory store (for
// studies, the active study id) keyed by store name.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Timestamps are stored as RFC 3339 text with nanoseconds in UTC so that
// lexical order equals chronological order.
package store
