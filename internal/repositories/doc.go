// Package repositories implements SQLite persistence for job history.
//
// [HistoryRepository] stores one row per finished session in the jobs table: input,
// action, output, terminal status (completed, error, abandoned) and timing. History is an
// audit log only; nothing stored here is resumed.
//
// Sequence numbers provide stable, human-readable ordering (e.g., job #42) independent of UUIDs and timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
