// Package store keeps procprobe run history in SQLite.
//
// Each run is one row in runs plus one row per statement in results, all
// written in a single transaction. Writes are idempotent per run id:
// recording the same summary twice leaves one copy.
//
// Statement rows carry the content-addressed statement id, so the history
// of a statement lines up across runs as long as its SQL text is unchanged,
// even if the file moved or was renamed.
//
// # Deterministic Reads
//
// All queries carry an explicit ORDER BY: runs newest first by start time
// then id, results by seq within a run.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait up to 5s for locks
//   - foreign_keys=ON: results must reference a run
package store
