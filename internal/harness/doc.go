// Package harness drives a procprobe run.
//
// A run has two phases:
//
//  1. Fixture barrier: the fixture resolver finds or creates every baseline
//     entity and commits it. If this fails the run stops before any
//     statement is tested; it is the only failure that stops a run.
//  2. Statement phase: each statement is inferred, bound and executed on a
//     bounded worker pool. Workers share nothing mutable except the
//     Aggregator. One statement's failure never affects another.
//
// # Outcomes
//
//   - passed: the statement executed without error (and was rolled back)
//   - failed: the database rejected it, or its parameters could not be inferred
//   - skipped: a fixture it needs is missing, so the environment is at fault
//
// A failed statement whose arguments came partly from a heuristic fallback
// is counted as suspect: the procedure may be fine and our guess wrong.
//
// # Determinism
//
// Values are generated from the run seed through a per-statement stream
// keyed by statement ID, and results are ordered by their position in the
// input. Replaying a run with the same seed against the same database binds
// identical arguments regardless of worker scheduling.
package harness
