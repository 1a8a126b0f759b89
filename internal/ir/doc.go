// Package ir holds the procprobe data model: statements, parameter specs,
// value strategies, bound values, fixtures and results.
//
// ir has no internal imports. Every other package depends on it, never the
// other way round.
//
// Rules the rest of the tree relies on:
//   - Statement and ParameterSpec are built at load time and not mutated after
//   - Strategy and Value are sealed; callers switch over them exhaustively
//   - a FixtureSet is read-only once built and is shared across workers
//   - RunSummary is derived from CallResults and nothing else
//   - JSON tags are snake_case
package ir
