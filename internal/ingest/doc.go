// Package ingest implements the data ingestion and metric normalization
// pipeline. It contains all domain logic independent of any transport or
// storage backend and can be driven by HTTP handlers, CLI tools, or tests
// without modification.
//
// # Architecture
//
// The pipeline is built from four pieces, leaves first:
//
//   - Tabular parsing: [ParseGrid] turns raw delimited text into a
//     rectangular grid of string cells. It is deliberately permissive;
//     malformed quoting is absorbed best-effort rather than rejected.
//   - Canonical hashing: [DedupeHash] derives a stable SHA-256 key from
//     an event's identity and payload. Two payloads that differ only in
//     object key order hash identically, which is what makes resubmitted
//     data detectable.
//   - Normalization: [Normalize] projects one flat record through a
//     [MappingDefinition] into a [MetricValue], or rejects it. Rejection
//     is an expected outcome, not an error.
//   - Orchestration: [Coordinator] drives a whole ingestion run, persists
//     raw events and metric values through [Repository], and maintains the
//     run's counters and terminal status.
//
// # Failure policy
//
// Structural problems (an empty file, a header with no data rows) fail the
// whole run before any row is touched. Everything that can go wrong with an
// individual row (duplicate hash, unparseable date, missing mapping, a
// storage hiccup on that row) is absorbed into the rows_invalid counter and
// never aborts the loop. The one exception is [ErrStoreUnavailable], which
// the repository uses to signal that storage is down for good; the
// coordinator fails the run rather than silently reporting every row
// invalid.
package ingest
