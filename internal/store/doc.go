// Package store provides the SQLite-backed transition journal.
//
// The journal is an append-only audit log of every change the engine
// applied: which order, which input produced it, the status before and
// after, the revision and the content fingerprint. It is not a store of
// order records; the order service owns those.
//
// # Ordering
//
// Entries are keyed and ordered by the engine's logical sequence number,
// never by wall time. Queries use ORDER BY seq so results are identical
// across runs. Writing the same seq twice is a no-op.
//
// Journals are opened with WAL, synchronous=NORMAL and a 5s busy timeout,
// and upgraded through PRAGMA user_version on Open.
package store
