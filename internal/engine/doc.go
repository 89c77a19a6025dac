// Package engine implements the order reconciliation engine.
//
// The engine is the only owner of the console's order collection. It merges
// three asynchronous inputs into one consistent view: bulk snapshots from the
// order service, push events from the channel, and optimistic status changes
// issued by operators.
//
// ARCHITECTURE:
//
// Single-Writer Store:
// Every entry point (ApplySnapshot, ApplyRemoteEvent, RequestStatusChange and
// the confirmation of a status change) runs its merge inside one short
// critical section guarded by a single mutex. Merges never suspend; the only
// suspension point, the status update request, runs outside the lock.
//
// Signals:
// Changes are collected during the critical section and handed to the Sink
// after the lock is released, so a Sink may read the engine back without
// deadlocking. Every applied change is stamped with a sequence number from
// the engine's logical Clock.
//
// Revision Discipline:
//   - An order's revision never decreases
//   - Snapshots overwrite when incoming revision >= local (ties favor the snapshot)
//   - Push events apply only when newer, and only along the lifecycle graph
//   - An order with a pending status change is never overwritten by a snapshot
//
// Unversioned orders (revision 0 on the wire) get a revision inferred
// locally: local+1 when the content fingerprint changed, unchanged otherwise.
package engine
