package engine

import (
	"log/slog"

	"github.com/roach88/ordersync/internal/order"
)

// Outcome is the merge decision taken for one incoming order.
type Outcome string

const (
	OutcomeInserted  Outcome = "inserted"
	OutcomeApplied   Outcome = "applied"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeStale     Outcome = "stale"
	OutcomeRejected  Outcome = "rejected"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeIgnored   Outcome = "ignored"
)

// SnapshotResult counts the decisions taken while applying a snapshot.
type SnapshotResult struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
	Stale     int `json:"stale"`
	Removed   int `json:"removed"`
}

// ApplySnapshot merges a full read of the order service into the collection.
//
// Absent orders are inserted without a creation signal. Present orders are
// overwritten when the incoming revision is >= the local one, except while
// a status change for them is pending. Unversioned orders overwrite and
// bump the local revision when their content changed. Under DeleteSoft,
// known orders missing from the snapshot are hidden.
func (e *Engine) ApplySnapshot(orders []order.Order) SnapshotResult {
	var res SnapshotResult
	var changed []Change

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return res
	}

	seen := make(map[int64]bool, len(orders))
	for _, in := range orders {
		seen[in.ID] = true
		outcome, c := e.mergeSnapshotOrder(in)
		recordOutcome(SourceSnapshot, outcome)
		switch outcome {
		case OutcomeInserted:
			res.Inserted++
		case OutcomeApplied:
			res.Updated++
		case OutcomeUnchanged:
			res.Unchanged++
		case OutcomeSkipped:
			res.Skipped++
		case OutcomeStale:
			res.Stale++
		}
		if c != nil {
			changed = append(changed, *c)
		}
	}

	if e.policy == DeleteSoft {
		for id, en := range e.orders {
			if seen[id] || en.removed {
				continue
			}
			if _, busy := e.pending[id]; busy {
				continue
			}
			en.removed = true
			res.Removed++
			slog.Debug("order missing from snapshot, hidden", "order_id", id)
		}
	}
	e.queue(false, changed...)
	e.mu.Unlock()

	e.emit()

	slog.Info("snapshot applied",
		"orders", len(orders),
		"inserted", res.Inserted,
		"updated", res.Updated,
		"unchanged", res.Unchanged,
		"skipped", res.Skipped,
		"stale", res.Stale,
		"removed", res.Removed,
	)
	return res
}

// mergeSnapshotOrder decides one snapshot entry. Caller holds mu.
func (e *Engine) mergeSnapshotOrder(in order.Order) (Outcome, *Change) {
	en, ok := e.orders[in.ID]
	if !ok {
		o := in.Clone()
		if !o.Versioned() {
			o.Revision = 1
		}
		e.store(o, SourceSnapshot, "")
		return OutcomeInserted, nil
	}

	if _, busy := e.pending[in.ID]; busy {
		slog.Debug("snapshot skipped order with pending change",
			"order_id", in.ID,
			"revision", in.Revision,
		)
		return OutcomeSkipped, nil
	}

	local := en.order
	rev := local.Revision
	if in.Versioned() {
		if in.Revision < local.Revision {
			slog.Debug("snapshot order is stale",
				"order_id", in.ID,
				"revision", in.Revision,
				"local_revision", local.Revision,
			)
			return OutcomeStale, nil
		}
		rev = in.Revision
	}

	merged := mergeMutable(local, in, rev)
	sameContent := order.Fingerprint(merged) == en.fingerprint
	if sameContent && merged.Revision == local.Revision {
		if en.removed {
			en.removed = false
			return OutcomeApplied, nil
		}
		return OutcomeUnchanged, nil
	}
	if !in.Versioned() {
		merged.Revision = local.Revision + 1
	}

	c := e.store(merged, SourceSnapshot, local.Status)
	return OutcomeApplied, &c
}

// ApplyRemoteEvent merges one push event.
//
// Unknown orders are inserted and announced with OrderCreated. For known
// orders, stale revisions are discarded, equal revisions (or identical
// content when unversioned) are duplicates, and transitions outside the
// lifecycle graph are rejected. Everything else is applied, keeping
// placedAt and lines from the local copy.
func (e *Engine) ApplyRemoteEvent(ev order.ChannelEvent) Outcome {
	in := ev.Order
	if in.ID == 0 {
		in.ID = ev.OrderID
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		recordOutcome(SourceRemote, OutcomeIgnored)
		return OutcomeIgnored
	}

	outcome, c := e.mergeRemoteOrder(in)
	if c != nil {
		e.queue(outcome == OutcomeInserted, *c)
	}
	e.mu.Unlock()

	recordOutcome(SourceRemote, outcome)
	e.emit()
	return outcome
}

// mergeRemoteOrder decides one push event. Caller holds mu.
func (e *Engine) mergeRemoteOrder(in order.Order) (Outcome, *Change) {
	en, ok := e.orders[in.ID]
	if !ok {
		o := in.Clone()
		if !o.Versioned() {
			o.Revision = 1
		}
		c := e.store(o, SourceRemote, "")
		slog.Info("order created",
			"order_id", o.ID,
			"status", o.Status,
			"revision", o.Revision,
		)
		return OutcomeInserted, &c
	}

	local := en.order
	rev := local.Revision + 1
	if in.Versioned() {
		switch {
		case in.Revision < local.Revision:
			slog.Debug("stale event discarded",
				"order_id", in.ID,
				"revision", in.Revision,
				"local_revision", local.Revision,
			)
			return OutcomeStale, nil
		case in.Revision == local.Revision:
			return OutcomeDuplicate, nil
		}
		rev = in.Revision
	}

	merged := mergeMutable(local, in, local.Revision)
	if !in.Versioned() && order.Fingerprint(merged) == en.fingerprint && !en.removed {
		return OutcomeDuplicate, nil
	}

	if err := order.ValidateTransition(in.ID, local.Status, in.Status); err != nil {
		slog.Warn("remote event rejected",
			"order_id", in.ID,
			"status", local.Status,
			"incoming_status", in.Status,
			"revision", in.Revision,
			"error", err,
		)
		return OutcomeRejected, nil
	}

	merged.Revision = rev
	c := e.store(merged, SourceRemote, local.Status)
	slog.Debug("remote event applied",
		"order_id", in.ID,
		"status", merged.Status,
		"revision", merged.Revision,
	)
	return OutcomeApplied, &c
}
