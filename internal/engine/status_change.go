package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/ordersync/internal/metrics"
	"github.com/roach88/ordersync/internal/order"
)

// StatusChange is the pending result of an operator status change.
type StatusChange struct {
	Action order.PendingAction

	once   sync.Once
	done   chan struct{}
	result order.Order
	err    error
}

func newStatusChange(action order.PendingAction) *StatusChange {
	return &StatusChange{Action: action, done: make(chan struct{})}
}

// Done is closed once the change was confirmed, rolled back or cleared.
func (sc *StatusChange) Done() <-chan struct{} {
	return sc.done
}

// Result returns the outcome. It is only meaningful after Done is closed.
func (sc *StatusChange) Result() (order.Order, error) {
	select {
	case <-sc.done:
		return sc.result, sc.err
	default:
		return order.Order{}, nil
	}
}

// Wait blocks until the change completes or ctx is done.
func (sc *StatusChange) Wait(ctx context.Context) (order.Order, error) {
	select {
	case <-sc.done:
		return sc.result, sc.err
	case <-ctx.Done():
		return order.Order{}, ctx.Err()
	}
}

func (sc *StatusChange) finish(o order.Order, err error) {
	sc.once.Do(func() {
		sc.result = o
		sc.err = err
		close(sc.done)
	})
}

// RequestStatusChange applies an operator status change optimistically and
// sends it to the order service.
//
// NOT_FOUND, CONFLICT and INVALID_TRANSITION are returned synchronously and
// leave the order untouched. Otherwise a PendingAction is recorded, the new
// status is visible immediately, and the returned StatusChange completes
// when the service answers: the service's representation on success, the
// rolled-back order's error on failure. ctx bounds the service request.
func (e *Engine) RequestStatusChange(ctx context.Context, id int64, to order.Status) (*StatusChange, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, order.NewClosedError()
	}
	en, ok := e.orders[id]
	if !ok || en.removed {
		e.mu.Unlock()
		return nil, order.NewNotFoundError(id)
	}
	if sc, busy := e.pending[id]; busy {
		e.mu.Unlock()
		return nil, order.NewConflictError(id, sc.Action.To)
	}
	from := en.order.Status
	if err := order.ValidateTransition(id, from, to); err != nil {
		e.mu.Unlock()
		return nil, err
	}

	sc := newStatusChange(order.PendingAction{
		OrderID:  id,
		From:     from,
		To:       to,
		IssuedAt: e.now(),
		Token:    e.tokens.Generate(),
		Revision: en.order.Revision,
	})
	e.pending[id] = sc
	metrics.PendingActions.Set(float64(len(e.pending)))

	optimistic := en.order.Clone()
	optimistic.Status = to
	e.queue(false, e.store(optimistic, SourceLocal, from))
	e.mu.Unlock()

	slog.Info("status change requested",
		"order_id", id,
		"from", from,
		"to", to,
		"token", sc.Action.Token,
	)
	e.emit()

	go e.complete(ctx, sc)
	return sc, nil
}

// complete sends the update and reconciles its response.
//
// On failure the optimistic status is reverted only if no remote event or
// snapshot wrote the order meanwhile: once the service's own state for the
// order has arrived, it stands, even when it repeats the requested status.
func (e *Engine) complete(ctx context.Context, sc *StatusChange) {
	start := time.Now()
	a := sc.Action
	served, err := e.updater.UpdateStatus(ctx, a.OrderID, a.To)

	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.StatusChangeDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())

	e.mu.Lock()
	if e.pending[a.OrderID] != sc {
		e.mu.Unlock()
		slog.Debug("late status response ignored",
			"order_id", a.OrderID,
			"token", a.Token,
		)
		return
	}
	delete(e.pending, a.OrderID)
	metrics.PendingActions.Set(float64(len(e.pending)))

	if err != nil {
		if order.CodeOf(err) == "" {
			err = order.NewNetworkError(a.OrderID, "status update failed", err)
		}
		rolledBack := false
		var current order.Order
		if en, ok := e.orders[a.OrderID]; ok {
			current = en.order.Clone()
			if en.order.Status == a.To && en.order.Revision == a.Revision {
				restored := en.order.Clone()
				restored.Status = a.From
				e.queue(false, e.store(restored, SourceRollback, a.To))
				rolledBack = true
				current = restored
			}
		}
		e.mu.Unlock()

		slog.Warn("status change failed",
			"order_id", a.OrderID,
			"to", a.To,
			"rolled_back", rolledBack,
			"token", a.Token,
			"error", err,
		)
		e.emit()
		sc.finish(current, err)
		return
	}

	en := e.orders[a.OrderID]
	local := en.order
	confirmed := local.Clone()
	if served.ID == 0 {
		served = local.Clone()
		served.Revision = 0
	}
	switch {
	case served.Versioned() && served.Revision >= local.Revision:
		confirmed = mergeMutable(local, served, served.Revision)
		e.queue(false, e.store(confirmed, SourceConfirm, local.Status))
	case !served.Versioned():
		confirmed = mergeMutable(local, served, local.Revision+1)
		e.queue(false, e.store(confirmed, SourceConfirm, local.Status))
	default:
		slog.Debug("confirmation older than local state",
			"order_id", a.OrderID,
			"revision", served.Revision,
			"local_revision", local.Revision,
		)
	}
	e.mu.Unlock()

	slog.Info("status change confirmed",
		"order_id", a.OrderID,
		"status", confirmed.Status,
		"revision", confirmed.Revision,
		"token", a.Token,
	)
	e.emit()
	sc.finish(confirmed.Clone(), nil)
}
