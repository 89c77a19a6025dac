package engine

import (
	"context"

	"github.com/roach88/ordersync/internal/order"
)

// Source names the input that produced a change.
type Source string

const (
	SourceSnapshot Source = "snapshot"
	SourceRemote   Source = "remote"
	SourceLocal    Source = "local"
	SourceConfirm  Source = "confirm"
	SourceRollback Source = "rollback"
)

// Change describes one applied mutation of an order.
//
// Previous is the status before the change; it is empty for a newly
// created order.
type Change struct {
	Seq      int64
	Source   Source
	Order    order.Order
	Previous order.Status
}

// StatusChanged reports whether the change moved the order's status.
func (c Change) StatusChanged() bool {
	return c.Previous != c.Order.Status
}

// Sink receives the engine's outward signals. Implementations must not
// block. Calls are serialized and arrive in Seq order, from whichever
// goroutine applied a change at the time; a goroutine can return before
// its own change was delivered if another one is delivering.
type Sink interface {
	// OrderCreated is called when a push event introduces an unknown order.
	OrderCreated(c Change)

	// OrderChanged is called for every other applied change.
	OrderChanged(c Change)
}

// Updater issues status updates against the external order service and
// returns the service's authoritative representation of the order.
type Updater interface {
	UpdateStatus(ctx context.Context, orderID int64, to order.Status) (order.Order, error)
}

type nopSink struct{}

func (nopSink) OrderCreated(Change) {}
func (nopSink) OrderChanged(Change) {}
