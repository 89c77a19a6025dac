package testutil

import (
	"context"
	"sync"

	"github.com/roach88/ordersync/internal/order"
)

// UpdateCall is one status update received by FakeUpdater.
type UpdateCall struct {
	OrderID int64
	To      order.Status
}

// FakeUpdater is a scriptable order service for status updates.
//
// In manual mode (NewFakeUpdater) every call blocks until the test answers
// it with Respond, which lets a test observe the optimistic window. In
// automatic mode (NewAutoUpdater) calls are answered by a function.
//
// Thread-safety: All methods are safe for concurrent use.
type FakeUpdater struct {
	mu    sync.Mutex
	calls []UpdateCall

	called    chan UpdateCall
	responses chan updateResponse
	auto      func(orderID int64, to order.Status) (order.Order, error)
}

type updateResponse struct {
	order order.Order
	err   error
}

// NewFakeUpdater creates an updater whose calls block until Respond.
func NewFakeUpdater() *FakeUpdater {
	return &FakeUpdater{
		called:    make(chan UpdateCall, 64),
		responses: make(chan updateResponse),
	}
}

// NewAutoUpdater creates an updater answering every call with fn.
func NewAutoUpdater(fn func(orderID int64, to order.Status) (order.Order, error)) *FakeUpdater {
	u := NewFakeUpdater()
	u.auto = fn
	return u
}

// UpdateStatus implements the engine's Updater.
func (u *FakeUpdater) UpdateStatus(ctx context.Context, orderID int64, to order.Status) (order.Order, error) {
	call := UpdateCall{OrderID: orderID, To: to}
	u.mu.Lock()
	u.calls = append(u.calls, call)
	u.mu.Unlock()

	select {
	case u.called <- call:
	default:
	}

	if u.auto != nil {
		return u.auto(orderID, to)
	}
	select {
	case r := <-u.responses:
		return r.order, r.err
	case <-ctx.Done():
		return order.Order{}, ctx.Err()
	}
}

// Called delivers each call as it arrives.
func (u *FakeUpdater) Called() <-chan UpdateCall {
	return u.called
}

// Respond answers the oldest blocked call.
func (u *FakeUpdater) Respond(o order.Order, err error) {
	u.responses <- updateResponse{order: o, err: err}
}

// Calls returns every call received so far.
func (u *FakeUpdater) Calls() []UpdateCall {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]UpdateCall, len(u.calls))
	copy(out, u.calls)
	return out
}
