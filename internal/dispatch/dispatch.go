// Package dispatch turns raw push channel payloads into engine events.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/ordersync/internal/channel"
	"github.com/roach88/ordersync/internal/engine"
	"github.com/roach88/ordersync/internal/metrics"
	"github.com/roach88/ordersync/internal/order"
	"github.com/roach88/ordersync/internal/wire"
)

// Applier is the engine surface the dispatcher feeds.
type Applier interface {
	Known(id int64) bool
	ApplyRemoteEvent(ev order.ChannelEvent) engine.Outcome
}

// StatusSink receives connection state changes.
type StatusSink interface {
	ConnectionChanged(st channel.Status)
}

// Refresher reloads the full order list.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRefresher refreshes the snapshot through r whenever the channel
// reconnects after a loss, bounded by timeout.
func WithRefresher(r Refresher, timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.refresher = r
		if timeout > 0 {
			d.refreshTimeout = timeout
		}
	}
}

// Dispatcher routes decoded push events to the engine in arrival order and
// forwards connection status to the notification sink.
type Dispatcher struct {
	engine         Applier
	sink           StatusSink
	refresher      Refresher
	refreshTimeout time.Duration

	mu            sync.Mutex
	everConnected bool
}

// New creates a Dispatcher. sink may be nil.
func New(engine Applier, sink StatusSink, opts ...Option) *Dispatcher {
	d := &Dispatcher{engine: engine, sink: sink, refreshTimeout: 30 * time.Second}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnMessage decodes raw, classifies it as CREATED or UPDATED and applies
// it. Malformed payloads return a DECODE_ERROR and are counted and dropped.
func (d *Dispatcher) OnMessage(raw []byte) (order.ChannelEvent, error) {
	o, err := wire.DecodeOrder(raw)
	if err != nil {
		metrics.DecodeErrorsTotal.Inc()
		slog.Warn("dropping malformed push payload",
			"bytes", len(raw),
			"error", err,
		)
		return order.ChannelEvent{}, err
	}

	kind := order.EventUpdated
	if !d.engine.Known(o.ID) {
		kind = order.EventCreated
	}
	ev := order.ChannelEvent{OrderID: o.ID, Order: o, Kind: kind}

	outcome := d.engine.ApplyRemoteEvent(ev)
	slog.Debug("push event dispatched",
		"order_id", o.ID,
		"kind", kind,
		"revision", o.Revision,
		"outcome", outcome,
	)
	return ev, nil
}

// HandleMessage is OnMessage shaped as a channel.MessageHandler.
func (d *Dispatcher) HandleMessage(raw []byte) {
	_, _ = d.OnMessage(raw)
}

// HandleStatus forwards st to the sink. A CONNECTED that follows an earlier
// connection triggers a snapshot refresh before any event of the new
// connection is dispatched. The refresh is bounded by ctx and the refresh
// timeout, so a stopping channel cancels it.
func (d *Dispatcher) HandleStatus(ctx context.Context, st channel.Status) {
	if d.sink != nil {
		d.sink.ConnectionChanged(st)
	}
	if st != channel.StatusConnected {
		return
	}

	d.mu.Lock()
	reconnect := d.everConnected
	d.everConnected = true
	d.mu.Unlock()

	if !reconnect || d.refresher == nil {
		return
	}
	slog.Info("reconnected, refreshing")
	ctx, cancel := context.WithTimeout(ctx, d.refreshTimeout)
	defer cancel()
	if err := d.refresher.Refresh(ctx); err != nil {
		slog.Warn("refresh after reconnect failed", "error", err)
	}
}
