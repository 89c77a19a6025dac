package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/ordersync/internal/channel"
	"github.com/roach88/ordersync/internal/engine"
)

// Subscriber consumes signals delivered by a Bus.
type Subscriber interface {
	Handle(ctx context.Context, s Signal) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context, s Signal) error

// Handle calls f.
func (f SubscriberFunc) Handle(ctx context.Context, s Signal) error {
	return f(ctx, s)
}

// Bus fans signals out to subscribers from a single goroutine.
//
// Bus implements engine.Sink. All publishing methods are non-blocking and
// safe from any goroutine; signals published after Stop are dropped.
type Bus struct {
	queue *signalQueue
	now   func() time.Time

	mu   sync.RWMutex
	subs []Subscriber
}

var _ engine.Sink = (*Bus)(nil)

// NewBus creates a bus with no subscribers.
func NewBus() *Bus {
	return &Bus{queue: newSignalQueue(), now: time.Now}
}

// Subscribe registers s. Subscribers receive signals in registration order.
func (b *Bus) Subscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, s)
}

// Publish enqueues s, stamping At when unset.
func (b *Bus) Publish(s Signal) bool {
	if s.At.IsZero() {
		s.At = b.now()
	}
	if !b.queue.Enqueue(s) {
		slog.Debug("signal dropped after bus stop", "kind", s.Kind)
		return false
	}
	return true
}

// OrderCreated implements engine.Sink.
func (b *Bus) OrderCreated(c engine.Change) {
	b.Publish(Signal{Kind: KindOrderCreated, Change: c})
}

// OrderChanged implements engine.Sink.
func (b *Bus) OrderChanged(c engine.Change) {
	b.Publish(Signal{Kind: KindOrderChanged, Change: c})
}

// ConnectionChanged publishes a push channel state change.
func (b *Bus) ConnectionChanged(st channel.Status) {
	b.Publish(Signal{Kind: KindConnectionChanged, Connection: st})
}

// RefreshFailed publishes the warning for a failed snapshot refresh.
func (b *Bus) RefreshFailed(err error) {
	b.Publish(Signal{Kind: KindRefreshFailed, Err: err})
}

// Len returns the number of undelivered signals.
func (b *Bus) Len() int {
	return b.queue.Len()
}

// Run delivers signals until ctx is cancelled or Stop is called. After
// Stop, queued signals are drained before Run returns nil.
//
// A subscriber error is logged and delivery continues; one failing
// subscriber never starves the others.
func (b *Bus) Run(ctx context.Context) error {
	slog.Debug("notification bus starting")

	for {
		s, ok := b.queue.TryDequeue()
		if ok {
			b.deliver(ctx, s)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Debug("notification bus stopping: context cancelled")
			b.queue.Close()
			return ctx.Err()

		case <-b.queue.Wait():
			if b.queue.Len() == 0 && b.stopped() {
				slog.Debug("notification bus stopping: closed")
				return nil
			}
		}
	}
}

// Stop closes the bus. Run returns once the queue is drained.
func (b *Bus) Stop() {
	b.queue.Close()
}

func (b *Bus) stopped() bool {
	b.queue.mu.Lock()
	defer b.queue.mu.Unlock()
	return b.queue.closed
}

func (b *Bus) deliver(ctx context.Context, s Signal) {
	b.mu.RLock()
	subs := make([]Subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.Handle(ctx, s); err != nil {
			slog.Error("subscriber failed",
				"kind", s.Kind,
				"order_id", s.Change.Order.ID,
				"seq", s.Change.Seq,
				"error", err,
			)
		}
	}
}
