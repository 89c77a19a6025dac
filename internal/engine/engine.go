package engine

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/ordersync/internal/metrics"
	"github.com/roach88/ordersync/internal/order"
)

// DeletePolicy controls what a snapshot does with locally known orders the
// service no longer returns.
type DeletePolicy string

const (
	// DeleteNever keeps every known order; snapshots only insert and update.
	DeleteNever DeletePolicy = "never"

	// DeleteSoft hides orders missing from a snapshot until a later snapshot
	// or push event returns them. Orders with a pending change are kept.
	DeleteSoft DeletePolicy = "soft"
)

// Engine is the single-writer reconciliation engine.
//
// Thread-safety model:
//   - Every exported method is safe from any goroutine
//   - Merges are serialized by mu and never suspend
//   - Sink callbacks run after mu is released, one at a time, in Seq order
//
// INVARIANTS:
//   - Exactly one entry per order id
//   - Stored revisions never decrease
//   - At most one pending status change per order id
type Engine struct {
	mu      sync.Mutex
	orders  map[int64]*entry
	pending map[int64]*StatusChange
	closed  bool

	// outbox holds signals queued under mu; draining is set while one
	// goroutine delivers them.
	outbox   []signal
	draining bool

	updater Updater
	sink    Sink
	clock   *Clock
	tokens  TokenGenerator
	now     func() time.Time
	policy  DeletePolicy
}

// entry is the stored form of an order.
type entry struct {
	order       order.Order
	fingerprint string
	removed     bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithSink sets the receiver of OrderCreated/OrderChanged signals.
func WithSink(s Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithClock sets the logical clock, e.g. one resumed from the journal.
func WithClock(c *Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithTokenGenerator sets the generator for pending change tokens.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(e *Engine) { e.tokens = g }
}

// WithNow sets the wall clock used for PendingAction.IssuedAt.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithDeletePolicy sets the snapshot delete policy. Default: DeleteNever.
func WithDeletePolicy(p DeletePolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// New creates an Engine that sends operator status changes through updater.
func New(updater Updater, opts ...Option) *Engine {
	e := &Engine{
		orders:  make(map[int64]*entry),
		pending: make(map[int64]*StatusChange),
		updater: updater,
		sink:    nopSink{},
		clock:   NewClock(),
		tokens:  UUIDv7Generator{},
		now:     time.Now,
		policy:  DeleteNever,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Close tears the engine down. Pending status changes are cleared and their
// waiters released with a CLOSED error; responses arriving afterwards are
// ignored. Later mutations are ignored or rejected.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	cleared := make([]*StatusChange, 0, len(e.pending))
	for id, sc := range e.pending {
		cleared = append(cleared, sc)
		delete(e.pending, id)
	}
	metrics.PendingActions.Set(0)
	e.mu.Unlock()

	for _, sc := range cleared {
		slog.Info("pending status change cleared by teardown",
			"order_id", sc.Action.OrderID,
			"to", sc.Action.To,
			"token", sc.Action.Token,
		)
		sc.finish(order.Order{}, order.NewClosedError())
	}
}

// Known reports whether id is in the collection, including soft-deleted
// orders.
func (e *Engine) Known(id int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.orders[id]
	return ok
}

// Get returns a copy of a visible order.
func (e *Engine) Get(id int64) (order.Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	en, ok := e.orders[id]
	if !ok || en.removed {
		return order.Order{}, false
	}
	return en.order.Clone(), true
}

// Pending returns the in-flight status change for id, if any.
func (e *Engine) Pending(id int64) (order.PendingAction, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sc, ok := e.pending[id]
	if !ok {
		return order.PendingAction{}, false
	}
	return sc.Action, true
}

// PendingCount returns the number of in-flight status changes.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// List returns visible orders, most recently placed first, optionally
// restricted to the given statuses. It is recomputed on every call.
func (e *Engine) List(statuses ...order.Status) []order.Order {
	want := make(map[order.Status]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}

	e.mu.Lock()
	out := make([]order.Order, 0, len(e.orders))
	for _, en := range e.orders {
		if en.removed {
			continue
		}
		if len(want) > 0 && !want[en.order.Status] {
			continue
		}
		out = append(out, en.order.Clone())
	}
	e.mu.Unlock()

	SortForDisplay(out)
	return out
}

// SortForDisplay orders by placedAt descending, then id descending.
func SortForDisplay(orders []order.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if !orders[i].PlacedAt.Equal(orders[j].PlacedAt) {
			return orders[i].PlacedAt.After(orders[j].PlacedAt)
		}
		return orders[i].ID > orders[j].ID
	})
}

// Stats is the console dashboard summary.
type Stats struct {
	Total       int             `json:"total"`
	Pending     int             `json:"pending"`
	PlacedToday int             `json:"placed_today"`
	Delivered   int             `json:"delivered"`
	Sales       decimal.Decimal `json:"sales"`
}

// Stats summarizes visible orders. Pending counts orders still to be
// dispatched (placed or in preparation); Sales totals delivered orders;
// PlacedToday uses now's calendar day in now's location.
func (e *Engine) Stats(now time.Time) Stats {
	y, m, d := now.Date()
	st := Stats{Sales: decimal.Zero}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, en := range e.orders {
		if en.removed {
			continue
		}
		o := en.order
		st.Total++
		switch o.Status {
		case order.StatusPlaced, order.StatusInPreparation:
			st.Pending++
		case order.StatusDelivered:
			st.Delivered++
			st.Sales = st.Sales.Add(o.Total)
		}
		if !o.PlacedAt.IsZero() {
			py, pm, pd := o.PlacedAt.In(now.Location()).Date()
			if py == y && pm == m && pd == d {
				st.PlacedToday++
			}
		}
	}
	return st
}

// signal is one queued sink callback.
type signal struct {
	created bool
	change  Change
}

// queue appends signals in the critical section that assigned their Seq.
// Caller holds mu.
func (e *Engine) queue(created bool, cs ...Change) {
	for _, c := range cs {
		e.outbox = append(e.outbox, signal{created: created, change: c})
	}
}

// emit delivers queued signals. Must be called without mu held.
//
// Only one goroutine drains at a time; a caller that finds a drain in
// progress leaves its signals to it. A sink may call back into the engine.
func (e *Engine) emit() {
	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		return
	}
	e.draining = true
	for len(e.outbox) > 0 {
		batch := e.outbox
		e.outbox = nil
		e.mu.Unlock()
		for _, s := range batch {
			if s.created {
				e.sink.OrderCreated(s.change)
			} else {
				e.sink.OrderChanged(s.change)
			}
		}
		e.mu.Lock()
	}
	e.draining = false
	e.mu.Unlock()
}

// store replaces (or inserts) the entry for o and returns the change record.
// Caller holds mu.
func (e *Engine) store(o order.Order, src Source, prev order.Status) Change {
	en, ok := e.orders[o.ID]
	if !ok {
		en = &entry{}
		e.orders[o.ID] = en
	}
	en.order = o
	en.fingerprint = order.Fingerprint(o)
	en.removed = false
	return Change{
		Seq:      e.clock.Next(),
		Source:   src,
		Order:    o.Clone(),
		Previous: prev,
	}
}

// mergeMutable builds the stored form of an incoming representation of an
// order already known locally: placedAt and lines stay as first seen.
func mergeMutable(local, in order.Order, revision int64) order.Order {
	merged := in.Clone()
	if !local.PlacedAt.IsZero() {
		merged.PlacedAt = local.PlacedAt
	}
	if len(local.Lines) > 0 {
		merged.Lines = local.Clone().Lines
	}
	merged.Revision = revision
	return merged
}

func recordOutcome(src Source, outcome Outcome) {
	metrics.MergeOutcomes.WithLabelValues(string(src), string(outcome)).Inc()
}
