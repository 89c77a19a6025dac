package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ordersync/internal/order"
	"github.com/roach88/ordersync/internal/testutil"
)

// recordingSink captures signals in delivery order.
type recordingSink struct {
	mu      sync.Mutex
	created []Change
	changed []Change
	all     []Change
}

func (s *recordingSink) OrderCreated(c Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, c)
	s.all = append(s.all, c)
}

func (s *recordingSink) OrderChanged(c Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changed = append(s.changed, c)
	s.all = append(s.all, c)
}

func (s *recordingSink) Created() []Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Change(nil), s.created...)
}

func (s *recordingSink) Changed() []Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Change(nil), s.changed...)
}

func newTestEngine(t *testing.T, updater Updater, opts ...Option) (*Engine, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	base := []Option{
		WithSink(sink),
		WithTokenGenerator(NewFixedGenerator("tok-1", "tok-2", "tok-3", "tok-4")),
		WithNow(testutil.NewFakeNow(testutil.BaseTime).Now),
	}
	e := New(updater, append(base, opts...)...)
	t.Cleanup(e.Close)
	return e, sink
}

func event(o order.Order) order.ChannelEvent {
	return order.ChannelEvent{OrderID: o.ID, Order: o, Kind: order.EventUpdated}
}

func TestEngine_NewIsEmpty(t *testing.T) {
	e, _ := newTestEngine(t, testutil.NewFakeUpdater())

	assert.Empty(t, e.List())
	assert.False(t, e.Known(1))
	assert.Equal(t, 0, e.PendingCount())
	_, ok := e.Get(1)
	assert.False(t, ok)
}

func TestEngine_ListOrdersByPlacedAtDescending(t *testing.T) {
	e, _ := newTestEngine(t, testutil.NewFakeUpdater())

	a := testutil.NewOrder(1, order.StatusPlaced, 1)
	b := testutil.NewOrder(2, order.StatusDelivered, 1)
	c := testutil.NewOrder(3, order.StatusPlaced, 1)
	c.PlacedAt = b.PlacedAt
	e.ApplySnapshot([]order.Order{a, b, c})

	ids := func(orders []order.Order) []int64 {
		out := make([]int64, 0, len(orders))
		for _, o := range orders {
			out = append(out, o.ID)
		}
		return out
	}
	assert.Equal(t, []int64{3, 2, 1}, ids(e.List()), "ties on placedAt fall back to id descending")
	assert.Equal(t, []int64{3, 1}, ids(e.List(order.StatusPlaced)))
	assert.Equal(t, []int64{2}, ids(e.List(order.StatusDelivered)))
	assert.Empty(t, e.List(order.StatusCancelled))
}

func TestEngine_GetReturnsCopy(t *testing.T) {
	e, _ := newTestEngine(t, testutil.NewFakeUpdater())
	e.ApplySnapshot([]order.Order{testutil.NewOrder(5, order.StatusPlaced, 1)})

	o, ok := e.Get(5)
	require.True(t, ok)
	o.Status = order.StatusCancelled
	o.Lines[0].Quantity = 99

	again, _ := e.Get(5)
	assert.Equal(t, order.StatusPlaced, again.Status)
	assert.Equal(t, 1, again.Lines[0].Quantity)
}

func TestEngine_Stats(t *testing.T) {
	e, _ := newTestEngine(t, testutil.NewFakeUpdater())

	delivered := testutil.NewOrder(1, order.StatusDelivered, 1)
	delivered.Total = decimal.RequireFromString("30.00")
	delivered2 := testutil.NewOrder(2, order.StatusDelivered, 1)
	delivered2.Total = decimal.RequireFromString("12.50")
	yesterday := testutil.NewOrder(3, order.StatusPlaced, 1)
	yesterday.PlacedAt = testutil.BaseTime.Add(-24 * time.Hour)
	e.ApplySnapshot([]order.Order{
		delivered,
		delivered2,
		yesterday,
		testutil.NewOrder(4, order.StatusInPreparation, 1),
		testutil.NewOrder(5, order.StatusCancelled, 1),
	})

	st := e.Stats(testutil.BaseTime)
	assert.Equal(t, 5, st.Total)
	assert.Equal(t, 2, st.Pending)
	assert.Equal(t, 4, st.PlacedToday)
	assert.Equal(t, 2, st.Delivered)
	assert.True(t, decimal.RequireFromString("42.50").Equal(st.Sales), "sales: %s", st.Sales)
}

func TestEngine_SequenceNumbersIncrease(t *testing.T) {
	e, sink := newTestEngine(t, testutil.NewFakeUpdater(), WithClock(NewClockAt(100)))

	e.ApplyRemoteEvent(event(testutil.NewOrder(1, order.StatusPlaced, 1)))
	e.ApplyRemoteEvent(event(testutil.NewOrder(1, order.StatusInPreparation, 2)))

	require.Len(t, sink.Created(), 1)
	require.Len(t, sink.Changed(), 1)
	assert.Equal(t, int64(101), sink.Created()[0].Seq)
	assert.Equal(t, int64(102), sink.Changed()[0].Seq)
	assert.Equal(t, order.StatusPlaced, sink.Changed()[0].Previous)
	assert.True(t, sink.Changed()[0].StatusChanged())
}

func TestEngine_CloseIgnoresLaterInput(t *testing.T) {
	e, sink := newTestEngine(t, testutil.NewFakeUpdater())
	e.Close()
	e.Close()

	assert.Equal(t, OutcomeIgnored, e.ApplyRemoteEvent(event(testutil.NewOrder(1, order.StatusPlaced, 1))))
	assert.Equal(t, SnapshotResult{}, e.ApplySnapshot([]order.Order{testutil.NewOrder(2, order.StatusPlaced, 1)}))
	assert.False(t, e.Known(1))
	assert.False(t, e.Known(2))
	assert.Empty(t, sink.Created())
}

func TestEngine_ConcurrentSignalsArriveInSeqOrder(t *testing.T) {
	e, sink := newTestEngine(t, testutil.NewFakeUpdater())

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				id := int64(w*perWriter + i + 1)
				e.ApplyRemoteEvent(event(testutil.NewOrder(id, order.StatusPlaced, 1)))
				e.ApplyRemoteEvent(event(testutil.NewOrder(id, order.StatusInPreparation, 2)))
			}
		}(w)
	}
	wg.Wait()

	var seqs []int64
	sink.mu.Lock()
	for _, c := range sink.all {
		seqs = append(seqs, c.Seq)
	}
	sink.mu.Unlock()

	require.Len(t, seqs, 2*writers*perWriter)
	for i := 1; i < len(seqs); i++ {
		require.Less(t, seqs[i-1], seqs[i], "signal %d delivered out of order", i)
	}
}

// reentrantSink applies a follow-up event from inside its callback.
type reentrantSink struct {
	recordingSink
	engine *Engine
}

func (s *reentrantSink) OrderCreated(c Change) {
	s.recordingSink.OrderCreated(c)
	if c.Order.ID == 1 {
		s.engine.ApplyRemoteEvent(event(testutil.NewOrder(2, order.StatusPlaced, 1)))
	}
}

func TestEngine_SinkMayCallBackIntoEngine(t *testing.T) {
	sink := &reentrantSink{}
	e := New(testutil.NewFakeUpdater(), WithSink(sink))
	t.Cleanup(e.Close)
	sink.engine = e

	e.ApplyRemoteEvent(event(testutil.NewOrder(1, order.StatusPlaced, 1)))

	created := sink.Created()
	require.Len(t, created, 2)
	assert.Equal(t, int64(1), created[0].Order.ID)
	assert.Equal(t, int64(2), created[1].Order.ID)
	assert.Less(t, created[0].Seq, created[1].Seq)
}
