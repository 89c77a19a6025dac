package snapshot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ordersync/internal/engine"
	"github.com/roach88/ordersync/internal/order"
	"github.com/roach88/ordersync/internal/testutil"
)

type stubSource struct {
	orders []order.Order
	err    error
	calls  atomic.Int32
}

func (s *stubSource) ListOrders(context.Context) ([]order.Order, error) {
	s.calls.Add(1)
	return s.orders, s.err
}

type warnings struct {
	mu   sync.Mutex
	errs []error
}

func (w *warnings) RefreshFailed(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.errs = append(w.errs, err)
}

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e := engine.New(testutil.NewFakeUpdater())
	t.Cleanup(e.Close)
	return e
}

func TestLoadAll_SortsByPlacedAtDescending(t *testing.T) {
	src := &stubSource{orders: []order.Order{
		testutil.NewOrder(1, order.StatusPlaced, 1),
		testutil.NewOrder(3, order.StatusPlaced, 1),
		testutil.NewOrder(2, order.StatusPlaced, 1),
	}}
	l := NewLoader(src, newEngine(t), nil)

	orders, err := l.LoadAll(context.Background())
	require.NoError(t, err)

	ids := []int64{orders[0].ID, orders[1].ID, orders[2].ID}
	assert.Equal(t, []int64{3, 2, 1}, ids)
}

func TestLoadAll_WrapsPlainErrors(t *testing.T) {
	l := NewLoader(&stubSource{err: errors.New("dial tcp: refused")}, newEngine(t), nil)

	_, err := l.LoadAll(context.Background())
	assert.True(t, order.IsNetwork(err))
	assert.Contains(t, err.Error(), "refused")
}

func TestRefresh_AppliesSnapshot(t *testing.T) {
	e := newEngine(t)
	src := &stubSource{orders: []order.Order{testutil.NewOrder(9, order.StatusDelivered, 2)}}

	require.NoError(t, NewLoader(src, e, nil).Refresh(context.Background()))

	o, ok := e.Get(9)
	require.True(t, ok)
	assert.Equal(t, order.StatusDelivered, o.Status)
}

func TestRefresh_FailureLeavesEngineAndWarns(t *testing.T) {
	e := newEngine(t)
	e.ApplySnapshot([]order.Order{testutil.NewOrder(1, order.StatusPlaced, 1)})
	before := e.List()

	w := &warnings{}
	failing := &stubSource{err: order.NewDecodeError("malformed order list json", nil)}
	err := NewLoader(failing, e, w).Refresh(context.Background())

	require.Error(t, err)
	assert.True(t, order.IsDecode(err), "coded errors pass through")
	assert.Equal(t, before, e.List())
	require.Len(t, w.errs, 1)
	assert.Equal(t, err, w.errs[0])
}

func TestRun_RefreshesPeriodically(t *testing.T) {
	src := &stubSource{}
	l := NewLoader(src, newEngine(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool { return src.calls.Load() >= 3 }, 2*time.Second, 2*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
