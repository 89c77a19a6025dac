package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ordersync/internal/order"
	"github.com/roach88/ordersync/internal/testutil"
)

func waitChange(t *testing.T, sc *StatusChange) (order.Order, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	o, err := sc.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "status change did not complete")
	return o, err
}

func TestRequestStatusChange_EndToEndConfirmed(t *testing.T) {
	u := testutil.NewFakeUpdater()
	e, sink := newTestEngine(t, u)

	e.ApplySnapshot(nil)
	e.ApplyRemoteEvent(order.ChannelEvent{
		OrderID: 42,
		Order:   testutil.NewOrder(42, order.StatusPlaced, 1),
		Kind:    order.EventCreated,
	})
	o, ok := e.Get(42)
	require.True(t, ok)
	assert.Equal(t, order.StatusPlaced, o.Status)

	sc, err := e.RequestStatusChange(context.Background(), 42, order.StatusInPreparation)
	require.NoError(t, err)

	o, _ = e.Get(42)
	assert.Equal(t, order.StatusInPreparation, o.Status, "applied optimistically")
	pa, ok := e.Pending(42)
	require.True(t, ok)
	assert.Equal(t, order.PendingAction{
		OrderID:  42,
		From:     order.StatusPlaced,
		To:       order.StatusInPreparation,
		IssuedAt: testutil.BaseTime,
		Token:    "tok-1",
		Revision: 1,
	}, pa)

	assert.Equal(t, testutil.UpdateCall{OrderID: 42, To: order.StatusInPreparation}, <-u.Called())
	u.Respond(testutil.NewOrder(42, order.StatusInPreparation, 2), nil)

	confirmed, err := waitChange(t, sc)
	require.NoError(t, err)
	assert.Equal(t, int64(2), confirmed.Revision)

	_, ok = e.Pending(42)
	assert.False(t, ok)
	o, _ = e.Get(42)
	assert.Equal(t, order.StatusInPreparation, o.Status)
	assert.Equal(t, int64(2), o.Revision)

	sources := []Source{}
	for _, c := range sink.Changed() {
		sources = append(sources, c.Source)
	}
	assert.Equal(t, []Source{SourceLocal, SourceConfirm}, sources)
}

func TestRequestStatusChange_ConflictLeavesStatus(t *testing.T) {
	u := testutil.NewFakeUpdater()
	e, _ := newTestEngine(t, u)
	e.ApplySnapshot([]order.Order{testutil.NewOrder(1, order.StatusPlaced, 1)})

	_, err := e.RequestStatusChange(context.Background(), 1, order.StatusInPreparation)
	require.NoError(t, err)
	<-u.Called()

	sc, err := e.RequestStatusChange(context.Background(), 1, order.StatusCancelled)
	assert.Nil(t, sc)
	assert.True(t, order.IsConflict(err), "got %v", err)

	o, _ := e.Get(1)
	assert.Equal(t, order.StatusInPreparation, o.Status)
	assert.Len(t, u.Calls(), 1, "no second network call")
}

func TestRequestStatusChange_RejectedBeforeNetwork(t *testing.T) {
	u := testutil.NewFakeUpdater()
	e, _ := newTestEngine(t, u)
	e.ApplySnapshot([]order.Order{testutil.NewOrder(1, order.StatusDelivered, 1)})

	_, err := e.RequestStatusChange(context.Background(), 99, order.StatusInPreparation)
	assert.True(t, order.IsNotFound(err), "got %v", err)

	_, err = e.RequestStatusChange(context.Background(), 1, order.StatusPlaced)
	assert.True(t, order.IsInvalidTransition(err), "got %v", err)

	o, _ := e.Get(1)
	assert.Equal(t, order.StatusDelivered, o.Status)
	assert.Empty(t, u.Calls())
	assert.Equal(t, 0, e.PendingCount())
}

func TestRequestStatusChange_FailureRollsBack(t *testing.T) {
	u := testutil.NewFakeUpdater()
	e, sink := newTestEngine(t, u)
	e.ApplySnapshot([]order.Order{testutil.NewOrder(1, order.StatusPlaced, 4)})

	sc, err := e.RequestStatusChange(context.Background(), 1, order.StatusCancelled)
	require.NoError(t, err)
	<-u.Called()

	reject := &order.Error{
		Code:    order.ErrCodeNetwork,
		Message: "El pedido ya fue despachado",
		OrderID: 1,
		Reason:  "Bad Request",
	}
	u.Respond(order.Order{}, reject)

	o, err := waitChange(t, sc)
	require.Error(t, err)
	assert.True(t, order.IsNetwork(err))
	var oe *order.Error
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, "Bad Request", oe.Reason)

	assert.Equal(t, order.StatusPlaced, o.Status)
	got, _ := e.Get(1)
	assert.Equal(t, order.StatusPlaced, got.Status)
	assert.Equal(t, int64(4), got.Revision)
	assert.Equal(t, 0, e.PendingCount())

	changed := sink.Changed()
	require.Len(t, changed, 2)
	assert.Equal(t, SourceRollback, changed[1].Source)
	assert.Equal(t, order.StatusCancelled, changed[1].Previous)
}

func TestRequestStatusChange_PlainErrorWrappedAsNetwork(t *testing.T) {
	u := testutil.NewAutoUpdater(func(int64, order.Status) (order.Order, error) {
		return order.Order{}, errors.New("connection refused")
	})
	e, _ := newTestEngine(t, u)
	e.ApplySnapshot([]order.Order{testutil.NewOrder(1, order.StatusPlaced, 1)})

	sc, err := e.RequestStatusChange(context.Background(), 1, order.StatusInPreparation)
	require.NoError(t, err)

	_, err = waitChange(t, sc)
	assert.True(t, order.IsNetwork(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRequestStatusChange_RemoteEventWinsOverRollback(t *testing.T) {
	u := testutil.NewFakeUpdater()
	e, _ := newTestEngine(t, u)
	e.ApplySnapshot([]order.Order{testutil.NewOrder(1, order.StatusPlaced, 1)})

	sc, err := e.RequestStatusChange(context.Background(), 1, order.StatusInPreparation)
	require.NoError(t, err)
	<-u.Called()

	assert.Equal(t, OutcomeApplied, e.ApplyRemoteEvent(event(testutil.NewOrder(1, order.StatusOutForDelivery, 3))))
	u.Respond(order.Order{}, errors.New("timeout"))

	_, err = waitChange(t, sc)
	require.Error(t, err)

	o, _ := e.Get(1)
	assert.Equal(t, order.StatusOutForDelivery, o.Status)
	assert.Equal(t, int64(3), o.Revision)
}

func TestRequestStatusChange_PushedSameStatusSurvivesLostReply(t *testing.T) {
	u := testutil.NewFakeUpdater()
	e, _ := newTestEngine(t, u)
	e.ApplySnapshot([]order.Order{testutil.NewOrder(9, order.StatusPlaced, 1)})

	sc, err := e.RequestStatusChange(context.Background(), 9, order.StatusInPreparation)
	require.NoError(t, err)
	<-u.Called()

	// The service applied the change and pushed it; its HTTP reply is lost.
	assert.Equal(t, OutcomeApplied, e.ApplyRemoteEvent(event(testutil.NewOrder(9, order.StatusInPreparation, 2))))
	u.Respond(order.Order{}, errors.New("connection reset"))

	_, err = waitChange(t, sc)
	require.Error(t, err)

	o, _ := e.Get(9)
	assert.Equal(t, order.StatusInPreparation, o.Status, "pushed state must not be rolled back")
	assert.Equal(t, int64(2), o.Revision)

	assert.Equal(t, OutcomeApplied, e.ApplyRemoteEvent(event(testutil.NewOrder(9, order.StatusOutForDelivery, 3))))
	o, _ = e.Get(9)
	assert.Equal(t, order.StatusOutForDelivery, o.Status)
	assert.Equal(t, int64(3), o.Revision)
}

func TestRequestStatusChange_OlderConfirmationKeepsNewerState(t *testing.T) {
	u := testutil.NewFakeUpdater()
	e, _ := newTestEngine(t, u)
	e.ApplySnapshot([]order.Order{testutil.NewOrder(1, order.StatusPlaced, 1)})

	sc, err := e.RequestStatusChange(context.Background(), 1, order.StatusInPreparation)
	require.NoError(t, err)
	<-u.Called()

	e.ApplyRemoteEvent(event(testutil.NewOrder(1, order.StatusOutForDelivery, 3)))
	u.Respond(testutil.NewOrder(1, order.StatusInPreparation, 2), nil)

	confirmed, err := waitChange(t, sc)
	require.NoError(t, err)
	assert.Equal(t, order.StatusOutForDelivery, confirmed.Status)
	assert.Equal(t, int64(3), confirmed.Revision)
}

func TestRequestStatusChange_UnversionedConfirmationBumpsRevision(t *testing.T) {
	u := testutil.NewAutoUpdater(func(id int64, to order.Status) (order.Order, error) {
		return testutil.NewOrder(id, to, 0), nil
	})
	e, _ := newTestEngine(t, u)
	e.ApplySnapshot([]order.Order{testutil.NewOrder(1, order.StatusPlaced, 0)})

	sc, err := e.RequestStatusChange(context.Background(), 1, order.StatusInPreparation)
	require.NoError(t, err)

	confirmed, err := waitChange(t, sc)
	require.NoError(t, err)
	assert.Equal(t, int64(2), confirmed.Revision)
	assert.Equal(t, order.StatusInPreparation, confirmed.Status)
}

func TestRequestStatusChange_CloseClearsPending(t *testing.T) {
	u := testutil.NewFakeUpdater()
	e, sink := newTestEngine(t, u)
	e.ApplySnapshot([]order.Order{testutil.NewOrder(1, order.StatusPlaced, 1)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sc, err := e.RequestStatusChange(ctx, 1, order.StatusInPreparation)
	require.NoError(t, err)
	<-u.Called()

	e.Close()

	_, err = waitChange(t, sc)
	assert.True(t, order.IsClosed(err), "got %v", err)
	assert.Equal(t, 0, e.PendingCount())

	before := len(sink.Changed())
	cancel()
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, sink.Changed(), before, "late response is a no-op")

	_, err = e.RequestStatusChange(context.Background(), 1, order.StatusCancelled)
	assert.True(t, order.IsClosed(err))
}

func TestStatusChange_WaitHonorsContext(t *testing.T) {
	sc := newStatusChange(order.PendingAction{OrderID: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sc.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	o, err := sc.Result()
	assert.NoError(t, err)
	assert.Zero(t, o.ID)

	sc.finish(testutil.NewOrder(1, order.StatusPlaced, 1), nil)
	sc.finish(order.Order{}, errors.New("ignored"))
	o, err = sc.Result()
	assert.NoError(t, err)
	assert.Equal(t, int64(1), o.ID)
}
