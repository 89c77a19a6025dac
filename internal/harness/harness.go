package harness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/ordersync/internal/dispatch"
	"github.com/roach88/ordersync/internal/engine"
	"github.com/roach88/ordersync/internal/notify"
	"github.com/roach88/ordersync/internal/order"
	"github.com/roach88/ordersync/internal/store"
	"github.com/roach88/ordersync/internal/testutil"
)

// respondTimeout bounds how long a respond step waits for reconciliation.
const respondTimeout = 5 * time.Second

// Harness runs one scenario against a fresh engine.
type Harness struct {
	engine   *engine.Engine
	updater  *scriptedUpdater
	applier  *outcomeApplier
	dispatch *dispatch.Dispatcher
	changes  map[int64]*engine.StatusChange
	result   *Result
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a new engine and an in-memory journal.
// Execution errors (a journal that cannot be opened, a status update that
// is never reconciled) are returned; failed expectations and assertions
// are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory journal: %w", err)
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tokens := scenario.Tokens
	if len(tokens) == 0 {
		tokens = defaultTokens(16)
	}
	policy := engine.DeletePolicy(scenario.DeletePolicy)
	if policy == "" {
		policy = engine.DeleteNever
	}

	now := testutil.NewFakeNow(testutil.BaseTime)
	result := NewResult()
	rec := &recorder{ctx: ctx, result: result, journal: store.NewJournal(st), now: now.Now}
	updater := newScriptedUpdater()

	eng := engine.New(updater,
		engine.WithSink(rec),
		engine.WithTokenGenerator(engine.NewFixedGenerator(tokens...)),
		engine.WithNow(now.Now),
		engine.WithDeletePolicy(policy),
	)
	defer eng.Close()

	applier := &outcomeApplier{Engine: eng}
	h := &Harness{
		engine:   eng,
		updater:  updater,
		applier:  applier,
		dispatch: dispatch.New(applier, nil),
		changes:  make(map[int64]*engine.StatusChange),
		result:   result,
	}

	for i, step := range scenario.Steps {
		if err := h.execute(ctx, i, step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}
	if err := rec.err(); err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}

	for _, o := range eng.List() {
		f := FinalOrder{ID: o.ID, Status: o.Status, Revision: o.Revision}
		if pa, ok := eng.Pending(o.ID); ok {
			f.Pending = pa.Token
		}
		result.Final = append(result.Final, f)
	}

	actx := &AssertionContext{Engine: eng, Journal: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) execute(ctx context.Context, i int, step Step) error {
	switch {
	case step.Snapshot != nil:
		orders := make([]order.Order, 0, len(step.Snapshot))
		for _, f := range step.Snapshot {
			orders = append(orders, f.Order())
		}
		h.result.tracef("> snapshot orders=%d", len(orders))
		res := h.engine.ApplySnapshot(orders)
		h.result.tracef("  inserted=%d updated=%d unchanged=%d skipped=%d stale=%d removed=%d",
			res.Inserted, res.Updated, res.Unchanged, res.Skipped, res.Stale, res.Removed)

	case step.Event != nil:
		o := step.Event.Order()
		kind := order.EventUpdated
		if !h.engine.Known(o.ID) {
			kind = order.EventCreated
		}
		h.result.tracef("> event #%d %s rev=%d", o.ID, o.Status, o.Revision)
		outcome := h.engine.ApplyRemoteEvent(order.ChannelEvent{OrderID: o.ID, Order: o, Kind: kind})
		h.result.tracef("  outcome=%s", outcome)
		h.checkOutcome(i, step.Expect, outcome)

	case step.Message != "":
		h.result.tracef("> message %d bytes", len(step.Message))
		h.applier.last = ""
		if _, err := h.dispatch.OnMessage([]byte(step.Message)); err != nil {
			h.result.tracef("  error=%s", order.CodeOf(err))
			h.checkError(i, step.Expect, err)
			return nil
		}
		h.result.tracef("  outcome=%s", h.applier.last)
		h.checkOutcome(i, step.Expect, h.applier.last)

	case step.Request != nil:
		return h.request(ctx, i, step)

	case step.Respond != nil:
		return h.respond(i, step)

	case step.Close:
		h.result.tracef("> close")
		h.engine.Close()
	}
	return nil
}

func (h *Harness) request(ctx context.Context, i int, step Step) error {
	to, _ := order.ParseStatus(step.Request.To)
	id := step.Request.Order
	h.result.tracef("> request #%d -> %s", id, to)

	sc, err := h.engine.RequestStatusChange(ctx, id, to)
	if err != nil {
		h.result.tracef("  error=%s", order.CodeOf(err))
		h.checkError(i, step.Expect, err)
		return nil
	}
	h.changes[id] = sc
	h.result.tracef("  pending token=%s", sc.Action.Token)
	h.checkError(i, step.Expect, nil)
	return nil
}

func (h *Harness) respond(i int, step Step) error {
	r := step.Respond
	sc, ok := h.changes[r.Order]
	if !ok {
		return fmt.Errorf("respond: no status change was requested for order %d", r.Order)
	}
	delete(h.changes, r.Order)

	var rep reply
	if r.Error != "" {
		h.result.tracef("> respond #%d error %q", r.Order, r.Error)
		rep.err = errors.New(r.Error)
		if r.Reason != "" {
			oe := order.NewNetworkError(r.Order, r.Error, nil)
			oe.Reason = r.Reason
			rep.err = oe
		}
	} else {
		status := sc.Action.To
		if r.Status != "" {
			status, _ = order.ParseStatus(r.Status)
		}
		h.result.tracef("> respond #%d ok %s rev=%d", r.Order, status, r.Revision)
		rep.order = testutil.NewOrder(r.Order, status, r.Revision)
	}
	h.updater.reply(r.Order, rep)

	ctx, cancel := context.WithTimeout(context.Background(), respondTimeout)
	defer cancel()
	o, err := sc.Wait(ctx)
	if ctx.Err() != nil {
		return fmt.Errorf("status change for order %d was not reconciled", r.Order)
	}
	if err != nil {
		h.result.tracef("  result=%s", order.CodeOf(err))
	} else {
		h.result.tracef("  result=%s rev=%d", o.Status, o.Revision)
	}
	h.checkError(i, step.Expect, err)
	return nil
}

func (h *Harness) checkOutcome(i int, want *Expect, got engine.Outcome) {
	if want == nil || want.Outcome == "" {
		return
	}
	if string(got) != want.Outcome {
		h.result.AddError(fmt.Sprintf("step %d: expected outcome %s, got %s", i, want.Outcome, got))
	}
}

func (h *Harness) checkError(i int, want *Expect, err error) {
	if want == nil {
		if err != nil {
			h.result.AddError(fmt.Sprintf("step %d: unexpected error: %v", i, err))
		}
		return
	}
	got := string(order.CodeOf(err))
	if got != want.Error {
		h.result.AddError(fmt.Sprintf("step %d: expected error %q, got %q", i, want.Error, got))
	}
}

func defaultTokens(n int) []string {
	tokens := make([]string, n)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("tok-%d", i+1)
	}
	return tokens
}

// recorder traces engine signals and journals them.
type recorder struct {
	ctx     context.Context
	journal *store.Journal
	now     func() time.Time

	mu        sync.Mutex
	result    *Result
	recordErr error
}

func (r *recorder) OrderCreated(c engine.Change) {
	r.record(notify.Signal{Kind: notify.KindOrderCreated, Change: c})
}

func (r *recorder) OrderChanged(c engine.Change) {
	r.record(notify.Signal{Kind: notify.KindOrderChanged, Change: c})
}

func (r *recorder) record(s notify.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.At = r.now()
	r.result.Trace = append(r.result.Trace, "  "+notify.FormatSignal(s))
	if err := r.journal.Handle(r.ctx, s); err != nil && r.recordErr == nil {
		r.recordErr = err
	}
}

func (r *recorder) err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recordErr
}

// outcomeApplier remembers the outcome of the last dispatched event.
type outcomeApplier struct {
	*engine.Engine
	last engine.Outcome
}

func (a *outcomeApplier) ApplyRemoteEvent(ev order.ChannelEvent) engine.Outcome {
	a.last = a.Engine.ApplyRemoteEvent(ev)
	return a.last
}

type reply struct {
	order order.Order
	err   error
}

// scriptedUpdater holds every status update until a respond step answers
// it. Replies are keyed by order id; the engine allows one in-flight
// update per order.
type scriptedUpdater struct {
	mu      sync.Mutex
	replies map[int64]chan reply
}

func newScriptedUpdater() *scriptedUpdater {
	return &scriptedUpdater{replies: make(map[int64]chan reply)}
}

func (u *scriptedUpdater) slot(id int64) chan reply {
	u.mu.Lock()
	defer u.mu.Unlock()
	ch, ok := u.replies[id]
	if !ok {
		ch = make(chan reply, 1)
		u.replies[id] = ch
	}
	return ch
}

func (u *scriptedUpdater) UpdateStatus(ctx context.Context, id int64, _ order.Status) (order.Order, error) {
	ch := u.slot(id)
	select {
	case r := <-ch:
		u.mu.Lock()
		if u.replies[id] == ch {
			delete(u.replies, id)
		}
		u.mu.Unlock()
		return r.order, r.err
	case <-ctx.Done():
		return order.Order{}, ctx.Err()
	}
}

func (u *scriptedUpdater) reply(id int64, r reply) {
	u.slot(id) <- r
}
