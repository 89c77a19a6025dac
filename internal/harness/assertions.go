package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/ordersync/internal/engine"
	"github.com/roach88/ordersync/internal/order"
	"github.com/roach88/ordersync/internal/store"
)

// AssertionContext provides what state assertions query.
type AssertionContext struct {
	Engine  *engine.Engine
	Journal *store.Store
	Ctx     context.Context
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Trace    []string // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, line := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, strings.TrimSpace(line))
		}
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertStatus:
		return assertStatus(actx.Engine, a)
	case AssertRevision:
		return assertRevision(actx.Engine, a)
	case AssertPending:
		return assertPending(actx.Engine, a)
	case AssertHidden:
		return assertHidden(actx.Engine, a)
	case AssertJournalCount:
		return assertJournalCount(actx, a)
	case AssertTraceContains:
		return assertTraceContains(result.Trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(result.Trace, a)
	case AssertTraceCount:
		return assertTraceCount(result.Trace, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func assertStatus(e *engine.Engine, a Assertion) error {
	want, err := order.ParseStatus(a.Status)
	if err != nil {
		return err
	}
	o, ok := e.Get(a.Order)
	if !ok {
		return &AssertionError{
			Type:     AssertStatus,
			Expected: fmt.Sprintf("order %d with status %s", a.Order, want),
			Actual:   "order not visible",
		}
	}
	if o.Status != want {
		return &AssertionError{
			Type:     AssertStatus,
			Expected: fmt.Sprintf("order %d with status %s", a.Order, want),
			Actual:   fmt.Sprintf("status %s", o.Status),
		}
	}
	return nil
}

func assertRevision(e *engine.Engine, a Assertion) error {
	o, ok := e.Get(a.Order)
	if !ok {
		return &AssertionError{
			Type:     AssertRevision,
			Expected: fmt.Sprintf("order %d at revision %d", a.Order, a.Revision),
			Actual:   "order not visible",
		}
	}
	if o.Revision != a.Revision {
		return &AssertionError{
			Type:     AssertRevision,
			Expected: fmt.Sprintf("order %d at revision %d", a.Order, a.Revision),
			Actual:   fmt.Sprintf("revision %d", o.Revision),
		}
	}
	return nil
}

func assertPending(e *engine.Engine, a Assertion) error {
	pa, busy := e.Pending(a.Order)
	if busy == *a.Pending {
		return nil
	}
	actual := "no pending change"
	if busy {
		actual = fmt.Sprintf("pending change to %s (token %s)", pa.To, pa.Token)
	}
	return &AssertionError{
		Type:     AssertPending,
		Expected: fmt.Sprintf("order %d pending=%t", a.Order, *a.Pending),
		Actual:   actual,
	}
}

func assertHidden(e *engine.Engine, a Assertion) error {
	if o, ok := e.Get(a.Order); ok {
		return &AssertionError{
			Type:     AssertHidden,
			Expected: fmt.Sprintf("order %d not visible", a.Order),
			Actual:   fmt.Sprintf("visible with status %s", o.Status),
		}
	}
	return nil
}

func assertJournalCount(actx *AssertionContext, a Assertion) error {
	entries, err := actx.Journal.Timeline(actx.Ctx, a.Order)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	if len(entries) != a.Count {
		return &AssertionError{
			Type:     AssertJournalCount,
			Expected: fmt.Sprintf("%d journal entries for order %d", a.Count, a.Order),
			Actual:   fmt.Sprintf("%d entries", len(entries)),
		}
	}
	return nil
}

// assertTraceContains checks that some trace line contains the text.
func assertTraceContains(trace []string, a Assertion) error {
	for _, line := range trace {
		if strings.Contains(line, a.Text) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("a line containing %q", a.Text),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the lines appear in order.
// Lines don't need to be consecutive.
func assertTraceOrder(trace []string, a Assertion) error {
	pos := 0
	for _, want := range a.Lines {
		found := false
		for pos < len(trace) {
			line := trace[pos]
			pos++
			if strings.Contains(line, want) {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("lines in order: %q", a.Lines),
				Actual:   fmt.Sprintf("%q missing or out of order", want),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks the number of lines containing the text.
func assertTraceCount(trace []string, a Assertion) error {
	count := 0
	for _, line := range trace {
		if strings.Contains(line, a.Text) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d lines containing %q", a.Count, a.Text),
			Actual:   fmt.Sprintf("%d lines", count),
			Trace:    trace,
		}
	}
	return nil
}
