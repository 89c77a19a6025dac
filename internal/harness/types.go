package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/ordersync/internal/order"
)

// Result is the outcome of running a scenario.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds one line per step and per engine signal, in order.
	Trace []string `json:"trace"`

	// Errors holds failed expectations and assertions.
	Errors []string `json:"errors,omitempty"`

	// Final is the visible collection after the last step.
	Final []FinalOrder `json:"final"`
}

// FinalOrder is an order as left by a scenario.
type FinalOrder struct {
	ID       int64        `json:"id"`
	Status   order.Status `json:"status"`
	Revision int64        `json:"revision"`
	Pending  string       `json:"pending,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []string{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) tracef(format string, args ...any) {
	r.Trace = append(r.Trace, fmt.Sprintf(format, args...))
}

// Format renders the trace and final state as stable text.
func (r *Result) Format(name string) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "scenario: %s\n", name)
	for _, line := range r.Trace {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	buf.WriteString("final:\n")
	for _, o := range r.Final {
		fmt.Fprintf(&buf, "  #%d %s rev=%d", o.ID, o.Status, o.Revision)
		if o.Pending != "" {
			fmt.Fprintf(&buf, " pending=%s", o.Pending)
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}
