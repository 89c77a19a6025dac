package harness

import (
	"bytes"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/roach88/ordersync/internal/engine"
	"github.com/roach88/ordersync/internal/order"
	"github.com/roach88/ordersync/internal/testutil"
)

// Scenario is a scripted sequence of inputs to the engine plus the
// assertions that must hold afterwards.
type Scenario struct {
	// Name uniquely identifies the scenario; it names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// DeletePolicy is the snapshot delete policy. Default: never.
	DeletePolicy string `yaml:"delete_policy,omitempty"`

	// Tokens are handed out to status change requests in order. Defaults
	// to tok-1, tok-2, ...
	Tokens []string `yaml:"tokens,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated against the final state and trace.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scenario input. Exactly one of the action fields is set.
type Step struct {
	Snapshot []OrderFixture `yaml:"snapshot,omitempty"`
	Event    *OrderFixture  `yaml:"event,omitempty"`
	Message  string         `yaml:"message,omitempty"`
	Request  *RequestStep   `yaml:"request,omitempty"`
	Respond  *RespondStep   `yaml:"respond,omitempty"`
	Close    bool           `yaml:"close,omitempty"`

	// Expect checks the step's immediate outcome.
	Expect *Expect `yaml:"expect,omitempty"`
}

// OrderFixture describes an order as the service or push channel sends it.
// Unset fields take the testutil.NewOrder defaults; revision 0 means
// unversioned.
type OrderFixture struct {
	ID       int64  `yaml:"id"`
	Status   string `yaml:"status"`
	Revision int64  `yaml:"revision,omitempty"`
	Total    string `yaml:"total,omitempty"`
	Contact  string `yaml:"contact,omitempty"`
}

// RequestStep is an operator status change.
type RequestStep struct {
	Order int64  `yaml:"order"`
	To    string `yaml:"to"`
}

// RespondStep answers the in-flight status update for Order. Without
// Error the service confirms with Status (default: the requested status)
// at Revision (0: unversioned).
type RespondStep struct {
	Order    int64  `yaml:"order"`
	Status   string `yaml:"status,omitempty"`
	Revision int64  `yaml:"revision,omitempty"`
	Error    string `yaml:"error,omitempty"`
	Reason   string `yaml:"reason,omitempty"`
}

// Expect is the expected immediate outcome of a step. Outcome applies to
// event and message steps, Error (an error code) to request and respond
// steps.
type Expect struct {
	Outcome string `yaml:"outcome,omitempty"`
	Error   string `yaml:"error,omitempty"`
}

// Assertion validates the final state or the trace.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Order is the order id (status, revision, pending, hidden, journal_count).
	Order int64 `yaml:"order,omitempty"`

	// Status is the expected status (status).
	Status string `yaml:"status,omitempty"`

	// Revision is the expected revision (revision).
	Revision int64 `yaml:"revision,omitempty"`

	// Pending is whether a change must be in flight (pending).
	Pending *bool `yaml:"pending,omitempty"`

	// Text is a trace substring (trace_contains, trace_count).
	Text string `yaml:"text,omitempty"`

	// Count is the expected number of matches (trace_count, journal_count).
	Count int `yaml:"count,omitempty"`

	// Lines are trace substrings that must appear in order (trace_order).
	Lines []string `yaml:"lines,omitempty"`
}

// Assertion type constants.
const (
	AssertStatus        = "status"
	AssertRevision      = "revision"
	AssertPending       = "pending"
	AssertHidden        = "hidden"
	AssertJournalCount  = "journal_count"
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	switch engine.DeletePolicy(s.DeletePolicy) {
	case "", engine.DeleteNever, engine.DeleteSoft:
	default:
		return fmt.Errorf("delete_policy %q must be never or soft", s.DeletePolicy)
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertion %d: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	actions := 0
	if step.Snapshot != nil {
		actions++
		for _, f := range step.Snapshot {
			if err := f.validate(); err != nil {
				return err
			}
		}
	}
	if step.Event != nil {
		actions++
		if err := step.Event.validate(); err != nil {
			return err
		}
	}
	if step.Message != "" {
		actions++
	}
	if step.Request != nil {
		actions++
		if _, err := order.ParseStatus(step.Request.To); err != nil {
			return fmt.Errorf("request: %w", err)
		}
	}
	if step.Respond != nil {
		actions++
		if step.Respond.Status != "" {
			if _, err := order.ParseStatus(step.Respond.Status); err != nil {
				return fmt.Errorf("respond: %w", err)
			}
		}
	}
	if step.Close {
		actions++
	}
	if actions != 1 {
		return fmt.Errorf("exactly one of snapshot, event, message, request, respond, close is required (got %d)", actions)
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertStatus:
		if _, err := order.ParseStatus(a.Status); err != nil {
			return err
		}
	case AssertPending:
		if a.Pending == nil {
			return fmt.Errorf("pending assertion requires pending: true|false")
		}
	case AssertTraceContains, AssertTraceCount:
		if a.Text == "" {
			return fmt.Errorf("%s assertion requires text", a.Type)
		}
	case AssertTraceOrder:
		if len(a.Lines) < 2 {
			return fmt.Errorf("trace_order assertion requires at least two lines")
		}
	case AssertRevision, AssertHidden, AssertJournalCount:
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func (f OrderFixture) validate() error {
	if f.ID <= 0 {
		return fmt.Errorf("order fixture needs a positive id")
	}
	if _, err := order.ParseStatus(f.Status); err != nil {
		return err
	}
	if f.Total != "" {
		if _, err := decimal.NewFromString(f.Total); err != nil {
			return fmt.Errorf("order %d: total: %w", f.ID, err)
		}
	}
	return nil
}

// Order builds the fixture's order. The fixture must be valid.
func (f OrderFixture) Order() order.Order {
	status, _ := order.ParseStatus(f.Status)
	o := testutil.NewOrder(f.ID, status, f.Revision)
	if f.Total != "" {
		o.Total = decimal.RequireFromString(f.Total)
	}
	o.Contact = f.Contact
	return o
}
