package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is one customer order as known to the console.
//
// PlacedAt and Lines are immutable once the order exists locally. Revision
// is zero when the service supplied no version information; see
// Versioned.
type Order struct {
	ID              int64           `json:"id"`
	Status          Status          `json:"status"`
	Revision        int64           `json:"revision"`
	PlacedAt        time.Time       `json:"placed_at"`
	Total           decimal.Decimal `json:"total"`
	Lines           []Line          `json:"lines,omitempty"`
	Contact         string          `json:"contact,omitempty"`
	DeliveryAddress string          `json:"delivery_address,omitempty"`
	DeliveryNotes   string          `json:"delivery_notes,omitempty"`
	Kind            string          `json:"kind,omitempty"`
	PaymentMethod   string          `json:"payment_method,omitempty"`
}

// Line is one ordered menu item.
type Line struct {
	ItemID    int64           `json:"item_id"`
	ItemName  string          `json:"item_name,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Subtotal returns quantity times unit price.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Versioned reports whether the service supplied a revision for o.
func (o Order) Versioned() bool {
	return o.Revision > 0
}

// Clone returns a deep copy of o. The engine hands out clones so callers
// never alias its store.
func (o Order) Clone() Order {
	c := o
	if o.Lines != nil {
		c.Lines = make([]Line, len(o.Lines))
		copy(c.Lines, o.Lines)
	}
	return c
}

// EventKind distinguishes a first sighting of an order from a change to one
// already known.
type EventKind string

const (
	EventCreated EventKind = "CREATED"
	EventUpdated EventKind = "UPDATED"
)

// ChannelEvent is a decoded push message. It is transient and never stored.
type ChannelEvent struct {
	OrderID int64
	Order   Order
	Kind    EventKind
}

// PendingAction is an operator-initiated status change awaiting the
// service's confirmation.
type PendingAction struct {
	OrderID  int64
	From     Status
	To       Status
	IssuedAt time.Time
	Token    string

	// Revision is the local revision the optimistic status was written
	// over. A failed change is rolled back only while it is unchanged.
	Revision int64
}
