package testutil

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/ordersync/internal/order"
)

// BaseTime is the reference instant fixtures are placed relative to.
var BaseTime = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

// NewOrder returns a minimal order placed id minutes after BaseTime.
//
// Fixtures placed this way list in descending id order.
func NewOrder(id int64, status order.Status, revision int64) order.Order {
	return order.Order{
		ID:       id,
		Status:   status,
		Revision: revision,
		PlacedAt: BaseTime.Add(time.Duration(id) * time.Minute),
		Total:    decimal.RequireFromString("25.50"),
		Lines: []order.Line{
			{ItemID: 1, ItemName: "Lomo saltado", Quantity: 1, UnitPrice: decimal.RequireFromString("25.50")},
		},
	}
}
