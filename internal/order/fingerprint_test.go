package order

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func sampleOrder() Order {
	return Order{
		ID:       42,
		Status:   StatusPlaced,
		Revision: 1,
		PlacedAt: time.Date(2026, 10, 18, 12, 30, 0, 0, time.UTC),
		Total:    decimal.RequireFromString("46.00"),
		Lines: []Line{
			{ItemID: 1, ItemName: "Lomo Saltado", Quantity: 1, UnitPrice: decimal.RequireFromString("32.00")},
			{ItemID: 9, ItemName: "Chicha Morada", Quantity: 2, UnitPrice: decimal.RequireFromString("7")},
		},
		DeliveryAddress: "Av. Arequipa 123",
	}
}

func TestFingerprint_IgnoresRevision(t *testing.T) {
	a := sampleOrder()
	b := sampleOrder()
	b.Revision = 9

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprint_DetectsContentChange(t *testing.T) {
	a := sampleOrder()
	b := sampleOrder()
	b.Status = StatusInPreparation

	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprint_DecimalScaleInsensitive(t *testing.T) {
	a := sampleOrder()
	b := sampleOrder()
	b.Total = decimal.RequireFromString("46")

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprint_NFCNormalized(t *testing.T) {
	a := sampleOrder()
	a.DeliveryNotes = "Direcci\u00f3n"
	b := sampleOrder()
	b.DeliveryNotes = "Direccio\u0301n"

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprint_TimezoneInsensitive(t *testing.T) {
	a := sampleOrder()
	b := sampleOrder()
	b.PlacedAt = a.PlacedAt.In(time.FixedZone("PET", -5*3600))

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestLine_Subtotal(t *testing.T) {
	l := Line{Quantity: 3, UnitPrice: decimal.RequireFromString("7.50")}
	assert.True(t, decimal.RequireFromString("22.50").Equal(l.Subtotal()))
}

func TestOrder_CloneDoesNotAliasLines(t *testing.T) {
	a := sampleOrder()
	c := a.Clone()
	c.Lines[0].Quantity = 5

	assert.Equal(t, 1, a.Lines[0].Quantity)
}
