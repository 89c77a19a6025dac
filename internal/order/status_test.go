package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidTransition_AllPairs(t *testing.T) {
	valid := map[[2]Status]bool{
		{StatusPlaced, StatusInPreparation}:         true,
		{StatusPlaced, StatusCancelled}:             true,
		{StatusInPreparation, StatusOutForDelivery}: true,
		{StatusInPreparation, StatusCancelled}:      true,
		{StatusOutForDelivery, StatusDelivered}:     true,
	}

	for _, from := range Statuses {
		for _, to := range Statuses {
			want := from == to || valid[[2]Status{from, to}]
			assert.Equal(t, want, IsValidTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestIsValidTransition_ReverseEdgesRejected(t *testing.T) {
	tests := []struct{ from, to Status }{
		{StatusInPreparation, StatusPlaced},
		{StatusOutForDelivery, StatusInPreparation},
		{StatusDelivered, StatusOutForDelivery},
		{StatusCancelled, StatusPlaced},
		{StatusOutForDelivery, StatusCancelled},
		{StatusDelivered, StatusCancelled},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.False(t, IsValidTransition(tt.from, tt.to))
		})
	}
}

func TestIsValidTransition_UnknownStatus(t *testing.T) {
	assert.False(t, IsValidTransition("BOGUS", "BOGUS"))
	assert.False(t, IsValidTransition(StatusPlaced, "BOGUS"))
	assert.False(t, IsValidTransition("", StatusPlaced))
}

func TestValidateTransition(t *testing.T) {
	require.NoError(t, ValidateTransition(7, StatusPlaced, StatusInPreparation))

	err := ValidateTransition(7, StatusOutForDelivery, StatusInPreparation)
	require.Error(t, err)
	assert.True(t, IsInvalidTransition(err))
	assert.Contains(t, err.Error(), "OUT_FOR_DELIVERY -> IN_PREPARATION")
	assert.Contains(t, err.Error(), "order=7")
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{"PLACED", StatusPlaced},
		{"pendiente", StatusPlaced},
		{"EN_PREPARACION", StatusInPreparation},
		{"in-preparation", StatusInPreparation},
		{"en camino", StatusOutForDelivery},
		{"ENTREGADO", StatusDelivered},
		{" cancelled ", StatusCancelled},
		{"CANCELADO", StatusCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStatus(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseStatus("LISTO")
	assert.Error(t, err)
}

func TestStatus_WireRoundTrip(t *testing.T) {
	for _, s := range Statuses {
		got, err := ParseStatus(s.Wire())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestStatus_TerminalAndNext(t *testing.T) {
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPlaced.Terminal())

	next, ok := StatusPlaced.Next()
	assert.True(t, ok)
	assert.Equal(t, StatusInPreparation, next)

	next, ok = StatusOutForDelivery.Next()
	assert.True(t, ok)
	assert.Equal(t, StatusDelivered, next)

	_, ok = StatusCancelled.Next()
	assert.False(t, ok)

	for _, s := range Statuses {
		if n, ok := s.Next(); ok {
			assert.True(t, IsValidTransition(s, n), "Next of %s must be a valid edge", s)
		}
	}
}
