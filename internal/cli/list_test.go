package cli

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ordersync/internal/order"
)

func TestList_Text(t *testing.T) {
	srv := newFakeOrderService(t)

	out, err := execute(t, "list", "--server", srv.URL)
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "list_table", []byte(out))
}

func TestList_StatusFilter(t *testing.T) {
	srv := newFakeOrderService(t)

	out, err := execute(t, "list", "--server", srv.URL, "--status", "PENDIENTE")
	require.NoError(t, err)
	assert.Contains(t, out, "PLACED")
	assert.NotContains(t, out, "IN_PREPARATION")
}

func TestList_JSONWithStats(t *testing.T) {
	srv := newFakeOrderService(t)

	out, err := execute(t, "list", "--server", srv.URL, "--stats", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Orders []order.Order `json:"orders"`
			Stats  struct {
				Total   int `json:"total"`
				Pending int `json:"pending"`
			} `json:"stats"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Orders, 2)
	assert.Equal(t, int64(2), resp.Data.Orders[0].ID)
	assert.Equal(t, 2, resp.Data.Stats.Total)
	assert.Equal(t, 2, resp.Data.Stats.Pending)
}

func TestList_InvalidFilter(t *testing.T) {
	_, err := execute(t, "list", "--server", "http://127.0.0.1:1", "--status", "BOGUS")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestList_ServiceUnreachable(t *testing.T) {
	srv := newFakeOrderService(t)
	url := srv.URL
	srv.Close()

	out, err := execute(t, "list", "--server", url)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "NETWORK_ERROR")
}

func TestParseStatusFilter(t *testing.T) {
	tests := []struct {
		raw  string
		want []order.Status
	}{
		{raw: "", want: nil},
		{raw: "TODOS", want: nil},
		{raw: "all", want: nil},
		{raw: "PENDIENTE", want: []order.Status{order.StatusPlaced}},
		{raw: "EN_PREPARACION, delivered", want: []order.Status{order.StatusInPreparation, order.StatusDelivered}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseStatusFilter(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseStatusFilter("PENDIENTE,NOPE")
	assert.Error(t, err)
}
