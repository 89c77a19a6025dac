// Package orderapi is the HTTP client for the external order service.
package orderapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/roach88/ordersync/internal/metrics"
	"github.com/roach88/ordersync/internal/order"
	"github.com/roach88/ordersync/internal/wire"
)

const (
	ordersPath = "/api/admin/pedidos"

	// maxBodyBytes bounds how much of a response is read.
	maxBodyBytes = 16 << 20
)

// serviceError is the service's error body.
type serviceError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Client calls the order service's admin API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBearerToken sends token as a bearer Authorization header.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// NewClient creates a client for the service at baseURL, e.g.
// http://localhost:8080.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListOrders performs the bulk read. Transport failures and non-2xx
// responses are NETWORK_ERROR; a malformed body is DECODE_ERROR. Malformed
// records are logged, counted and left out.
func (c *Client) ListOrders(ctx context.Context) ([]order.Order, error) {
	body, err := c.do(ctx, http.MethodGet, ordersPath, nil, 0)
	if err != nil {
		return nil, err
	}
	orders, skipped, err := wire.DecodeOrders(body)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	for _, serr := range skipped {
		metrics.DecodeErrorsTotal.Inc()
		slog.Warn("dropping malformed order from bulk read", "error", serr)
	}
	return orders, nil
}

// UpdateStatus asks the service to move an order to status and returns the
// service's representation of the updated order.
func (c *Client) UpdateStatus(ctx context.Context, orderID int64, to order.Status) (order.Order, error) {
	payload, err := wire.EncodeStatusRequest(to)
	if err != nil {
		return order.Order{}, fmt.Errorf("encode status request: %w", err)
	}

	path := fmt.Sprintf("%s/%d/estado", ordersPath, orderID)
	body, err := c.do(ctx, http.MethodPut, path, payload, orderID)
	if err != nil {
		return order.Order{}, err
	}
	o, err := wire.DecodeOrder(body)
	if err != nil {
		return order.Order{}, fmt.Errorf("update status of order %d: %w", orderID, err)
	}
	return o, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, orderID int64) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, order.NewNetworkError(orderID, "create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, order.NewNetworkError(orderID, fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, order.NewNetworkError(orderID, "read response", err)
	}
	slog.Debug("order service call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, responseError(orderID, resp.StatusCode, body)
	}
	return body, nil
}

// responseError maps a non-2xx response onto NETWORK_ERROR, keeping the
// service's reason and message when the body carries them.
func responseError(orderID int64, status int, body []byte) *order.Error {
	e := &order.Error{
		Code:    order.ErrCodeNetwork,
		OrderID: orderID,
		Reason:  http.StatusText(status),
		Message: fmt.Sprintf("order service returned %d", status),
	}
	var se serviceError
	if err := json.Unmarshal(body, &se); err == nil {
		if se.Error != "" {
			e.Reason = se.Error
		}
		if se.Message != "" {
			e.Message = se.Message
		}
	}
	return e
}
