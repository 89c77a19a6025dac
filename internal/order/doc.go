// Package order provides the order model shared by every ordersync component.
//
// This package has no internal imports. It holds the Order and Line types,
// the status state machine, the error taxonomy used across the sync engine,
// and the content fingerprint used to detect duplicate deliveries of
// unversioned orders.
//
// Key constraints:
//   - Order IDs are assigned by the external order service, never locally
//   - Status only moves forward along the edges in status.go
//   - Money uses decimal.Decimal, never float64
package order
