// Package channel maintains the push channel to the order service.
//
// A Manager owns one logical connection: it dials, subscribes to the order
// topic, watches inbound liveness, sends heartbeats, and reconnects with
// capped exponential backoff until stopped. Transports plug in through
// Dialer; WebSocketDialer speaks STOMP 1.2 over a WebSocket.
//
// State machine:
//
//	DISCONNECTED -> CONNECTING -> CONNECTED -> DISCONNECTED -> ...
//
// The message and status callbacks are registered once at construction, so
// reconnects never register a consumer twice.
package channel
