package channel

import (
	"context"
	"errors"
	"time"
)

// ErrHeartbeatTimeout is returned when nothing arrived within the inbound
// heartbeat window.
var ErrHeartbeatTimeout = errors.New("inbound heartbeat timeout")

// Frame is one inbound unit from a connection. Heartbeat frames carry no
// body and only prove liveness.
type Frame struct {
	Body      []byte
	Heartbeat bool
}

// Conn is an established, subscribed connection.
//
// Receive is called from a single reader goroutine. SendHeartbeat and Close
// are called from the manager goroutine. Close must unblock Receive.
type Conn interface {
	Receive() (Frame, error)
	SendHeartbeat() error
	Close() error
}

// HeartbeatNegotiator is implemented by connections whose heartbeat
// periods were agreed with the broker. Zero disables that direction.
// Connections without it use the manager's configured periods.
type HeartbeatNegotiator interface {
	Heartbeats() (send, expect time.Duration)
}

// Dialer connects and subscribes to topic. Dial must honor ctx
// cancellation.
type Dialer interface {
	Dial(ctx context.Context, topic string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, topic string) (Conn, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, topic string) (Conn, error) {
	return f(ctx, topic)
}
