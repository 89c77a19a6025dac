package notify

import (
	"time"

	"github.com/roach88/ordersync/internal/channel"
	"github.com/roach88/ordersync/internal/engine"
)

// Kind distinguishes signal types.
type Kind int

const (
	// KindOrderCreated announces an order first seen on the push channel.
	KindOrderCreated Kind = iota + 1
	// KindOrderChanged reports any other applied change.
	KindOrderChanged
	// KindConnectionChanged reports a push channel state change.
	KindConnectionChanged
	// KindRefreshFailed is the non-blocking warning for a failed snapshot.
	KindRefreshFailed
)

func (k Kind) String() string {
	switch k {
	case KindOrderCreated:
		return "order_created"
	case KindOrderChanged:
		return "order_changed"
	case KindConnectionChanged:
		return "connection_changed"
	case KindRefreshFailed:
		return "refresh_failed"
	}
	return "unknown"
}

// Signal is one notification. Change is set for order signals, Connection
// for connection signals and Err for refresh failures.
type Signal struct {
	Kind       Kind
	At         time.Time
	Change     engine.Change
	Connection channel.Status
	Err        error
}
