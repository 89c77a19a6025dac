package order

import (
	"fmt"
	"strings"
)

// Status is the fulfillment state of an order.
type Status string

const (
	StatusPlaced         Status = "PLACED"
	StatusInPreparation  Status = "IN_PREPARATION"
	StatusOutForDelivery Status = "OUT_FOR_DELIVERY"
	StatusDelivered      Status = "DELIVERED"
	StatusCancelled      Status = "CANCELLED"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusPlaced,
	StatusInPreparation,
	StatusOutForDelivery,
	StatusDelivered,
	StatusCancelled,
}

// allowedTransitions is the forward-only lifecycle graph. Self transitions
// are handled separately in IsValidTransition.
var allowedTransitions = map[Status]map[Status]struct{}{
	StatusPlaced: {
		StatusInPreparation: {},
		StatusCancelled:     {},
	},
	StatusInPreparation: {
		StatusOutForDelivery: {},
		StatusCancelled:      {},
	},
	StatusOutForDelivery: {
		StatusDelivered: {},
	},
	StatusDelivered: {},
	StatusCancelled: {},
}

// wireNames maps statuses to the names the order service uses on the wire.
var wireNames = map[Status]string{
	StatusPlaced:         "PENDIENTE",
	StatusInPreparation:  "EN_PREPARACION",
	StatusOutForDelivery: "EN_CAMINO",
	StatusDelivered:      "ENTREGADO",
	StatusCancelled:      "CANCELADO",
}

var aliases = func() map[string]Status {
	m := make(map[string]Status, 2*len(wireNames))
	for s, wire := range wireNames {
		m[string(s)] = s
		m[wire] = s
	}
	return m
}()

// ParseStatus accepts either the canonical name or the service's wire name,
// case-insensitively.
func ParseStatus(s string) (Status, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")
	if st, ok := aliases[key]; ok {
		return st, nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// Terminal reports whether no further transition leaves s.
func (s Status) Terminal() bool {
	return s.Valid() && len(allowedTransitions[s]) == 0
}

// Wire returns the name the order service expects for s.
func (s Status) Wire() string {
	if w, ok := wireNames[s]; ok {
		return w
	}
	return string(s)
}

// Next returns the forward, non-cancelling successor of s. The console's
// "accept" and "mark ready" shortcuts use it.
func (s Status) Next() (Status, bool) {
	switch s {
	case StatusPlaced:
		return StatusInPreparation, true
	case StatusInPreparation:
		return StatusOutForDelivery, true
	case StatusOutForDelivery:
		return StatusDelivered, true
	}
	return "", false
}

// IsValidTransition reports whether an order may move from one status to
// another. A self transition on a known status is an idempotent no-op and
// is allowed.
func IsValidTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	_, ok := allowedTransitions[from][to]
	return ok
}

// ValidateTransition is IsValidTransition returning an INVALID_TRANSITION
// error for the caller to discard or report.
func ValidateTransition(id int64, from, to Status) error {
	if IsValidTransition(from, to) {
		return nil
	}
	return NewInvalidTransitionError(id, from, to)
}
