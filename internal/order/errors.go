package order

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes sync engine errors.
type ErrorCode string

const (
	// ErrCodeDecode indicates a malformed channel or service payload.
	ErrCodeDecode ErrorCode = "DECODE_ERROR"

	// ErrCodeNetwork indicates a snapshot or update request failed.
	ErrCodeNetwork ErrorCode = "NETWORK_ERROR"

	// ErrCodeInvalidTransition indicates a status change outside the lifecycle graph.
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"

	// ErrCodeConflict indicates a status change is already pending for the order.
	ErrCodeConflict ErrorCode = "CONFLICT"

	// ErrCodeNotFound indicates the order is not known locally.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeClosed indicates the engine was torn down.
	ErrCodeClosed ErrorCode = "CLOSED"
)

// Error is the typed error returned by the sync engine and its collaborators.
//
// Reason carries the machine-readable reason reported by the order service
// for NETWORK_ERROR failures, when the service supplied one.
type Error struct {
	Code    ErrorCode
	Message string
	OrderID int64
	Reason  string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.OrderID != 0 {
		msg = fmt.Sprintf("%s (order=%d)", msg, e.OrderID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsDecode returns true if err is a DECODE_ERROR.
func IsDecode(err error) bool { return CodeOf(err) == ErrCodeDecode }

// IsNetwork returns true if err is a NETWORK_ERROR.
func IsNetwork(err error) bool { return CodeOf(err) == ErrCodeNetwork }

// IsInvalidTransition returns true if err is an INVALID_TRANSITION error.
func IsInvalidTransition(err error) bool { return CodeOf(err) == ErrCodeInvalidTransition }

// IsConflict returns true if err is a CONFLICT error.
func IsConflict(err error) bool { return CodeOf(err) == ErrCodeConflict }

// IsNotFound returns true if err is a NOT_FOUND error.
func IsNotFound(err error) bool { return CodeOf(err) == ErrCodeNotFound }

// IsClosed returns true if err is a CLOSED error.
func IsClosed(err error) bool { return CodeOf(err) == ErrCodeClosed }

// NewDecodeError wraps a payload decoding failure.
func NewDecodeError(message string, err error) *Error {
	return &Error{Code: ErrCodeDecode, Message: message, Err: err}
}

// NewNetworkError wraps a failed request against the order service.
func NewNetworkError(orderID int64, message string, err error) *Error {
	return &Error{Code: ErrCodeNetwork, Message: message, OrderID: orderID, Err: err}
}

// NewInvalidTransitionError reports a status change outside the lifecycle graph.
func NewInvalidTransitionError(orderID int64, from, to Status) *Error {
	return &Error{
		Code:    ErrCodeInvalidTransition,
		Message: fmt.Sprintf("transition %s -> %s is not allowed", from, to),
		OrderID: orderID,
	}
}

// NewConflictError reports a second status change while one is pending.
func NewConflictError(orderID int64, pending Status) *Error {
	return &Error{
		Code:    ErrCodeConflict,
		Message: fmt.Sprintf("status change to %s already pending", pending),
		OrderID: orderID,
	}
}

// NewNotFoundError reports an order id unknown to the engine.
func NewNotFoundError(orderID int64) *Error {
	return &Error{Code: ErrCodeNotFound, Message: "order not known", OrderID: orderID}
}

// NewClosedError reports an operation attempted after teardown.
func NewClosedError() *Error {
	return &Error{Code: ErrCodeClosed, Message: "engine closed"}
}
