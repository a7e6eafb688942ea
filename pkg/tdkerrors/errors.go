package tdkerrors

import (
	"errors"
	"fmt"
)

// Reply is the subset of a parsed peer response carried by BadResponseError.
// It is satisfied by *protocol.Response.
type Reply interface {
	StatusCode() int
	ServerID() string
	PeerError() *ErrorBody
}

// ProtocolError reports a violation of the control protocol itself, such as a
// missing peer identity marker or an unregistered operation. It is never retried.
type ProtocolError struct {
	Reason string
}

// NewProtocolError creates a new ProtocolError.
func NewProtocolError(format string, args ...any) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// Error implements the error interface for ProtocolError.
func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Reason
}

// BadResponseError is returned when the peer answers with a non-success
// status, or when a verification request violates its own contract.
type BadResponseError struct {
	Code     int
	Response Reply
	Message  string
}

// NewBadResponseError creates a new BadResponseError. response may be nil.
func NewBadResponseError(code int, response Reply, format string, args ...any) *BadResponseError {
	return &BadResponseError{
		Code:     code,
		Response: response,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface for BadResponseError.
func (e *BadResponseError) Error() string {
	msg := fmt.Sprintf("bad response (%d): %s", e.Code, e.Message)
	if body := e.Body(); body != nil {
		msg += " [" + body.String() + "]"
	}
	return msg
}

// Body returns the error payload embedded by the peer, if any.
func (e *BadResponseError) Body() *ErrorBody {
	if e.Response == nil {
		return nil
	}
	return e.Response.PeerError()
}

// Unwrap exposes the peer's error payload to errors.As.
func (e *BadResponseError) Unwrap() error {
	if body := e.Body(); body != nil {
		return body
	}
	return nil
}

// TimeoutError is returned by the poller when the predicate never held within
// the allotted time. State is the last observed state.
type TimeoutError struct {
	Message string
	State   any
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(state any, format string, args ...any) *TimeoutError {
	return &TimeoutError{Message: fmt.Sprintf(format, args...), State: state}
}

// Error implements the error interface for TimeoutError.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out: %s (last state: %v)", e.Message, e.State)
}

// IsProtocolError reports whether err is or wraps a ProtocolError.
func IsProtocolError(err error) bool {
	var target *ProtocolError
	return errors.As(err, &target)
}

// AsBadResponse unwraps err into a BadResponseError if possible.
func AsBadResponse(err error) (*BadResponseError, bool) {
	var target *BadResponseError
	ok := errors.As(err, &target)
	return target, ok
}

// AsTimeout unwraps err into a TimeoutError if possible.
func AsTimeout(err error) (*TimeoutError, bool) {
	var target *TimeoutError
	ok := errors.As(err, &target)
	return target, ok
}

// compile-time checks
var _ error = (*ProtocolError)(nil)
var _ error = (*BadResponseError)(nil)
var _ error = (*TimeoutError)(nil)
