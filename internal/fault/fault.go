package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide how to surface it.
type Kind int

const (
	Validation Kind = iota + 1 // bad operator input, rejected before any I/O
	Capture                    // input device could not be opened or read
	Protocol                   // malformed or unexpected server message
	Connection                 // handshake failure, unexpected close, transport error
	Timeout                    // connect handshake did not finish in time
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Capture:
		return "capture"
	case Protocol:
		return "protocol"
	case Connection:
		return "connection"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error carries a Kind and an operator-facing reason.
type Error struct {
	Kind   Kind
	Op     string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Reason
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op, reason string, err error) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason, Err: err}
}

// Validationf returns a Validation error with a formatted reason.
func Validationf(format string, args ...any) error {
	return newError(Validation, "", fmt.Sprintf(format, args...), nil)
}

// CaptureErr wraps a device failure.
func CaptureErr(op, reason string, err error) error {
	return newError(Capture, op, reason, err)
}

// ProtocolErr wraps a decoding failure.
func ProtocolErr(op, reason string, err error) error {
	return newError(Protocol, op, reason, err)
}

// ConnectionErr wraps a transport failure.
func ConnectionErr(op, reason string, err error) error {
	return newError(Connection, op, reason, err)
}

// TimeoutErr reports an expired handshake.
func TimeoutErr(op, reason string) error {
	return newError(Timeout, op, reason, nil)
}

// Is reports whether any error in err's chain is a fault of the given kind.
// Timeout faults also satisfy Connection.
func Is(err error, kind Kind) bool {
	var fe *Error
	if !errors.As(err, &fe) {
		return false
	}
	if fe.Kind == kind {
		return true
	}
	return kind == Connection && fe.Kind == Timeout
}

// Reason returns the operator-facing reason of a fault, or err.Error().
func Reason(err error) string {
	var fe *Error
	if errors.As(err, &fe) && fe.Reason != "" {
		return fe.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
