package billing

import (
	"errors"
	"fmt"
)

// Kind classifies billing failures for callers and transports.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindInvalid            Kind = "invalid"
	KindInvariantViolation Kind = "invariant_violation"
	KindIntegrityAnomaly   Kind = "integrity_anomaly"
	KindInternal           Kind = "internal"
)

// Error is the single error type returned by Service.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind carried by err, or KindInternal.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindInternal
}

// IsKind reports whether err is a billing Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func newError(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// internalError wraps unexpected store failures, passing through errors that
// are already classified.
func internalError(op string, err error) error {
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	return newError(KindInternal, op, "", err)
}
