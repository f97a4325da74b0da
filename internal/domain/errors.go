package domain

import (
	"errors"
	"fmt"
)

// ValidationReason is the specific limit an open action failed.
type ValidationReason string

const (
	ReasonBelowMinimum          ValidationReason = "below_minimum"
	ReasonAboveMaximum          ValidationReason = "above_maximum"
	ReasonPositionLimitExceeded ValidationReason = "position_limit_exceeded"
)

// FetchError wraps a snapshot fetch failure. It is transient and scoped to
// one source; the poller counts it and keeps going.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch source %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ValidationError rejects one candidate action. Never retried.
type ValidationError struct {
	Reason ValidationReason
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: %s: %s", e.Reason, e.Detail)
}

// TransportError is a transient execution boundary failure, retryable up to
// the configured bound.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("execution transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RejectedError is a boundary-reported rejection (bad order, insufficient
// balance). Retrying cannot help, the action fails immediately.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("execution rejected: %s", e.Reason)
}

// PersistenceError marks a durable-store write failure. Logged by the
// caller and swallowed; it never fails the action's result.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Retryable reports whether err may succeed on resubmission. Only transport
// faults qualify; validation and boundary rejections are terminal.
func Retryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
