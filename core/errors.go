package core

import (
	"errors"
	"fmt"
)

// Kind classifies failures at the service boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAbuseBlocked
	KindPaymentUnverified
	KindAuthenticationFailed
	KindStoreUnavailable
	KindUnrecognizedEvent
	KindNotFound
	KindProvider
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindAbuseBlocked:
		return "abuse_blocked"
	case KindPaymentUnverified:
		return "payment_unverified"
	case KindAuthenticationFailed:
		return "authentication_failed"
	case KindStoreUnavailable:
		return "store_unavailable"
	case KindUnrecognizedEvent:
		return "unrecognized_event"
	case KindNotFound:
		return "not_found"
	case KindProvider:
		return "provider_error"
	}
	return "internal_error"
}

// Error carries a user-safe Reason; Err holds internal detail for logs only.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf returns the user-safe reason of err.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	return "internal error"
}

func newError(k Kind, reason string, err error) *Error {
	return &Error{Kind: k, Reason: reason, Err: err}
}
