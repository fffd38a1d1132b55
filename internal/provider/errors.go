package provider

import (
	"context"
	"errors"
	"fmt"
)

// FailureKind classifies a failed backend call.
type FailureKind string

const (
	FailureTimeout         FailureKind = "Timeout"
	FailureAuth            FailureKind = "AuthError"
	FailureRateLimited     FailureKind = "RateLimited"
	FailureTransport       FailureKind = "TransportError"
	FailureInvalidResponse FailureKind = "InvalidResponse"
	FailureCanceled        FailureKind = "Canceled"
)

// Retryable reports whether another call to the same provider may succeed.
func (k FailureKind) Retryable() bool {
	switch k {
	case FailureAuth, FailureCanceled:
		return false
	}
	return true
}

// Error is the typed failure returned by backends.
type Error struct {
	Kind     FailureKind
	Provider string
	Status   int
	Err      error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, &Error{Kind: FailureTimeout}) match on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Provider == "" || t.Provider == e.Provider)
}

// Fail builds an *Error.
func Fail(kind FailureKind, err error) *Error { return &Error{Kind: kind, Err: err} }

// FailStatus builds an *Error carrying an HTTP status.
func FailStatus(kind FailureKind, status int, err error) *Error {
	return &Error{Kind: kind, Status: status, Err: err}
}

// Classify maps any error to a FailureKind. Untyped errors count as
// transport failures; deadline and cancellation are recognized explicitly.
func Classify(err error) FailureKind {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	if errors.Is(err, context.Canceled) {
		return FailureCanceled
	}
	return FailureTransport
}

// KindForStatus maps an HTTP status code to a FailureKind, empty for 2xx.
func KindForStatus(status int) FailureKind {
	switch {
	case status >= 200 && status < 300:
		return ""
	case status == 401 || status == 403:
		return FailureAuth
	case status == 429:
		return FailureRateLimited
	case status == 408 || status == 504:
		return FailureTimeout
	case status >= 500:
		return FailureTransport
	default:
		return FailureInvalidResponse
	}
}
