package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Kind classifies a request failure. Every failure maps to exactly one
// Kind; callers never inspect raw transport errors.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetworkUnreachable
	KindTimeout
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindValidation
	KindRateLimited
	KindServerError
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindNetworkUnreachable:
		return "network_unreachable"
	case KindTimeout:
		return "timeout"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindRateLimited:
		return "rate_limited"
	case KindServerError:
		return "server_error"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is the typed failure surfaced by the request executor.
type Error struct {
	// Kind is the stable classification of the failure.
	Kind Kind

	// Status is the HTTP status code, or 0 for transport-level failures.
	Status int

	// Detail carries the server-provided message, when present.
	// Populated for validation failures in particular.
	Detail string

	// RetryAfter is the server-requested backoff on rate limiting.
	RetryAfter time.Duration

	cause error
}

func (e *Error) Error() string {
	switch {
	case e.Detail != "":
		return fmt.Sprintf("transport: %s: %s", e.Kind, e.Detail)
	case e.Status != 0:
		return fmt.Sprintf("transport: %s (status %d)", e.Kind, e.Status)
	case e.cause != nil:
		return fmt.Sprintf("transport: %s: %v", e.Kind, e.cause)
	default:
		return fmt.Sprintf("transport: %s", e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Retryable reports whether a manual retry of a write is worthwhile.
// Writes are never retried automatically regardless of this flag.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetworkUnreachable, KindTimeout, KindRateLimited:
		return true
	default:
		return false
	}
}

// KindOf extracts the Kind from err, or KindUnknown when err is not a
// transport Error.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}

// readRetryable reports whether a read should be retried for this kind.
// 4xx failures other than rate limiting fail immediately.
func readRetryable(err error) bool {
	switch KindOf(err) {
	case KindNetworkUnreachable, KindTimeout, KindServerError, KindRateLimited:
		return true
	default:
		return false
	}
}

// classifyTransport maps a transport-level error (no HTTP response) to a
// typed Error. Caller cancellation is its own kind, never retryable; only
// deadline expiry counts as a timeout.
func classifyTransport(err error) *Error {
	kind := KindNetworkUnreachable
	switch {
	case errors.Is(err, context.Canceled):
		kind = KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	default:
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			kind = KindTimeout
		}
	}
	return &Error{Kind: kind, cause: err}
}

// classifyStatus maps a non-2xx HTTP response to a typed Error.
func classifyStatus(status int, detail string, retryAfter time.Duration) *Error {
	e := &Error{Status: status, Detail: detail}
	switch {
	case status == http.StatusUnauthorized:
		e.Kind = KindUnauthorized
	case status == http.StatusForbidden:
		e.Kind = KindForbidden
	case status == http.StatusNotFound:
		e.Kind = KindNotFound
	case status == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
		e.RetryAfter = retryAfter
	case status >= 500:
		e.Kind = KindServerError
	case status >= 400:
		e.Kind = KindValidation
	default:
		e.Kind = KindUnknown
	}
	return e
}
