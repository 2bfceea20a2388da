// Package apierr defines the error taxonomy spec.md §7 requires at the API
// boundary: a stable code, an HTTP status, a human message, and room for
// per-kind detail (signature index, retry-after), with one constructor per
// kind.
package apierr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// Kind is one of the discriminants spec.md §7 requires to surface in API
// responses.
type Kind string

const (
	KindInvalidInput         Kind = "invalid-input"
	KindUnauthorized         Kind = "unauthorized"
	KindSignatureInvalid     Kind = "signature-invalid"
	KindPublisherUnknown     Kind = "publisher-unknown"
	KindPublisherInactive    Kind = "publisher-inactive"
	KindTimestampOutOfWindow Kind = "timestamp-out-of-window"
	KindRateLimited          Kind = "rate-limited"
	KindNotFound             Kind = "not-found"
	KindInsufficientSources  Kind = "insufficient-sources"
	KindTransient            Kind = "transient"
	KindInternal             Kind = "internal"
)

var httpStatus = map[Kind]int{
	KindInvalidInput:         http.StatusBadRequest,
	KindUnauthorized:         http.StatusUnauthorized,
	KindSignatureInvalid:     http.StatusBadRequest,
	KindPublisherUnknown:     http.StatusBadRequest,
	KindPublisherInactive:    http.StatusForbidden,
	KindTimestampOutOfWindow: http.StatusBadRequest,
	KindRateLimited:          http.StatusTooManyRequests,
	KindNotFound:             http.StatusNotFound,
	KindInsufficientSources:  http.StatusNotFound,
	KindTransient:            http.StatusServiceUnavailable,
	KindInternal:             http.StatusInternalServerError,
}

// Error is the stable, client-facing error envelope.
type Error struct {
	Kind       Kind   `json:"code"`
	Message    string `json:"message"`
	TraceID    string `json:"trace_id"`
	Index      *int   `json:"index,omitempty"`
	RetryAfter string `json:"retry_after,omitempty"`
	HTTPStatus int    `json:"-"`
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func newError(kind Kind, msg string) *Error {
	return &Error{
		Kind:       kind,
		Message:    msg,
		TraceID:    uuid.NewString(),
		HTTPStatus: httpStatus[kind],
	}
}

func InvalidInput(msg string) *Error { return newError(KindInvalidInput, msg) }

func Unauthorized(msg string) *Error { return newError(KindUnauthorized, msg) }

// SignatureInvalid reports which 0-based entry index in the batch failed
// verification, per spec.md §4.1 step 3.
func SignatureInvalid(index int) *Error {
	e := newError(KindSignatureInvalid, "signature verification failed")
	e.Index = &index
	return e
}

func PublisherUnknown(name string) *Error {
	return newError(KindPublisherUnknown, fmt.Sprintf("publisher %q unknown", name))
}

func PublisherInactive(name string) *Error {
	return newError(KindPublisherInactive, fmt.Sprintf("publisher %q inactive", name))
}

func TimestampOutOfWindow(index int) *Error {
	e := newError(KindTimestampOutOfWindow, "entry timestamp outside admission window")
	e.Index = &index
	return e
}

// RateLimited reports the retry-after hint derived from the bucket's
// next-token time, per spec.md §4.6.
func RateLimited(retryAfter string) *Error {
	e := newError(KindRateLimited, "rate limit exceeded")
	e.RetryAfter = retryAfter
	return e
}

func NotFound(msg string) *Error { return newError(KindNotFound, msg) }

func InsufficientSources(msg string) *Error { return newError(KindInsufficientSources, msg) }

func Transient(cause error) *Error {
	e := newError(KindTransient, "upstream temporarily unavailable")
	e.cause = cause
	return e
}

func Internal(cause error) *Error {
	e := newError(KindInternal, "internal error")
	e.cause = cause
	return e
}

// As extracts an *Error from err, if any, for callers that need to inspect
// the kind without a type switch at every call site.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
