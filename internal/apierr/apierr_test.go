package apierr

import (
	"errors"
	"net/http"
	"testing"
)

func TestSignatureInvalidCarriesIndex(t *testing.T) {
	err := SignatureInvalid(3)
	if err.Index == nil || *err.Index != 3 {
		t.Fatalf("expected index 3, got %v", err.Index)
	}
	if err.HTTPStatus != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", err.HTTPStatus)
	}
}

func TestRateLimitedIsTooManyRequests(t *testing.T) {
	err := RateLimited("2s")
	if err.HTTPStatus != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", err.HTTPStatus)
	}
	if err.RetryAfter != "2s" {
		t.Fatalf("expected retry_after 2s, got %q", err.RetryAfter)
	}
}

func TestTransientWrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Transient(cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected Transient to unwrap to its cause")
	}
	if err.HTTPStatus != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", err.HTTPStatus)
	}
}

func TestAsExtractsTypedError(t *testing.T) {
	var err error = PublisherInactive("acme")
	apiErr, ok := As(err)
	if !ok {
		t.Fatalf("expected As to recognize an *Error")
	}
	if apiErr.Kind != KindPublisherInactive {
		t.Fatalf("expected publisher-inactive kind, got %s", apiErr.Kind)
	}
}

func TestEachErrorGetsAUniqueTraceID(t *testing.T) {
	a := InvalidInput("bad")
	b := InvalidInput("bad")
	if a.TraceID == b.TraceID {
		t.Fatalf("expected distinct trace IDs across calls")
	}
}
