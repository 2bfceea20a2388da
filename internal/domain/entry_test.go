package domain

import (
	"testing"
	"time"
)

func TestInWindowAcceptsWithinBounds(t *testing.T) {
	w := DefaultAdmissionWindow()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	if !w.InWindow(now.UnixMilli(), now) {
		t.Fatalf("expected the current instant to be in window")
	}
	if !w.InWindow(now.Add(-5*time.Minute).UnixMilli(), now) {
		t.Fatalf("expected 5 minutes in the past to be in window")
	}
	if !w.InWindow(now.Add(5*time.Second).UnixMilli(), now) {
		t.Fatalf("expected 5 seconds in the future to be in window")
	}
}

func TestInWindowRejectsTooOld(t *testing.T) {
	w := DefaultAdmissionWindow()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if w.InWindow(now.Add(-11*time.Minute).UnixMilli(), now) {
		t.Fatalf("expected an 11-minute-old entry to be rejected")
	}
}

func TestInWindowRejectsTooFarFuture(t *testing.T) {
	w := DefaultAdmissionWindow()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if w.InWindow(now.Add(11*time.Second).UnixMilli(), now) {
		t.Fatalf("expected an entry 11 seconds in the future to be rejected")
	}
}

func TestFutureEntryIsPerpWithNilExpiration(t *testing.T) {
	f := FutureEntry{SpotEntry: SpotEntry{PairID: "BTC/USD"}}
	if !f.IsPerp() {
		t.Fatalf("expected a nil expiration to denote a perpetual")
	}
	exp := int64(123)
	f.Expiration = &exp
	if f.IsPerp() {
		t.Fatalf("expected a set expiration to denote a dated future")
	}
}
