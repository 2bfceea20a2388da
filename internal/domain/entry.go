// Package domain holds the wire- and storage-level types shared by every
// subsystem: entries as published, funding/open-interest observations,
// publisher records, aggregated buckets and Merkle feed leaves.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryType discriminates the three ingress streams that share the
// admission pipeline.
type EntryType string

const (
	EntryTypeSpot   EntryType = "spot"
	EntryTypePerp   EntryType = "perp"
	EntryTypeFuture EntryType = "future"
)

// SpotEntry is a signed spot-price observation from a single publisher.
//
// Identity is (PairID, Source, Timestamp); duplicates on that key dedupe
// silently at admission.
type SpotEntry struct {
	PairID    string          `json:"pair_id"`
	Publisher string          `json:"publisher"`
	Source    string          `json:"source"`
	Price     decimal.Decimal `json:"price"`
	Timestamp int64           `json:"timestamp"` // milliseconds UTC
	Signature []FieldElement  `json:"signature"`
}

// FutureEntry extends SpotEntry with an optional expiration. A nil
// Expiration denotes a perpetual future; Identity additionally includes
// Expiration.
type FutureEntry struct {
	SpotEntry
	Expiration *int64 `json:"expiration_timestamp,omitempty"`
}

// IsPerp reports whether this entry carries no expiration.
func (f FutureEntry) IsPerp() bool { return f.Expiration == nil }

// FieldElement is one element of a domain-separated signature. The
// on-chain verifier consumes an ordered sequence of field elements rather
// than a single opaque byte blob; that shape is kept here so the hash/sign
// pipeline in internal/crypto round-trips without reinterpretation.
type FieldElement = []byte

// FundingRateObservation is a per-(source, pair) annualized funding rate
// sample.
type FundingRateObservation struct {
	Source    string  `json:"source"`
	Pair      string  `json:"pair"`
	Rate      float64 `json:"annualized_rate"`
	Timestamp int64   `json:"timestamp"`
}

// OpenInterestObservation is a per-(source, pair) open-interest sample.
type OpenInterestObservation struct {
	Source       string  `json:"source"`
	Pair         string  `json:"pair"`
	OpenInterest float64 `json:"open_interest"`
	Timestamp    int64   `json:"timestamp"`
}

// AdmissionWindow bounds how far from "now" an entry timestamp may sit at
// admission time. Configurable per spec.md §9's Open Question; these are
// the observed defaults.
type AdmissionWindow struct {
	MaxAge    time.Duration
	MaxFuture time.Duration
}

// DefaultAdmissionWindow matches spec.md §3: [now-10min, now+10s].
func DefaultAdmissionWindow() AdmissionWindow {
	return AdmissionWindow{MaxAge: 10 * time.Minute, MaxFuture: 10 * time.Second}
}

// InWindow reports whether ts (ms UTC) is acceptable relative to now.
func (w AdmissionWindow) InWindow(ts int64, now time.Time) bool {
	t := time.UnixMilli(ts)
	if t.Before(now.Add(-w.MaxAge)) {
		return false
	}
	if t.After(now.Add(w.MaxFuture)) {
		return false
	}
	return true
}
